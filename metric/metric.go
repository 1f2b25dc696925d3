// Package metric provides the pluggable scorers invoked by the
// benchmark pipeline. A metric receives the parallel lists of prompts,
// predictions and targets for one detail group and returns named
// numeric scores in [0,100], plus the grading_criteria sub-mapping the
// grading step consumes.
package metric

import (
	"context"
	"fmt"

	"github.com/straylight-ai/crucible/types"
)

// Results carries a metric's named scores. GradingCriteria is the
// subset fed into the recipe's grading scale; most metrics mirror their
// primary score there.
type Results struct {
	Scores          map[string]float64 `json:"scores"`
	GradingCriteria map[string]float64 `json:"grading_criteria"`
}

// Metric computes named numeric scores from one detail group.
type Metric interface {
	// ID returns the metric's plugin id.
	ID() string

	// Name returns a human-readable name.
	Name() string

	// Description explains what the metric measures.
	Description() string

	// GetResults scores the group. The three slices are parallel; the
	// pipeline guarantees equal lengths.
	GetResults(ctx context.Context, prompts []string, predicted []string, targets []types.TargetValue) (Results, error)
}

// Factory builds a metric instance from plugin params.
type Factory func(params map[string]any) (Metric, error)

// ValidateScore rejects scores outside [0,100] or NaN.
func ValidateScore(score float64) error {
	if score != score {
		return fmt.Errorf("score is NaN")
	}
	if score < 0 || score > 100 {
		return fmt.Errorf("score %.4f is out of valid range [0,100]", score)
	}
	return nil
}

// Builtins returns the compiled-in metric factories keyed by id.
func Builtins() map[string]Factory {
	return map[string]Factory{
		"exactstrmatch": func(map[string]any) (Metric, error) { return NewExactStrMatch(), nil },
		"relaxstrmatch": func(map[string]any) (Metric, error) { return NewRelaxStrMatch(), nil },
	}
}
