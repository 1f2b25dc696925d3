package metric

import (
	"context"
	"strings"
	"unicode"

	"github.com/straylight-ai/crucible/types"
)

// ExactStrMatch scores the percentage of predictions that exactly equal
// one of their acceptable targets.
type ExactStrMatch struct{}

// NewExactStrMatch builds the metric.
func NewExactStrMatch() *ExactStrMatch {
	return &ExactStrMatch{}
}

func (m *ExactStrMatch) ID() string   { return "exactstrmatch" }
func (m *ExactStrMatch) Name() string { return "ExactStrMatch" }

func (m *ExactStrMatch) Description() string {
	return "Percentage of predicted results that exactly match a target."
}

// GetResults implements Metric.
func (m *ExactStrMatch) GetResults(ctx context.Context, prompts []string, predicted []string, targets []types.TargetValue) (Results, error) {
	correct := 0
	for i, p := range predicted {
		if targets[i].Matches(p) {
			correct++
		}
	}
	score := 0.0
	if len(predicted) > 0 {
		score = float64(correct) / float64(len(predicted)) * 100
	}
	return Results{
		Scores:          map[string]float64{"exact_str_match": score},
		GradingCriteria: map[string]float64{"exact_str_match": score},
	}, nil
}

// RelaxStrMatch scores the percentage of predictions that contain a
// target after lowercasing and stripping punctuation, tolerating
// verbose model output around the answer.
type RelaxStrMatch struct{}

// NewRelaxStrMatch builds the metric.
func NewRelaxStrMatch() *RelaxStrMatch {
	return &RelaxStrMatch{}
}

func (m *RelaxStrMatch) ID() string   { return "relaxstrmatch" }
func (m *RelaxStrMatch) Name() string { return "RelaxStrMatch" }

func (m *RelaxStrMatch) Description() string {
	return "Percentage of predicted results containing a target after normalization."
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// GetResults implements Metric.
func (m *RelaxStrMatch) GetResults(ctx context.Context, prompts []string, predicted []string, targets []types.TargetValue) (Results, error) {
	correct := 0
	for i, p := range predicted {
		norm := normalize(p)
		for _, target := range targets[i].Values() {
			nt := normalize(target)
			if nt != "" && strings.Contains(norm, nt) {
				correct++
				break
			}
		}
	}
	score := 0.0
	if len(predicted) > 0 {
		score = float64(correct) / float64(len(predicted)) * 100
	}
	return Results{
		Scores:          map[string]float64{"relax_str_match": score},
		GradingCriteria: map[string]float64{"relax_str_match": score},
	}, nil
}
