package pipeline

import (
	"encoding/json"
	"time"

	"github.com/straylight-ai/crucible/types"
)

// DataRow is one completed prompt within a detail group.
type DataRow struct {
	Prompt          string            `json:"prompt"`
	PredictedResult string            `json:"predicted_result"`
	Target          types.TargetValue `json:"target"`
	Duration        float64           `json:"duration"` // seconds
}

// MetricRecord is one metric's output for a detail group. It marshals
// flat: the named scores as top-level keys plus the grading_criteria
// sub-mapping, matching the stable result file format.
type MetricRecord struct {
	Scores          map[string]float64
	GradingCriteria map[string]float64
}

// MarshalJSON flattens scores beside the grading_criteria key.
func (m MetricRecord) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(m.Scores)+1)
	for name, score := range m.Scores {
		flat[name] = score
	}
	flat["grading_criteria"] = m.GradingCriteria
	return json.Marshal(flat)
}

// UnmarshalJSON reverses the flattening.
func (m *MetricRecord) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	m.Scores = map[string]float64{}
	m.GradingCriteria = map[string]float64{}
	for name, raw := range flat {
		if name == "grading_criteria" {
			if err := json.Unmarshal(raw, &m.GradingCriteria); err != nil {
				return err
			}
			continue
		}
		var score float64
		if err := json.Unmarshal(raw, &score); err != nil {
			continue // non-numeric extras are dropped
		}
		m.Scores[name] = score
	}
	return nil
}

// DetailGroup aggregates the completed rows of one
// (model, dataset, prompt template) combination, ordered by
// prompt_index ascending, with the metric outputs and per-criterion
// letter grades.
type DetailGroup struct {
	ModelID          string            `json:"model_id"`
	DatasetID        string            `json:"dataset_id"`
	PromptTemplateID string            `json:"prompt_template_id"`
	Data             []DataRow         `json:"data"`
	Metrics          []MetricRecord    `json:"metrics"`
	Grades           map[string]string `json:"grades,omitempty"`
}

// EvaluationSummary is the recipe-level verdict for one model. Grade is
// null when the recipe carries no grading criteria.
type EvaluationSummary struct {
	ModelID       string  `json:"model_id"`
	NumOfPrompts  int     `json:"num_of_prompts"`
	AvgGradeValue float64 `json:"avg_grade_value"`
	Grade         *string `json:"grade"`
}

// RecipeResult is the benchmark output of one recipe across all
// connectors of the run.
type RecipeResult struct {
	ID                string              `json:"id"`
	Details           []DetailGroup       `json:"details"`
	EvaluationSummary []EvaluationSummary `json:"evaluation_summary"`
	GradingScale      types.GradingScale  `json:"grading_scale,omitempty"`
	TotalNumOfPrompts int                 `json:"total_num_of_prompts"`
}

// Report is the full outcome of a recipe run: the result tree plus the
// failure and cancellation facts the runner folds into run status.
type Report struct {
	Result        RecipeResult
	ErrorMessages []string
	Cancelled     bool
}

// secondsOf converts a duration to the artifact's float seconds.
func secondsOf(d time.Duration) float64 {
	return d.Seconds()
}
