package types

import "time"

// NoTemplateID marks prompts emitted without a prompt template.
const NoTemplateID = "no-template"

// PromptArguments is the unit of work flowing through the benchmark
// pipeline. (RecipeID, ConnectorID, PromptTemplateID, PromptIndex)
// uniquely identifies a request within a run; the cache key replaces
// PromptIndex with the rendered prompt text so template or dataset
// edits invalidate prior predictions.
type PromptArguments struct {
	ConnectorID      string        `json:"conn_id"`
	RecipeID         string        `json:"rec_id"`
	DatasetID        string        `json:"ds_id"`
	PromptTemplateID string        `json:"pt_id"`
	PromptIndex      int           `json:"prompt_index"`
	Prompt           string        `json:"prompt"`
	Target           TargetValue   `json:"target"`
	Predicted        string        `json:"predicted_result"`
	Duration         time.Duration `json:"duration"`
}
