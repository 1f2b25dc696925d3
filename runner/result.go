package runner

import (
	"github.com/straylight-ai/crucible/pipeline"
	"github.com/straylight-ai/crucible/types"
)

// ResultMetadata is the header of a persisted run result artifact.
type ResultMetadata struct {
	ID                        string          `json:"id"`
	StartTime                 string          `json:"start_time"`
	EndTime                   string          `json:"end_time"`
	Duration                  float64         `json:"duration"`
	Status                    types.RunStatus `json:"status"`
	Recipes                   []string        `json:"recipes"`
	Cookbooks                 []string        `json:"cookbooks"`
	Endpoints                 []string        `json:"endpoints"`
	PromptSelectionPercentage float64         `json:"prompt_selection_percentage"`
	RandomSeed                int64           `json:"random_seed"`
	SystemPrompt              string          `json:"system_prompt"`
}

// CookbookResult groups the recipe results of one cookbook.
type CookbookResult struct {
	ID      string                  `json:"id"`
	Recipes []pipeline.RecipeResult `json:"recipes"`
}

// ResultTree is the body of a result artifact. Exactly one of Recipes
// or Cookbooks is populated for benchmark runs.
type ResultTree struct {
	Recipes   []pipeline.RecipeResult `json:"recipes,omitempty"`
	Cookbooks []CookbookResult        `json:"cookbooks,omitempty"`
}

// ResultArtifact is the stable on-disk result file format. Results is
// a ResultTree for benchmark runs and the red-team engine's own tree
// for red-team runs.
type ResultArtifact struct {
	Metadata ResultMetadata `json:"metadata"`
	Results  any            `json:"results"`
}
