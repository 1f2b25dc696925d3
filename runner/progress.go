package runner

import (
	"slices"

	"github.com/straylight-ai/crucible/types"
)

// Progress is a point-in-time snapshot of a run. The aggregate percent
// is the cookbook fraction plus the recipe fraction within the current
// cookbook, capped at 100.
type Progress struct {
	RunID                int64           `json:"run_id"`
	CurrentCookbookIndex int             `json:"current_cookbook_index"`
	CookbookTotal        int             `json:"cookbook_total"`
	CurrentRecipeIndex   int             `json:"current_recipe_index"`
	RecipeTotal          int             `json:"recipe_total"`
	Duration             float64         `json:"duration"`
	Status               types.RunStatus `json:"status"`
	ErrorMessages        []string        `json:"error_messages"`
}

// Percent computes the aggregate completion percentage.
func (p Progress) Percent() float64 {
	if p.CookbookTotal == 0 {
		return 0
	}
	pct := float64(p.CurrentCookbookIndex) / float64(p.CookbookTotal) * 100
	if p.RecipeTotal > 0 {
		pct += float64(p.CurrentRecipeIndex) / float64(p.RecipeTotal) * 100 / float64(p.CookbookTotal)
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

// equal reports whether two snapshots carry the same observable state;
// duration alone does not count as a change.
func (p Progress) equal(other Progress) bool {
	return p.RunID == other.RunID &&
		p.CurrentCookbookIndex == other.CurrentCookbookIndex &&
		p.CookbookTotal == other.CookbookTotal &&
		p.CurrentRecipeIndex == other.CurrentRecipeIndex &&
		p.RecipeTotal == other.RecipeTotal &&
		p.Status == other.Status &&
		slices.Equal(p.ErrorMessages, other.ErrorMessages)
}

// ProgressCallback observes coalesced progress snapshots.
type ProgressCallback func(Progress)
