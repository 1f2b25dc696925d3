// Package augment derives adversarial copies of datasets and recipes
// by running every example input through an attack module's
// perturbation. Augmented artifacts get the id
// <source>-<attack_module> and behave like any other artifact.
package augment

import (
	"fmt"
	"log/slog"

	"github.com/straylight-ai/crucible/artifact"
	"github.com/straylight-ai/crucible/redteam"
	"github.com/straylight-ai/crucible/types"
)

// perturbations maps attack-module ids to their single-turn rewrite.
var perturbations = map[string]redteam.Perturbation{
	"charswap_attack":  redteam.CharSwap,
	"homoglyph_attack": redteam.Homoglyph,
}

// Augmentor creates perturbed dataset and recipe copies.
type Augmentor struct {
	store  *artifact.Store
	logger *slog.Logger
	seed   int64
}

// New builds an augmentor. The seed makes augmentation reproducible.
func New(store *artifact.Store, seed int64, logger *slog.Logger) *Augmentor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Augmentor{store: store, logger: logger, seed: seed}
}

// Dataset writes a perturbed copy of the dataset, one rewritten input
// per example, and returns the new dataset id. Targets are untouched.
func (a *Augmentor) Dataset(datasetID, attackModuleID string) (string, error) {
	perturb, ok := perturbations[attackModuleID]
	if !ok {
		return "", types.NewError(types.PLUGIN_NOT_FOUND,
			fmt.Sprintf("attack module %s has no augmentation perturbation", attackModuleID))
	}

	stream, err := a.store.StreamDataset(datasetID)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var examples []types.DatasetExample
	for i := 0; ; i++ {
		ex, ok, err := stream.Next()
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		ex.Input = perturb(ex.Input, a.seed, i)
		examples = append(examples, ex)
	}

	dataset := types.Dataset{
		Name:        datasetID + "-" + attackModuleID,
		Description: fmt.Sprintf("Augmented copy of %s via %s", datasetID, attackModuleID),
		Examples:    examples,
	}
	newID, err := a.store.CreateDataset(dataset)
	if err != nil {
		return "", err
	}
	a.logger.Info("dataset augmented",
		"source", datasetID, "attack_module", attackModuleID, "examples", len(examples))
	return newID, nil
}

// Recipe writes a copy of the recipe pointing at augmented versions of
// every dataset, augmenting each dataset first, and returns the new
// recipe id.
func (a *Augmentor) Recipe(recipeID, attackModuleID string) (string, error) {
	recipe, err := a.store.ReadRecipe(recipeID)
	if err != nil {
		return "", err
	}

	augmented := make([]string, 0, len(recipe.Datasets))
	for _, dsID := range recipe.Datasets {
		newDS, err := a.Dataset(dsID, attackModuleID)
		if err != nil {
			return "", err
		}
		augmented = append(augmented, newDS)
	}

	recipe.ID = ""
	recipe.Name = recipeID + "-" + attackModuleID
	recipe.Description = fmt.Sprintf("Augmented copy of %s via %s", recipeID, attackModuleID)
	recipe.Datasets = augmented
	recipe.Stats = nil
	return a.store.CreateRecipe(recipe)
}
