package runner

import (
	"context"
	"fmt"

	"github.com/straylight-ai/crucible/connector"
	"github.com/straylight-ai/crucible/pipeline"
	"github.com/straylight-ai/crucible/registry"
	"github.com/straylight-ai/crucible/types"
)

// benchmarking is the default processing module: it runs every named
// cookbook and recipe through the benchmark pipeline, one recipe at a
// time, fanning each recipe across all runner endpoints.
type benchmarking struct{}

// NewBenchmarkingModule returns the factory registered under the
// "benchmarking" processing-module id.
func NewBenchmarkingModule() ProcessingModule {
	return &benchmarking{}
}

func (b *benchmarking) Name() string { return "benchmarking" }

// workUnit is one cookbook (or the pseudo-cookbook holding the bare
// recipe list) with its resolved recipe ids.
type workUnit struct {
	cookbookID string
	recipes    []string
}

func (b *benchmarking) Run(ctx context.Context, r *Runner, run *types.Run, args types.RunnerArgs) (any, error) {
	if len(args.Recipes) == 0 && len(args.Cookbooks) == 0 {
		return nil, &types.ValidationError{Field: "runner_args", Message: "benchmarking needs recipes or cookbooks"}
	}
	connectors, err := BuildConnectors(r)
	if err != nil {
		return nil, err
	}

	units := make([]workUnit, 0, len(args.Cookbooks)+1)
	for _, cbID := range args.Cookbooks {
		cb, err := r.Store().ReadCookbook(cbID)
		if err != nil {
			return nil, err
		}
		units = append(units, workUnit{cookbookID: cbID, recipes: cb.Recipes})
	}
	if len(args.Recipes) > 0 {
		units = append(units, workUnit{recipes: args.Recipes})
	}

	spec := pipeline.RecipeSpec{
		SelectionPercentage: args.PromptSelectionPercentage,
		RandomSeed:          args.RandomSeed,
	}
	if spec.SelectionPercentage == 0 {
		spec.SelectionPercentage = 1
	}
	bench := pipeline.New(r.Store(), r.Datastore(), r.Registry(), r.Config(), r.Logger(), r.deps.Tracer)

	var tree ResultTree
	for ui, unit := range units {
		var recipeResults []pipeline.RecipeResult
		for ri, recipeID := range unit.recipes {
			r.UpdateProgress(ctx, run, Progress{
				CurrentCookbookIndex: ui, CookbookTotal: len(units),
				CurrentRecipeIndex: ri, RecipeTotal: len(unit.recipes),
			})
			if r.Token().IsSet() {
				break
			}

			report, err := bench.RunRecipe(ctx, recipeID, connectors, spec, r.Token())
			if err != nil {
				return assembleTree(tree, unit, recipeResults), err
			}
			recipeResults = append(recipeResults, report.Result)
			if len(report.ErrorMessages) > 0 {
				run.ErrorMessages = append(run.ErrorMessages, report.ErrorMessages...)
				run.Status = types.RunStatusRunningWithErrors
			}
			r.UpdateProgress(ctx, run, Progress{
				CurrentCookbookIndex: ui, CookbookTotal: len(units),
				CurrentRecipeIndex: ri + 1, RecipeTotal: len(unit.recipes),
			})
			if report.Cancelled {
				return assembleTree(tree, unit, recipeResults), nil
			}
		}
		tree = assembleTree(tree, unit, recipeResults)
	}
	return tree, nil
}

// assembleTree folds one unit's finished recipes into the result tree.
func assembleTree(tree ResultTree, unit workUnit, recipes []pipeline.RecipeResult) ResultTree {
	if len(recipes) == 0 {
		return tree
	}
	if unit.cookbookID == "" {
		tree.Recipes = append(tree.Recipes, recipes...)
		return tree
	}
	tree.Cookbooks = append(tree.Cookbooks, CookbookResult{ID: unit.cookbookID, Recipes: recipes})
	return tree
}

// BuildConnectors turns the runner's endpoints into governed connectors
// using the adapter factories registered by connector_type.
func BuildConnectors(r *Runner) ([]*connector.Connector, error) {
	connectors := make([]*connector.Connector, 0, len(r.Metadata().Endpoints))
	for _, epID := range r.Metadata().Endpoints {
		ep, err := r.Store().ReadEndpoint(epID)
		if err != nil {
			return nil, err
		}
		entry, err := r.Registry().Load(registry.KindConnector, ep.ConnectorType)
		if err != nil {
			return nil, err
		}
		factory, ok := entry.Factory.(connector.Factory)
		if !ok {
			return nil, types.NewError(types.PLUGIN_LOAD_FAILED,
				fmt.Sprintf("connector plugin %s has factory type %T", ep.ConnectorType, entry.Factory))
		}
		adapter, err := factory(ep)
		if err != nil {
			return nil, err
		}
		connectors = append(connectors, connector.New(ep, adapter, r.Config().Connector, r.Logger()))
	}
	return connectors, nil
}
