// Package pipeline executes benchmark recipes: it expands prompts, fans
// them out across governed connectors with at-most-once prediction per
// cache key, scores the regrouped results with the recipe's metrics and
// grades them through the recipe's scale.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/straylight-ai/crucible/artifact"
	"github.com/straylight-ai/crucible/config"
	"github.com/straylight-ai/crucible/connector"
	"github.com/straylight-ai/crucible/datastore"
	"github.com/straylight-ai/crucible/metric"
	"github.com/straylight-ai/crucible/prompt"
	"github.com/straylight-ai/crucible/registry"
	"github.com/straylight-ai/crucible/types"
)

// Benchmark runs recipes against a set of connectors, backed by one
// prompt cache. It is stateless between RunRecipe calls.
type Benchmark struct {
	store  *artifact.Store
	cache  datastore.PromptCache
	reg    *registry.Registry
	cfg    config.Config
	logger *slog.Logger
	tracer trace.Tracer
}

// New builds a benchmark pipeline.
func New(store *artifact.Store, cache datastore.PromptCache, reg *registry.Registry, cfg config.Config, logger *slog.Logger, tracer trace.Tracer) *Benchmark {
	if logger == nil {
		logger = slog.Default()
	}
	return &Benchmark{store: store, cache: cache, reg: reg, cfg: cfg, logger: logger, tracer: tracer}
}

// RecipeSpec carries the per-run expansion knobs.
type RecipeSpec struct {
	SelectionPercentage float64
	RandomSeed          int64
}

// completed is one finished prompt×connector unit.
type completed struct {
	connID string
	args   types.PromptArguments
}

// groupKey identifies a detail group.
type groupKey struct {
	modelID    string
	datasetID  string
	templateID string
}

// RunRecipe executes one recipe across all connectors. Per-prompt
// failures are collected into the report; template, metric and database
// failures are fatal and returned as an error. A set cancellation token
// abandons pending prompts but keeps every completed row.
func (b *Benchmark) RunRecipe(ctx context.Context, recipeID string, connectors []*connector.Connector, spec RecipeSpec, token *types.CancellationToken) (Report, error) {
	if b.tracer != nil {
		var span trace.Span
		ctx, span = b.tracer.Start(ctx, "pipeline.benchmark")
		defer span.End()
	}
	if len(connectors) == 0 {
		return Report{}, &types.ValidationError{Field: "connectors", Message: "at least one connector is required"}
	}
	if token == nil {
		token = types.NewCancellationToken()
	}

	recipe, err := b.store.ReadRecipe(recipeID)
	if err != nil {
		return Report{}, err
	}

	prompts, err := b.expand(recipe, spec)
	if err != nil {
		return Report{}, err
	}
	b.logger.Info("recipe expanded",
		"recipe", recipeID, "prompts", len(prompts), "connectors", len(connectors))

	results, errMessages, err := b.fanOut(ctx, prompts, connectors, token)
	if err != nil {
		return Report{}, err
	}

	groups, err := b.score(ctx, recipe, results)
	if err != nil {
		return Report{}, err
	}

	result := RecipeResult{
		ID:                recipe.ID,
		Details:           groups,
		EvaluationSummary: summarize(groups, recipe.GradingScale),
		GradingScale:      recipe.GradingScale,
		TotalNumOfPrompts: len(prompts),
	}
	return Report{Result: result, ErrorMessages: errMessages, Cancelled: token.IsSet()}, nil
}

// expand drains the prompt generator eagerly; the pipeline needs the
// full set to size the fan-out.
func (b *Benchmark) expand(recipe types.Recipe, spec RecipeSpec) ([]types.PromptArguments, error) {
	gen, err := prompt.NewGenerator(b.store, prompt.Spec{
		RecipeID:            recipe.ID,
		DatasetIDs:          recipe.Datasets,
		PromptTemplateIDs:   recipe.PromptTemplates,
		SelectionPercentage: spec.SelectionPercentage,
		RandomSeed:          spec.RandomSeed,
	}, b.logger)
	if err != nil {
		return nil, err
	}
	defer gen.Close()

	var out []types.PromptArguments
	for {
		args, ok, err := gen.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, args)
	}
}

// fanOut dispatches every prompt to every connector through the cache
// protocol. Per-prompt failures become error messages; database errors
// abort the whole group.
func (b *Benchmark) fanOut(ctx context.Context, prompts []types.PromptArguments, connectors []*connector.Connector, token *types.CancellationToken) ([]completed, []string, error) {
	g, ctx := errgroup.WithContext(ctx)

	// bound in-flight tasks by the aggregate connector concurrency so
	// the dispatch loop below observes cancellation between tasks
	limit := 0
	for _, conn := range connectors {
		c := conn.Endpoint().MaxConcurrency
		if c < 1 {
			c = 1
		}
		limit += c
	}
	g.SetLimit(limit)

	var (
		results []completed
		errs    []string
		flight  singleflight.Group
	)
	collect := make(chan completed, len(prompts)*len(connectors))
	failures := make(chan string, len(prompts)*len(connectors))

dispatch:
	for _, conn := range connectors {
		for _, args := range prompts {
			// checked before each new dispatch
			if token.IsSet() {
				break dispatch
			}
			conn, args := conn, args
			g.Go(func() error {
				if token.IsSet() {
					return nil
				}
				item, failMsg, err := b.runOne(ctx, &flight, conn, args, token)
				if err != nil {
					return err
				}
				if failMsg != "" {
					failures <- failMsg
					return nil
				}
				if item != nil {
					collect <- *item
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	close(collect)
	close(failures)
	for item := range collect {
		results = append(results, item)
	}
	for msg := range failures {
		errs = append(errs, msg)
	}
	sort.Strings(errs)
	return results, errs, nil
}

// flightOutcome is the shared result of resolving one cache key: a
// replayed or fresh prediction, a replayed failure marker, or the
// connector error itself.
type flightOutcome struct {
	predicted     string
	duration      time.Duration
	cachedFailure string
	callErr       error
}

// flightKey serializes a cache key for singleflight grouping.
func flightKey(k datastore.CacheKey) string {
	return k.RecipeID + "\x00" + k.ConnectorID + "\x00" + k.PromptTemplateID + "\x00" + k.Prompt
}

// runOne applies the cache protocol to a single prompt×connector unit.
// A nil item with empty failMsg means the prompt was abandoned by
// cancellation; failMsg is non-empty for a per-prompt failure; err is
// reserved for fatal database problems. Concurrent duplicates of one
// cache key share a single resolution so the connector is called at
// most once per key.
func (b *Benchmark) runOne(ctx context.Context, flight *singleflight.Group, conn *connector.Connector, args types.PromptArguments, token *types.CancellationToken) (*completed, string, error) {
	targetJSON, err := json.Marshal(args.Target)
	if err != nil {
		return nil, "", types.WrapError(types.PIPELINE_FATAL, "encoding target", err)
	}
	key := datastore.CacheKey{
		RecipeID:         args.RecipeID,
		ConnectorID:      conn.ID(),
		PromptTemplateID: args.PromptTemplateID,
		Prompt:           args.Prompt,
	}

	v, err, _ := flight.Do(flightKey(key), func() (any, error) {
		return b.resolveKey(ctx, conn, key, args, string(targetJSON), token)
	})
	if err != nil {
		return nil, "", err
	}
	out := v.(flightOutcome)

	switch {
	case out.callErr != nil:
		if types.HasCode(out.callErr, types.RUN_CANCELLED) {
			return nil, "", nil // abandoned, not failed
		}
		return nil, fmt.Sprintf("connector %s, prompt %d of %s/%s: %v",
			conn.ID(), args.PromptIndex, args.DatasetID, args.PromptTemplateID, out.callErr), nil
	case out.cachedFailure != "":
		return nil, fmt.Sprintf("connector %s, prompt %d of %s/%s: %s (cached failure)",
			conn.ID(), args.PromptIndex, args.DatasetID, args.PromptTemplateID, out.cachedFailure), nil
	}

	args.Predicted = out.predicted
	args.Duration = out.duration
	args.ConnectorID = conn.ID()
	return &completed{connID: conn.ID(), args: args}, "", nil
}

// resolveKey performs the cache read, the governed call on a miss, and
// the cache write. It runs once per in-flight cache key; the error
// return is reserved for fatal database problems.
func (b *Benchmark) resolveKey(ctx context.Context, conn *connector.Connector, key datastore.CacheKey, args types.PromptArguments, targetJSON string, token *types.CancellationToken) (flightOutcome, error) {
	lookup, err := b.cache.Read(ctx, key, targetJSON)
	if err != nil {
		return flightOutcome{}, err
	}
	switch lookup.State {
	case datastore.LookupHit:
		return flightOutcome{predicted: lookup.Row.Predicted, duration: lookup.Row.Duration}, nil
	case datastore.LookupFailed:
		if !b.cfg.Cache.RetryFailedRows {
			return flightOutcome{cachedFailure: lookup.Row.ErrorMessage}, nil
		}
		// fall through to a fresh attempt
	}

	pred, err := conn.GetResponse(ctx, args.Prompt)
	if err != nil {
		if types.HasCode(err, types.RUN_CANCELLED) {
			return flightOutcome{callErr: err}, nil
		}
		row := datastore.CacheRow{
			CacheKey:     key,
			DatasetID:    args.DatasetID,
			PromptIndex:  args.PromptIndex,
			Target:       targetJSON,
			ErrorMessage: err.Error(),
		}
		if !token.IsSet() {
			if werr := b.cache.Write(ctx, row); werr != nil {
				return flightOutcome{}, werr
			}
		}
		return flightOutcome{callErr: err}, nil
	}

	// checked before each cache write; a completed prediction still
	// enters the partial results even when the write is skipped
	if !token.IsSet() {
		row := datastore.CacheRow{
			CacheKey:    key,
			DatasetID:   args.DatasetID,
			PromptIndex: args.PromptIndex,
			Target:      targetJSON,
			Predicted:   pred.Text,
			Duration:    pred.Duration,
		}
		if err := b.cache.Write(ctx, row); err != nil {
			return flightOutcome{}, err
		}
	}
	return flightOutcome{predicted: pred.Text, duration: pred.Duration}, nil
}

// score regroups completed units into detail groups and runs every
// recipe metric once per group. Metric failures are fatal.
func (b *Benchmark) score(ctx context.Context, recipe types.Recipe, results []completed) ([]DetailGroup, error) {
	metrics, err := b.buildMetrics(recipe.Metrics)
	if err != nil {
		return nil, err
	}

	grouped := map[groupKey][]types.PromptArguments{}
	for _, item := range results {
		k := groupKey{modelID: item.connID, datasetID: item.args.DatasetID, templateID: item.args.PromptTemplateID}
		grouped[k] = append(grouped[k], item.args)
	}
	keys := make([]groupKey, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].modelID != keys[j].modelID {
			return keys[i].modelID < keys[j].modelID
		}
		if keys[i].datasetID != keys[j].datasetID {
			return keys[i].datasetID < keys[j].datasetID
		}
		return keys[i].templateID < keys[j].templateID
	})

	var groups []DetailGroup
	for _, k := range keys {
		rows := grouped[k]
		sort.Slice(rows, func(i, j int) bool { return rows[i].PromptIndex < rows[j].PromptIndex })

		prompts := make([]string, len(rows))
		predicted := make([]string, len(rows))
		targets := make([]types.TargetValue, len(rows))
		data := make([]DataRow, len(rows))
		for i, r := range rows {
			prompts[i] = r.Prompt
			predicted[i] = r.Predicted
			targets[i] = r.Target
			data[i] = DataRow{
				Prompt:          r.Prompt,
				PredictedResult: r.Predicted,
				Target:          r.Target,
				Duration:        secondsOf(r.Duration),
			}
		}

		group := DetailGroup{
			ModelID:          k.modelID,
			DatasetID:        k.datasetID,
			PromptTemplateID: k.templateID,
			Data:             data,
			Grades:           map[string]string{},
		}
		for _, m := range metrics {
			res, err := m.GetResults(ctx, prompts, predicted, targets)
			if err != nil {
				return nil, types.WrapError(types.PIPELINE_FATAL,
					"metric "+m.ID()+" failed on group "+k.modelID+"/"+k.datasetID, err)
			}
			group.Metrics = append(group.Metrics, MetricRecord{
				Scores:          res.Scores,
				GradingCriteria: res.GradingCriteria,
			})
			for criterion, value := range res.GradingCriteria {
				if letter, ok := recipe.GradingScale.Grade(value); ok {
					group.Grades[criterion] = letter
				}
			}
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// buildMetrics resolves the recipe's metric ids through the registry.
func (b *Benchmark) buildMetrics(ids []string) ([]metric.Metric, error) {
	var out []metric.Metric
	for _, id := range ids {
		entry, err := b.reg.Load(registry.KindMetric, id)
		if err != nil {
			return nil, types.WrapError(types.PIPELINE_FATAL, "resolving metric "+id, err)
		}
		factory, ok := entry.Factory.(metric.Factory)
		if !ok {
			return nil, types.NewError(types.PLUGIN_LOAD_FAILED,
				fmt.Sprintf("metric plugin %s has factory type %T", id, entry.Factory))
		}
		m, err := factory(entry.Params)
		if err != nil {
			return nil, types.WrapError(types.PIPELINE_FATAL, "building metric "+id, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// summarize computes the per-model recipe verdict: the arithmetic mean
// of every grading criterion value across the model's groups, mapped
// once through the scale. An empty criterion set grades to null.
func summarize(groups []DetailGroup, scale types.GradingScale) []EvaluationSummary {
	type acc struct {
		sum     float64
		count   int
		prompts int
	}
	byModel := map[string]*acc{}
	var order []string
	for _, g := range groups {
		a, ok := byModel[g.ModelID]
		if !ok {
			a = &acc{}
			byModel[g.ModelID] = a
			order = append(order, g.ModelID)
		}
		a.prompts += len(g.Data)
		for _, m := range g.Metrics {
			for _, value := range m.GradingCriteria {
				a.sum += value
				a.count++
			}
		}
	}
	sort.Strings(order)

	summaries := make([]EvaluationSummary, 0, len(order))
	for _, model := range order {
		a := byModel[model]
		s := EvaluationSummary{ModelID: model, NumOfPrompts: a.prompts}
		if a.count > 0 {
			s.AvgGradeValue = a.sum / float64(a.count)
			if letter, ok := scale.Grade(s.AvgGradeValue); ok {
				s.Grade = &letter
			}
		}
		summaries = append(summaries, s)
	}
	return summaries
}
