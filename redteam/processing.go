package redteam

import (
	"context"
	"fmt"

	"github.com/straylight-ai/crucible/metric"
	"github.com/straylight-ai/crucible/registry"
	"github.com/straylight-ai/crucible/runner"
	"github.com/straylight-ai/crucible/types"
)

// DefaultMaxIterations caps automated attacks that declare no stop
// condition of their own.
const DefaultMaxIterations = 5

// AttackResult groups the chat records of one attack invocation (or of
// the single manual round).
type AttackResult struct {
	AttackModule string             `json:"attack_module,omitempty"`
	Records      []types.ChatRecord `json:"chat_records"`
}

// Result is the red-team body of a result artifact.
type Result struct {
	SessionID string         `json:"session_id"`
	Attacks   []AttackResult `json:"attacks"`
}

// processingModule adapts the engine to the runner's processing-module
// contract; it is registered under the "red-teaming" id.
type processingModule struct{}

// NewProcessingModule returns the factory registered under the
// "red-teaming" processing-module id.
func NewProcessingModule() runner.ProcessingModule {
	return &processingModule{}
}

func (m *processingModule) Name() string { return "red-teaming" }

func (m *processingModule) Run(ctx context.Context, r *runner.Runner, run *types.Run, args types.RunnerArgs) (any, error) {
	if args.ManualRTArgs == nil && len(args.AttackStrategies) == 0 {
		return nil, &types.ValidationError{Field: "runner_args", Message: "red-teaming needs manual args or attack strategies"}
	}
	session, err := LoadOrCreateSession(ctx, r.Datastore(), r.Metadata().ID, r.Metadata().Endpoints)
	if err != nil {
		return nil, err
	}
	if args.SystemPrompt != "" && session.SystemPrompt != args.SystemPrompt {
		session.SystemPrompt = args.SystemPrompt
		if err := r.Datastore().SaveSession(ctx, *session); err != nil {
			return nil, err
		}
	}
	connectors, err := runner.BuildConnectors(r)
	if err != nil {
		return nil, err
	}
	engine := NewEngine(session, r.Datastore(), r.Store(), r.Registry(), connectors, r.Logger(), r.Token())

	result := Result{SessionID: session.SessionID}

	if manual := args.ManualRTArgs; manual != nil {
		records, err := engine.SendPromptToAllLLM(ctx, manual.Prompt, Preparation{
			ContextStrategy:    manual.ContextStrategy,
			CSNumOfPrevPrompts: manual.CSNumOfPrevPrompts,
			PromptTemplate:     manual.PromptTemplate,
		})
		if err != nil {
			run.ErrorMessages = append(run.ErrorMessages, err.Error())
			return result, nil
		}
		result.Attacks = append(result.Attacks, AttackResult{Records: records})
		return result, nil
	}

	for _, strategy := range args.AttackStrategies {
		if r.Token().IsSet() {
			break
		}
		records, err := m.runStrategy(ctx, r, engine, args, strategy)
		result.Attacks = append(result.Attacks, AttackResult{
			AttackModule: strategy.AttackModule,
			Records:      records,
		})
		if err != nil {
			run.ErrorMessages = append(run.ErrorMessages,
				fmt.Sprintf("attack %s: %v", strategy.AttackModule, err))
		}
	}
	return result, nil
}

// runStrategy resolves and executes one attack spec.
func (m *processingModule) runStrategy(ctx context.Context, r *runner.Runner, engine *Engine, args types.RunnerArgs, strategy types.AttackStrategy) ([]types.ChatRecord, error) {
	entry, err := r.Registry().Load(registry.KindAttackModule, strategy.AttackModule)
	if err != nil {
		return nil, err
	}
	factory, ok := entry.Factory.(AttackFactory)
	if !ok {
		return nil, types.NewError(types.PLUGIN_LOAD_FAILED,
			fmt.Sprintf("attack module %s has factory type %T", strategy.AttackModule, entry.Factory))
	}
	params := mergeParams(entry.Params, strategy.Params)
	module, err := factory(params)
	if err != nil {
		return nil, err
	}

	metrics, err := buildMetrics(r.Registry(), strategy.Metrics)
	if err != nil {
		return nil, err
	}
	maxIterations := strategy.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	stop, err := NewStopCondition(maxIterations, strategy.Thresholds, strategy.StopExpression, r.Logger())
	if err != nil {
		return nil, err
	}

	templateID := ""
	if len(strategy.PromptTemplates) > 0 {
		templateID = strategy.PromptTemplates[0]
	}
	attackArgs := &AttackArguments{
		Prompt:  strategy.Prompt,
		Metrics: metrics,
		Preparation: Preparation{
			ContextStrategy: strategy.ContextStrategy,
			PromptTemplate:  templateID,
		},
		Params: params,
		Seed:   args.RandomSeed,
		engine: engine,
		stop:   stop,
		logger: r.Logger().With("attack", strategy.AttackModule),
	}
	return module.Execute(ctx, attackArgs)
}

func buildMetrics(reg *registry.Registry, ids []string) ([]metric.Metric, error) {
	var out []metric.Metric
	for _, id := range ids {
		entry, err := reg.Load(registry.KindMetric, id)
		if err != nil {
			return nil, err
		}
		factory, ok := entry.Factory.(metric.Factory)
		if !ok {
			return nil, types.NewError(types.PLUGIN_LOAD_FAILED,
				fmt.Sprintf("metric plugin %s has factory type %T", id, entry.Factory))
		}
		m, err := factory(entry.Params)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// mergeParams overlays strategy params on manifest params.
func mergeParams(base, overlay map[string]any) map[string]any {
	if len(base) == 0 {
		return overlay
	}
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
