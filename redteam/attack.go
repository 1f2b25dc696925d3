package redteam

import (
	"context"
	"log/slog"

	"github.com/straylight-ai/crucible/metric"
	"github.com/straylight-ai/crucible/types"
)

// AttackArguments is the prepared bundle handed to an attack module:
// the dispatch surface, scoring metrics, stop condition and shared
// cancellation token.
type AttackArguments struct {
	Prompt      string
	Metrics     []metric.Metric
	Preparation Preparation
	Params      map[string]any
	Seed        int64

	engine *Engine
	stop   *StopCondition
	logger *slog.Logger
}

// SendPromptToAllLLM dispatches one round to every session endpoint.
func (a *AttackArguments) SendPromptToAllLLM(ctx context.Context, userPrompt string) ([]types.ChatRecord, error) {
	return a.engine.SendPromptToAllLLM(ctx, userPrompt, a.Preparation)
}

// CheckStopCondition reports whether iteration should stop after the
// given completed round.
func (a *AttackArguments) CheckStopCondition(iteration int, scores map[string]float64, lastResponse string) bool {
	return a.stop.Met(iteration, scores, lastResponse)
}

// Cancelled reports whether the shared token fired.
func (a *AttackArguments) Cancelled() bool {
	return a.engine.Token().IsSet()
}

// Logger returns the attack-scoped logger.
func (a *AttackArguments) Logger() *slog.Logger { return a.logger }

// ScoreRound runs every configured metric over one round's records and
// merges their grading criteria into a flat score map.
func (a *AttackArguments) ScoreRound(ctx context.Context, records []types.ChatRecord) (map[string]float64, error) {
	scores := map[string]float64{}
	if len(a.Metrics) == 0 || len(records) == 0 {
		return scores, nil
	}
	prompts := make([]string, len(records))
	predicted := make([]string, len(records))
	targets := make([]types.TargetValue, len(records))
	for i, rec := range records {
		prompts[i] = rec.PreparedPrompt
		predicted[i] = rec.Predicted
	}
	for _, m := range a.Metrics {
		res, err := m.GetResults(ctx, prompts, predicted, targets)
		if err != nil {
			return nil, err
		}
		for name, value := range res.GradingCriteria {
			scores[name] = value
		}
	}
	return scores, nil
}

// AttackModule is the automated red-team plugin interface. Execute
// issues as many rounds as it wants through args and returns the chat
// records it produced.
type AttackModule interface {
	ID() string
	Execute(ctx context.Context, args *AttackArguments) ([]types.ChatRecord, error)
}

// AttackFactory builds an attack module from plugin params.
type AttackFactory func(params map[string]any) (AttackModule, error)

// Perturbation is a deterministic single-prompt rewrite, the core of
// the perturbation attack family and of dataset augmentation.
type Perturbation func(text string, seed int64, iteration int) string

// perturbationAttack iterates a perturbation over the base prompt until
// a stop condition holds.
type perturbationAttack struct {
	id      string
	perturb Perturbation
}

// NewCharSwapAttack builds the builtin "charswap_attack" module.
func NewCharSwapAttack() AttackModule {
	return &perturbationAttack{id: "charswap_attack", perturb: CharSwap}
}

// NewHomoglyphAttack builds the builtin "homoglyph_attack" module.
func NewHomoglyphAttack() AttackModule {
	return &perturbationAttack{id: "homoglyph_attack", perturb: Homoglyph}
}

func (m *perturbationAttack) ID() string { return m.id }

// Execute runs one round per iteration: perturb, dispatch, score,
// check the stop condition. Cancellation is observed between rounds.
func (m *perturbationAttack) Execute(ctx context.Context, args *AttackArguments) ([]types.ChatRecord, error) {
	var all []types.ChatRecord
	for iteration := 1; ; iteration++ {
		if args.Cancelled() {
			return all, nil
		}
		variant := m.perturb(args.Prompt, args.Seed, iteration)
		records, err := args.SendPromptToAllLLM(ctx, variant)
		if err != nil {
			return all, err
		}
		all = append(all, records...)

		scores, err := args.ScoreRound(ctx, records)
		if err != nil {
			return all, err
		}
		lastResponse := ""
		if len(records) > 0 {
			lastResponse = records[len(records)-1].Predicted
		}
		args.Logger().Info("attack round finished",
			"module", m.id, "iteration", iteration, "scores", scores)
		if args.CheckStopCondition(iteration, scores, lastResponse) {
			return all, nil
		}
	}
}
