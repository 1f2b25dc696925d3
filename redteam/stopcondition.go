package redteam

import (
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/straylight-ai/crucible/types"
)

// StopCondition decides when an automated attack stops iterating. Any
// satisfied clause stops the attack: the iteration cap, a metric score
// crossing its threshold, or a custom CEL expression over the round
// state.
type StopCondition struct {
	maxIterations int
	thresholds    map[string]float64
	program       cel.Program
	logger        *slog.Logger
}

// NewStopCondition compiles the optional CEL expression. The expression
// sees `iteration` (int), `scores` (map[string]double) and
// `last_response` (string) and must evaluate to a bool.
func NewStopCondition(maxIterations int, thresholds map[string]float64, expression string, logger *slog.Logger) (*StopCondition, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &StopCondition{
		maxIterations: maxIterations,
		thresholds:    thresholds,
		logger:        logger,
	}
	if expression == "" {
		return s, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("iteration", cel.IntType),
		cel.Variable("scores", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("last_response", cel.StringType),
	)
	if err != nil {
		return nil, types.WrapError(types.PIPELINE_FATAL, "building stop-condition environment", err)
	}
	ast, iss := env.Compile(expression)
	if iss != nil && iss.Err() != nil {
		return nil, types.WrapError(types.PIPELINE_FATAL, "compiling stop condition "+expression, iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, types.WrapError(types.PIPELINE_FATAL, "planning stop condition", err)
	}
	s.program = prg
	return s, nil
}

// Met reports whether any stop clause holds after the given completed
// iteration. A CEL evaluation error logs and counts as not met.
func (s *StopCondition) Met(iteration int, scores map[string]float64, lastResponse string) bool {
	if s.maxIterations > 0 && iteration >= s.maxIterations {
		return true
	}
	for name, threshold := range s.thresholds {
		if score, ok := scores[name]; ok && score >= threshold {
			return true
		}
	}
	if s.program != nil {
		out, _, err := s.program.Eval(map[string]any{
			"iteration":     iteration,
			"scores":        scores,
			"last_response": lastResponse,
		})
		if err != nil {
			s.logger.Warn("stop-condition expression failed", "error", err)
			return false
		}
		if stop, ok := out.Value().(bool); ok {
			return stop
		}
	}
	return false
}
