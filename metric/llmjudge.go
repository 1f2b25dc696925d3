package metric

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/straylight-ai/crucible/types"
)

// Completer is the minimal interface the judge metric needs to call a
// model. connector.Adapter satisfies it, as does any harness wrapper.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMJudgeOptions configures an LLM-as-judge metric.
type LLMJudgeOptions struct {
	// Provider is the model used for judging (required).
	Provider Completer

	// Rubric describes what a correct answer looks like (required).
	Rubric string

	// MaxRetries bounds re-asks on malformed JSON replies (default 3).
	MaxRetries int
}

// LLMJudge scores each prediction by asking another model to grade it
// against a rubric, then averages the per-row verdicts into one
// percentage score.
type LLMJudge struct {
	provider   Completer
	rubric     string
	maxRetries int
}

// judgeVerdict is the JSON reply the judge model is instructed to emit.
type judgeVerdict struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

const judgePromptTemplate = `You are grading a model's answer against a rubric.

Question:
%s

Expected answer(s):
%s

Model answer:
%s

Rubric:
%s

Respond with valid JSON only: {"score": <0.0-1.0>, "reasoning": "<one sentence>"}`

// NewLLMJudge builds the metric. Provider and Rubric are required.
func NewLLMJudge(opts LLMJudgeOptions) (*LLMJudge, error) {
	if opts.Provider == nil {
		return nil, &types.ValidationError{Field: "provider", Message: "llm judge metric requires a provider"}
	}
	if opts.Rubric == "" {
		return nil, &types.ValidationError{Field: "rubric", Message: "llm judge metric requires a rubric"}
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	return &LLMJudge{
		provider:   opts.Provider,
		rubric:     opts.Rubric,
		maxRetries: maxRetries,
	}, nil
}

func (m *LLMJudge) ID() string   { return "llmjudge" }
func (m *LLMJudge) Name() string { return "LLMJudge" }

func (m *LLMJudge) Description() string {
	return "Grades each predicted result with a judge model against a rubric."
}

// GetResults implements Metric. Any judge call that fails after retries
// fails the whole metric; the pipeline treats that as fatal.
func (m *LLMJudge) GetResults(ctx context.Context, prompts []string, predicted []string, targets []types.TargetValue) (Results, error) {
	total := 0.0
	for i := range predicted {
		verdict, err := m.judgeOne(ctx, prompts[i], predicted[i], targets[i])
		if err != nil {
			return Results{}, fmt.Errorf("judging row %d: %w", i, err)
		}
		total += verdict
	}
	score := 0.0
	if len(predicted) > 0 {
		score = total / float64(len(predicted)) * 100
	}
	if err := ValidateScore(score); err != nil {
		return Results{}, err
	}
	return Results{
		Scores:          map[string]float64{"llm_judge": score},
		GradingCriteria: map[string]float64{"llm_judge": score},
	}, nil
}

func (m *LLMJudge) judgeOne(ctx context.Context, prompt, prediction string, target types.TargetValue) (float64, error) {
	ask := fmt.Sprintf(judgePromptTemplate,
		prompt, strings.Join(target.Values(), "\n"), prediction, m.rubric)

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		reply, err := m.provider.Complete(ctx, ask)
		if err != nil {
			return 0, err
		}
		verdict, err := parseVerdict(reply)
		if err != nil {
			lastErr = err
			continue
		}
		if verdict.Score < 0 || verdict.Score > 1 {
			lastErr = fmt.Errorf("judge score %.4f outside [0,1]", verdict.Score)
			continue
		}
		return verdict.Score, nil
	}
	return 0, fmt.Errorf("judge reply unusable after %d attempts: %w", m.maxRetries+1, lastErr)
}

// parseVerdict extracts the verdict JSON, tolerating markdown fences
// and surrounding prose.
func parseVerdict(content string) (judgeVerdict, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		return judgeVerdict{}, fmt.Errorf("no JSON object in judge reply: %q", content)
	}
	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &verdict); err != nil {
		return judgeVerdict{}, fmt.Errorf("unmarshalling judge reply: %w", err)
	}
	return verdict, nil
}
