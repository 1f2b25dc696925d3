package metric_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straylight-ai/crucible/metric"
	"github.com/straylight-ai/crucible/types"
)

func targetList(values ...string) []types.TargetValue {
	out := make([]types.TargetValue, len(values))
	for i, v := range values {
		out[i] = types.NewTarget(v)
	}
	return out
}

func TestExactStrMatch(t *testing.T) {
	m := metric.NewExactStrMatch()
	prompts := []string{"q1", "q2", "q3", "q4"}
	predicted := []string{"Paris", "blue", "7", "wrong"}
	targets := targetList("Paris", "blue", "8", "right")

	results, err := m.GetResults(context.Background(), prompts, predicted, targets)
	require.NoError(t, err)
	assert.Equal(t, 50.0, results.Scores["exact_str_match"])
	assert.Equal(t, 50.0, results.GradingCriteria["exact_str_match"])
}

func TestExactStrMatchMultipleTargets(t *testing.T) {
	m := metric.NewExactStrMatch()
	targets := []types.TargetValue{types.NewTargetList("yes", "y", "true")}

	results, err := m.GetResults(context.Background(), []string{"q"}, []string{"y"}, targets)
	require.NoError(t, err)
	assert.Equal(t, 100.0, results.Scores["exact_str_match"])
}

func TestExactStrMatchEmptyInput(t *testing.T) {
	m := metric.NewExactStrMatch()
	results, err := m.GetResults(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, results.Scores["exact_str_match"])
}

func TestRelaxStrMatch(t *testing.T) {
	m := metric.NewRelaxStrMatch()
	prompts := []string{"q1", "q2", "q3"}
	predicted := []string{
		"The answer is Paris.",
		"BLUE!",
		"definitely not the right one",
	}
	targets := targetList("paris", "Blue", "42")

	results, err := m.GetResults(context.Background(), prompts, predicted, targets)
	require.NoError(t, err)
	assert.InDelta(t, 66.6667, results.Scores["relax_str_match"], 0.01)
}

func TestValidateScore(t *testing.T) {
	assert.NoError(t, metric.ValidateScore(0))
	assert.NoError(t, metric.ValidateScore(100))
	assert.Error(t, metric.ValidateScore(-0.1))
	assert.Error(t, metric.ValidateScore(100.5))
}

func TestBuiltinsConstruct(t *testing.T) {
	builtins := metric.Builtins()
	for id, factory := range builtins {
		m, err := factory(nil)
		require.NoError(t, err, id)
		assert.Equal(t, id, m.ID())
	}
}

type scriptedJudge struct {
	replies []string
	calls   int
	err     error
}

func (j *scriptedJudge) Complete(ctx context.Context, prompt string) (string, error) {
	if j.err != nil {
		return "", j.err
	}
	reply := j.replies[j.calls%len(j.replies)]
	j.calls++
	return reply, nil
}

func TestLLMJudgeAveragesVerdicts(t *testing.T) {
	judge := &scriptedJudge{replies: []string{
		`{"score": 1.0, "reasoning": "exact match"}`,
		`{"score": 0.5, "reasoning": "partially correct"}`,
	}}
	m, err := metric.NewLLMJudge(metric.LLMJudgeOptions{Provider: judge, Rubric: "grade correctness"})
	require.NoError(t, err)

	results, err := m.GetResults(context.Background(),
		[]string{"q1", "q2"}, []string{"a1", "a2"}, targetList("a1", "a2"))
	require.NoError(t, err)
	assert.Equal(t, 75.0, results.Scores["llm_judge"])
	assert.Equal(t, 2, judge.calls)
}

func TestLLMJudgeToleratesMarkdownFences(t *testing.T) {
	judge := &scriptedJudge{replies: []string{
		"```json\n{\"score\": 1.0, \"reasoning\": \"ok\"}\n```",
	}}
	m, err := metric.NewLLMJudge(metric.LLMJudgeOptions{Provider: judge, Rubric: "r"})
	require.NoError(t, err)

	results, err := m.GetResults(context.Background(),
		[]string{"q"}, []string{"a"}, targetList("a"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, results.Scores["llm_judge"])
}

func TestLLMJudgeRetriesMalformedReplies(t *testing.T) {
	judge := &scriptedJudge{replies: []string{
		"I think this deserves a high score",
		`{"score": 0.8, "reasoning": "fine on retry"}`,
	}}
	m, err := metric.NewLLMJudge(metric.LLMJudgeOptions{Provider: judge, Rubric: "r"})
	require.NoError(t, err)

	results, err := m.GetResults(context.Background(),
		[]string{"q"}, []string{"a"}, targetList("a"))
	require.NoError(t, err)
	assert.Equal(t, 80.0, results.Scores["llm_judge"])
	assert.Equal(t, 2, judge.calls)
}

func TestLLMJudgeProviderFailureIsFatal(t *testing.T) {
	judge := &scriptedJudge{err: errors.New("connection refused")}
	m, err := metric.NewLLMJudge(metric.LLMJudgeOptions{Provider: judge, Rubric: "r"})
	require.NoError(t, err)

	_, err = m.GetResults(context.Background(),
		[]string{"q"}, []string{"a"}, targetList("a"))
	require.Error(t, err)
}

func TestLLMJudgeRequiresProviderAndRubric(t *testing.T) {
	_, err := metric.NewLLMJudge(metric.LLMJudgeOptions{Rubric: "r"})
	assert.True(t, types.IsValidation(err))

	_, err = metric.NewLLMJudge(metric.LLMJudgeOptions{Provider: &scriptedJudge{}})
	assert.True(t, types.IsValidation(err))
}

func TestExactStrMatchLargeGroup(t *testing.T) {
	m := metric.NewExactStrMatch()
	var prompts, predicted []string
	var targets []types.TargetValue
	for i := 0; i < 10; i++ {
		prompts = append(prompts, fmt.Sprintf("q%d", i))
		targets = append(targets, types.NewTarget("t"))
		if i < 3 {
			predicted = append(predicted, "t")
		} else {
			predicted = append(predicted, "x")
		}
	}
	results, err := m.GetResults(context.Background(), prompts, predicted, targets)
	require.NoError(t, err)
	assert.Equal(t, 30.0, results.Scores["exact_str_match"])
}
