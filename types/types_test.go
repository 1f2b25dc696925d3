package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointValidate(t *testing.T) {
	valid := Endpoint{
		Name:              "My OpenAI",
		ConnectorType:     "openai",
		MaxCallsPerSecond: 2,
		MaxConcurrency:    1,
		Model:             "gpt-4o",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Endpoint)
	}{
		{"empty name", func(e *Endpoint) { e.Name = "" }},
		{"empty connector type", func(e *Endpoint) { e.ConnectorType = "" }},
		{"zero rate", func(e *Endpoint) { e.MaxCallsPerSecond = 0 }},
		{"negative concurrency", func(e *Endpoint) { e.MaxConcurrency = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			err := e.Validate()
			require.Error(t, err)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestEndpointApply(t *testing.T) {
	e := Endpoint{
		ID:                "base",
		Name:              "base",
		ConnectorType:     "openai",
		MaxCallsPerSecond: 1,
		MaxConcurrency:    1,
	}

	model := "gpt-4o-mini"
	rate := 5
	require.NoError(t, e.Apply(EndpointUpdate{Model: &model, MaxCallsPerSecond: &rate}))
	assert.Equal(t, "gpt-4o-mini", e.Model)
	assert.Equal(t, 5, e.MaxCallsPerSecond)
	assert.Equal(t, "base", e.ID, "id is immutable")
	assert.Equal(t, 1, e.MaxConcurrency, "untouched field preserved")

	bad := 0
	assert.Error(t, e.Apply(EndpointUpdate{MaxConcurrency: &bad}))
}

func TestTargetValueJSON(t *testing.T) {
	var single TargetValue
	require.NoError(t, json.Unmarshal([]byte(`"4"`), &single))
	assert.Equal(t, []string{"4"}, single.Values())
	out, err := json.Marshal(single)
	require.NoError(t, err)
	assert.JSONEq(t, `"4"`, string(out))

	var list TargetValue
	require.NoError(t, json.Unmarshal([]byte(`["four","4"]`), &list))
	assert.Equal(t, []string{"four", "4"}, list.Values())
	out, err = json.Marshal(list)
	require.NoError(t, err)
	assert.JSONEq(t, `["four","4"]`, string(out))

	assert.True(t, list.Matches("4"))
	assert.False(t, list.Matches("5"))
	assert.Equal(t, "four", list.First())
}

func TestRunStatusTerminal(t *testing.T) {
	terminal := []RunStatus{RunStatusCompleted, RunStatusCompletedWithErrors, RunStatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), s)
	}
	open := []RunStatus{RunStatusPending, RunStatusRunning, RunStatusRunningWithErrors}
	for _, s := range open {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestCrucibleError(t *testing.T) {
	base := NewError(DB_OPEN_FAILED, "cannot open")
	assert.Equal(t, "[DB_OPEN_FAILED] cannot open", base.Error())
	assert.False(t, IsRetryable(base))

	wrapped := NewRetryableError(CONNECTOR_TRANSIENT, "rate limited", assert.AnError)
	assert.True(t, IsRetryable(wrapped))
	assert.True(t, HasCode(wrapped, CONNECTOR_TRANSIENT))
	assert.ErrorIs(t, wrapped, assert.AnError)
}

func TestSessionApply(t *testing.T) {
	s := Session{SessionID: "rt-runner", CSNumOfPrevPrompts: DefaultNumOfPrevPrompts}
	cs := "add-previous-prompt"
	n := 3
	s.Apply(SessionUpdate{ContextStrategy: &cs, CSNumOfPrevPrompts: &n})
	assert.Equal(t, "add-previous-prompt", s.ContextStrategy)
	assert.Equal(t, 3, s.CSNumOfPrevPrompts)
	assert.Empty(t, s.AttackModule, "untouched field preserved")
}
