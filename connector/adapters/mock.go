package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/straylight-ai/crucible/connector"
	"github.com/straylight-ai/crucible/types"
)

// MockCall is one recorded call to the mock adapter.
type MockCall struct {
	Prompt string
	At     time.Time
}

// MockAdapter is a scripted adapter for tests: it replays configured
// responses, records every call, and can inject failures or latency.
type MockAdapter struct {
	mu            sync.Mutex
	responses     []string
	responseIndex int
	calls         []MockCall
	failures      int   // fail this many calls before succeeding
	failWith      error // error used for injected failures
	latency       time.Duration

	// RespondFunc overrides the scripted responses when set.
	RespondFunc func(prompt string) (string, error)
}

// NewMock creates a mock adapter cycling through responses.
func NewMock(responses ...string) *MockAdapter {
	return &MockAdapter{responses: responses}
}

// NewMockFromEndpoint satisfies connector.Factory; the response is
// taken from the endpoint's "mock_response" param.
func NewMockFromEndpoint(ep types.Endpoint) (connector.Adapter, error) {
	return NewMock(ep.ParamString("mock_response", "mock response")), nil
}

// FailTimes makes the next n calls fail with err before responses
// resume.
func (m *MockAdapter) FailTimes(n int, err error) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.failWith = err
	return m
}

// WithLatency adds fixed latency to every call.
func (m *MockAdapter) WithLatency(d time.Duration) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
	return m
}

// Type returns the adapter's plugin key.
func (m *MockAdapter) Type() string {
	return TypeMock
}

// Complete replays the script.
func (m *MockAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Prompt: prompt, At: time.Now()})
	latency := m.latency
	if m.failures > 0 {
		m.failures--
		err := m.failWith
		m.mu.Unlock()
		if err == nil {
			err = fmt.Errorf("injected failure")
		}
		return "", err
	}
	respond := m.RespondFunc
	var response string
	if respond == nil {
		if len(m.responses) == 0 {
			m.mu.Unlock()
			return "", fmt.Errorf("no responses configured")
		}
		response = m.responses[m.responseIndex%len(m.responses)]
		m.responseIndex++
	}
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if respond != nil {
		return respond(prompt)
	}
	return response, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockAdapter) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of recorded calls.
func (m *MockAdapter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls and replay position.
func (m *MockAdapter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.responseIndex = 0
	m.failures = 0
}
