package connector_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straylight-ai/crucible/config"
	"github.com/straylight-ai/crucible/connector"
	"github.com/straylight-ai/crucible/connector/adapters"
	"github.com/straylight-ai/crucible/types"
)

func testEndpoint(rps, concurrency int) types.Endpoint {
	return types.Endpoint{
		ID:                "ep-test",
		Name:              "ep test",
		ConnectorType:     "mock",
		MaxCallsPerSecond: rps,
		MaxConcurrency:    concurrency,
	}
}

func fastDefaults() config.ConnectorConfig {
	return config.ConnectorConfig{
		RetriesTimes: 3,
		BackoffBase:  5 * time.Millisecond,
		Timeout:      2 * time.Second,
	}
}

func TestGetResponseHappyPath(t *testing.T) {
	mock := adapters.NewMock("4")
	c := connector.New(testEndpoint(100, 4), mock, fastDefaults(), nil)

	pred, err := c.GetResponse(context.Background(), "2+2=?")
	require.NoError(t, err)
	assert.Equal(t, "4", pred.Text)
	assert.Equal(t, 1, mock.CallCount())
	assert.Equal(t, int64(1), c.Calls())
}

func TestPromptDecoration(t *testing.T) {
	mock := adapters.NewMock("ok")
	ep := testEndpoint(100, 1)
	ep.Params = map[string]any{"pre_prompt": "Q: ", "post_prompt": " A:"}
	c := connector.New(ep, mock, fastDefaults(), nil)

	_, err := c.GetResponse(context.Background(), "ping")
	require.NoError(t, err)
	require.Len(t, mock.Calls(), 1)
	assert.Equal(t, "Q: ping A:", mock.Calls()[0].Prompt)
}

func TestRateLimitRespected(t *testing.T) {
	// 10 calls at 2 rps should take at least ~4.5s of token waits; use
	// a smaller grid to keep the test quick: 5 calls at 4 rps >= 1s.
	mock := adapters.NewMock("x")
	c := connector.New(testEndpoint(4, 5), mock, fastDefaults(), nil)

	start := time.Now()
	for i := 0; i < 5; i++ {
		_, err := c.GetResponse(context.Background(), fmt.Sprintf("p%d", i))
		require.NoError(t, err)
	}
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond,
		"5 calls at 4 rps must take at least ~1s")

	// no 1-second sliding window may contain more than 4+1 calls
	calls := mock.Calls()
	for i := range calls {
		inWindow := 0
		for j := i; j < len(calls); j++ {
			if calls[j].At.Sub(calls[i].At) < time.Second {
				inWindow++
			}
		}
		assert.LessOrEqual(t, inWindow, 5)
	}
}

func TestConcurrencyCap(t *testing.T) {
	var inFlight, peak int64
	mock := adapters.NewMock()
	mock.RespondFunc = func(prompt string) (string, error) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return "ok", nil
	}
	c := connector.New(testEndpoint(1000, 2), mock, fastDefaults(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetResponse(context.Background(), "p")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

func TestRetryThenSucceed(t *testing.T) {
	mock := adapters.NewMock("recovered").FailTimes(2, errors.New("503 service unavailable"))
	c := connector.New(testEndpoint(100, 1), mock, fastDefaults(), nil)

	pred, err := c.GetResponse(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "recovered", pred.Text)
	assert.Equal(t, 3, mock.CallCount(), "two failures plus one success")
}

func TestRetriesExhausted(t *testing.T) {
	mock := adapters.NewMock("never").FailTimes(10, errors.New("429 too many requests"))
	c := connector.New(testEndpoint(100, 1), mock, fastDefaults(), nil)

	_, err := c.GetResponse(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.CONNECTOR_TERMINAL))
	assert.Equal(t, 4, mock.CallCount(), "initial attempt plus three retries")
}

func TestTerminalErrorNotRetried(t *testing.T) {
	mock := adapters.NewMock("never").FailTimes(10, errors.New("401 invalid api key"))
	c := connector.New(testEndpoint(100, 1), mock, fastDefaults(), nil)

	_, err := c.GetResponse(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, 1, mock.CallCount(), "non-retryable failures bypass retry")
	assert.True(t, types.HasCode(err, types.CONNECTOR_TERMINAL))
	assert.NotContains(t, err.Error(), "exhausted",
		"a first-attempt terminal failure is not an exhaustion")
}

func TestCancellationBeforeDispatch(t *testing.T) {
	mock := adapters.NewMock("x")
	c := connector.New(testEndpoint(100, 1), mock, fastDefaults(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetResponse(ctx, "p")
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.RUN_CANCELLED))
	assert.Zero(t, mock.CallCount())
}

func TestCancellationDuringCall(t *testing.T) {
	mock := adapters.NewMock("slow").WithLatency(500 * time.Millisecond)
	c := connector.New(testEndpoint(100, 1), mock, fastDefaults(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := c.GetResponse(ctx, "p")
	require.Error(t, err)
	// a cancellation landing mid-call must keep its identity so the
	// pipeline abandons the prompt instead of caching a failure row
	assert.True(t, types.HasCode(err, types.RUN_CANCELLED))
	assert.NotContains(t, err.Error(), "exhausted")
}

func TestTranslateClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limited", errors.New("HTTP 429 Too Many Requests"), true},
		{"server error", errors.New("unexpected status 502"), true},
		{"overloaded", errors.New("model overloaded, try later"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"auth failure", errors.New("401 unauthorized"), false},
		{"bad request", errors.New("invalid model name"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := connector.Translate("mock", tt.err)
			assert.Equal(t, tt.retryable, types.IsRetryable(got))
		})
	}
}
