// Package connector turns persisted endpoints into live, governed LLM
// clients. Every adapter call runs behind a per-connector token bucket,
// a concurrency semaphore and a retry policy with exponential backoff;
// optional pre/post prompt decoration is applied before dispatch.
package connector

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/straylight-ai/crucible/config"
	"github.com/straylight-ai/crucible/types"
)

// Adapter is a raw LLM client bound to one endpoint. Implementations
// live in the adapters subpackage and are resolved through the registry
// by the endpoint's connector_type.
type Adapter interface {
	// Type returns the plugin key of this adapter.
	Type() string

	// Complete sends one prompt and returns the model's text response.
	// Implementations must honor ctx cancellation and deadlines.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Factory builds an adapter for an endpoint.
type Factory func(ep types.Endpoint) (Adapter, error)

// Prediction is a completed connector call.
type Prediction struct {
	Text     string
	Duration time.Duration
}

// Connector wraps an adapter with the rate governor. Internal timing
// state is mutated only by callers holding the semaphore.
type Connector struct {
	id       string
	endpoint types.Endpoint
	adapter  Adapter

	limiter *rate.Limiter
	sem     *semaphore.Weighted

	retries     int
	backoffBase time.Duration
	timeout     time.Duration
	prePrompt   string
	postPrompt  string

	logger *slog.Logger

	mu       sync.Mutex
	lastCall time.Time
	calls    int64
}

// New builds a governed connector from an endpoint and its adapter.
// Endpoint params override the process-wide defaults: retries_times,
// backoff_base (seconds), timeout (seconds), pre_prompt, post_prompt.
func New(ep types.Endpoint, adapter Adapter, defaults config.ConnectorConfig, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	retries := defaults.RetriesTimes
	if retries <= 0 {
		retries = config.DefaultRetriesTimes
	}
	backoff := defaults.BackoffBase
	if backoff <= 0 {
		backoff = config.DefaultBackoffBase
	}
	timeout := defaults.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	return &Connector{
		id:       ep.ID,
		endpoint: ep,
		adapter:  adapter,
		// burst 1 keeps calls uniformly spaced at the configured rate
		limiter:     rate.NewLimiter(rate.Limit(ep.MaxCallsPerSecond), 1),
		sem:         semaphore.NewWeighted(int64(ep.MaxConcurrency)),
		retries:     ep.ParamInt("retries_times", retries),
		backoffBase: ep.ParamDuration("backoff_base", backoff),
		timeout:     ep.ParamDuration("timeout", timeout),
		prePrompt:   ep.ParamString("pre_prompt", ""),
		postPrompt:  ep.ParamString("post_prompt", ""),
		logger:      logger.With("connector", ep.ID),
	}
}

// ID returns the endpoint id this connector serves.
func (c *Connector) ID() string {
	return c.id
}

// Endpoint returns the endpoint the connector was built from.
func (c *Connector) Endpoint() types.Endpoint {
	return c.endpoint
}

// Calls returns the number of completed adapter attempts.
func (c *Connector) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// GetResponse dispatches one prompt through the governor: acquire the
// semaphore, wait for a rate token, then attempt the adapter call up to
// retries+1 times with exponential backoff on retryable failures. The
// returned duration covers the successful attempt only.
func (c *Connector) GetResponse(ctx context.Context, prompt string) (Prediction, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return Prediction{}, types.WrapError(types.RUN_CANCELLED, "acquiring connector slot", err)
	}
	defer c.sem.Release(1)

	decorated := c.prePrompt + prompt + c.postPrompt

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return Prediction{}, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return Prediction{}, types.WrapError(types.RUN_CANCELLED, "waiting for rate token", err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		text, err := c.adapter.Complete(attemptCtx, decorated)
		elapsed := time.Since(start)
		cancel()

		c.mu.Lock()
		c.lastCall = time.Now()
		c.calls++
		c.mu.Unlock()

		if err == nil {
			return Prediction{Text: text, Duration: elapsed}, nil
		}

		lastErr = Translate(c.adapter.Type(), err)
		if !types.IsRetryable(lastErr) {
			// cancellations and terminal classifications keep their
			// error identity; only exhausted retries get the wrap below
			return Prediction{}, lastErr
		}
		c.logger.Warn("retryable connector failure",
			"attempt", attempt+1, "retries", c.retries, "error", lastErr)
	}

	return Prediction{}, types.WrapError(types.CONNECTOR_TERMINAL,
		fmt.Sprintf("connector %s exhausted %d retries", c.id, c.retries), lastErr)
}

// sleepBackoff waits base·2^(n-1) plus up to 20% jitter, or returns
// early when ctx is cancelled.
func (c *Connector) sleepBackoff(ctx context.Context, attempt int) error {
	backoff := c.backoffBase << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(backoff)/5 + 1))
	select {
	case <-time.After(backoff + jitter):
		return nil
	case <-ctx.Done():
		return types.WrapError(types.RUN_CANCELLED, "backoff interrupted", ctx.Err())
	}
}
