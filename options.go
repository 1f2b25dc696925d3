package crucible

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/straylight-ai/crucible/registry"
)

// Option configures the Framework.
type Option func(*frameworkConfig)

// frameworkConfig holds construction-time settings.
type frameworkConfig struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	registry *registry.Registry
}

// WithLogger sets a custom logger. Without it the framework logs JSON
// to stdout at info level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *frameworkConfig) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer; runner and pipeline spans
// are emitted through it.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *frameworkConfig) {
		c.tracer = tracer
	}
}

// WithRegistry supplies a pre-populated plugin registry. Builtins are
// still registered into it; prior registrations under the builtin ids
// are preserved.
func WithRegistry(reg *registry.Registry) Option {
	return func(c *frameworkConfig) {
		c.registry = reg
	}
}
