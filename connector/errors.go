package connector

import (
	"context"
	"errors"
	"strings"

	"github.com/straylight-ai/crucible/types"
)

// transientMarkers are substrings of upstream error text that indicate
// a retryable condition. LLM providers are inconsistent about typed
// errors, so string matching is the lowest common denominator.
var transientMarkers = []string{
	"429",
	"rate limit",
	"too many requests",
	"500",
	"502",
	"503",
	"504",
	"overloaded",
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"temporarily unavailable",
	"EOF",
}

// Translate classifies an adapter error as transient (retryable) or
// terminal. Context cancellation passes through as cancellation, not a
// connector failure.
func Translate(adapterType string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return types.WrapError(types.RUN_CANCELLED, adapterType+" call cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewRetryableError(types.CONNECTOR_TIMEOUT, adapterType+" attempt timed out", err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, strings.ToLower(marker)) {
			return types.NewRetryableError(types.CONNECTOR_TRANSIENT, adapterType+" transient failure", err)
		}
	}
	return types.WrapError(types.CONNECTOR_TERMINAL, adapterType+" request failed", err)
}
