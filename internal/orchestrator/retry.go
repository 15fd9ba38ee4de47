package orchestrator

import (
	"context"
	"time"

	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
)

// retryBackoff is the fixed exponential backoff schedule for transient
// storage errors: 1s, 2s, 4s, one wait before each of at most 3 retries
// after the first attempt.
var retryBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// WithRetry runs fn, retrying up to len(retryBackoff) additional times on a
// transient storage error only. Every other error kind is reported, not
// recovered, matching the rest of the pipeline's retry policy.
func WithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn()
		if lastErr == nil || !corepipeerrors.IsTransient(lastErr) {
			return lastErr
		}
		if attempt >= len(retryBackoff) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(retryBackoff[attempt]):
		}
	}
}
