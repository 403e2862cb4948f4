package engine

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/lakeforge-io/lakeforge/internal/lake"
	"github.com/lakeforge-io/lakeforge/internal/logging"
)

// DefaultRetryMax is the default maximum number of retries for
// transient provider errors.
const DefaultRetryMax = 3

// RetryPolicy defines retry behavior for transient provider errors.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns a sensible default retry policy.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: DefaultRetryMax,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// execute runs one provider call for the given resource kind, retrying
// transient failures with exponential backoff and jitter. Permanent
// failures propagate immediately; retry exhaustion wraps the last
// failure in a DeploymentError carrying the kind and attempt count.
// This layer knows nothing about resource semantics.
func execute(ctx context.Context, kind lake.ResourceKind, policy *RetryPolicy, fn func() error) error {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		attempts++
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if classify(lastErr) == classPermanent {
			return &lake.DeploymentError{Kind: kind, Attempts: attempts, Err: lastErr}
		}

		if attempt < policy.MaxRetries {
			delay := backoffDelay(attempt, policy.BaseDelay, policy.MaxDelay)
			logging.ForKind(kind).Warn("transient provider error, retrying",
				"attempt", attempt+1,
				"max_retries", policy.MaxRetries,
				"delay", delay,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return &lake.DeploymentError{Kind: kind, Attempts: attempts, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}
	}

	return &lake.DeploymentError{Kind: kind, Attempts: attempts, Err: lastErr}
}

// backoffDelay returns base*2^attempt capped at max, plus bounded
// jitter of up to half the computed delay.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	backoff := float64(base) * math.Pow(2, float64(attempt))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	jitter := rand.Float64() * backoff / 2
	return time.Duration(backoff + jitter)
}
