package pipeline

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

const defaultRetryBase = 200 * time.Millisecond

// retryBudget describes a bounded exponential retry schedule.
type retryBudget struct {
	retries int
	base    time.Duration
}

func (b retryBudget) backoff() retry.Backoff {
	base := b.base
	if base <= 0 {
		base = defaultRetryBase
	}
	retries := b.retries
	if retries < 0 {
		retries = 0
	}
	return retry.WithMaxRetries(uint64(retries), retry.NewExponential(base))
}

// do runs fn until it succeeds, returns a non-retryable error, or the budget
// runs out. fn marks transient failures with retry.RetryableError; the last
// underlying error is returned unwrapped.
func (b retryBudget) do(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, b.backoff(), fn)
}

// withTimeout bounds one network call.
func withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(callCtx)
}
