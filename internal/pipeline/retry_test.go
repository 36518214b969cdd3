package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
)

func TestRetryBudget(t *testing.T) {
	transient := errors.New("transient")
	permanent := errors.New("permanent")

	tests := []struct {
		name      string
		retries   int
		failFirst int
		err       error
		wantCalls int
		wantErr   error
	}{
		{name: "succeeds first time", retries: 3, wantCalls: 1},
		{name: "recovers within budget", retries: 3, failFirst: 2, err: transient, wantCalls: 3},
		{name: "exhausts budget", retries: 3, failFirst: 10, err: transient, wantCalls: 4, wantErr: transient},
		{name: "zero retries", retries: 0, failFirst: 10, err: transient, wantCalls: 1, wantErr: transient},
		{name: "permanent error stops", retries: 3, failFirst: 10, err: permanent, wantCalls: 1, wantErr: permanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budget := retryBudget{retries: tt.retries, base: time.Millisecond}
			calls := 0
			err := budget.do(context.Background(), func(context.Context) error {
				calls++
				if calls <= tt.failFirst {
					if errors.Is(tt.err, transient) {
						return retry.RetryableError(tt.err)
					}
					return tt.err
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestWithTimeoutBoundsCall(t *testing.T) {
	err := withTimeout(context.Background(), 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = withTimeout(context.Background(), 0, func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.False(t, hasDeadline)
		return nil
	})
	assert.NoError(t, err)
}

func TestBatchResult(t *testing.T) {
	batch := BatchResult{Results: []Result{
		{Key: "a.jpg", Outcome: OutcomeReady},
		{Key: "b.jpg", Outcome: OutcomeRetry, Err: errors.New("store down")},
		{Key: "c.jpg", Outcome: OutcomeRetry},
		{Key: "d.jpg", Outcome: OutcomeSkipped},
	}}

	assert.True(t, batch.Retryable())
	err := batch.Err()
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "b.jpg: store down")
		assert.Contains(t, err.Error(), "c.jpg")
	}
	counts := batch.Counts()
	assert.Equal(t, 2, counts[OutcomeRetry])
	assert.Equal(t, 1, counts[OutcomeReady])

	assert.False(t, OutcomeFailed.Retryable())
	assert.NoError(t, BatchResult{}.Err())
}
