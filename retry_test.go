package asyncronaut

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetrySuccessFirstAttempt(t *testing.T) {
	var calls atomic.Int32

	v, err := WithRetry(context.Background(), RetryOptions{Retries: 3}, func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(1), calls.Load(), "fn should be called exactly once on first success")
}

func TestWithRetrySuccessAfterRetries(t *testing.T) {
	var calls atomic.Int32

	v, err := WithRetry(context.Background(), RetryOptions{Retries: 5}, func(ctx context.Context) (int, error) {
		n := calls.Add(1)
		if n <= 2 {
			return 0, errors.New("transient failure")
		}
		return int(n), nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, int32(3), calls.Load(), "fn should be called 3 times: 2 failures + 1 success")
}

func TestWithRetryAllFail(t *testing.T) {
	var calls atomic.Int32
	lastErr := errors.New("final failure")

	_, err := WithRetry(context.Background(), RetryOptions{Retries: 2}, func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, lastErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, lastErr, "should return the last error after exhausting retries")
	assert.Equal(t, int32(3), calls.Load(), "fn should be called n+1 times (initial + 2 retries)")
}

func TestWithRetryRunsCleanupAfterEveryFailedAttempt(t *testing.T) {
	var calls, cleanups atomic.Int32

	_, err := WithRetry(context.Background(), RetryOptions{
		Retries: 2,
		Cleanup: func(ctx context.Context) { cleanups.Add(1) },
	}, func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("always fails")
	})

	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(3), cleanups.Load(), "cleanup should run after every failed attempt")
}

func TestWithRetryContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	_, err := WithRetry(ctx, RetryOptions{Retries: 10}, func(ctx context.Context) (int, error) {
		calls.Add(1)
		cancel()
		return 0, errors.New("trigger retry")
	})

	assert.ErrorIs(t, err, context.Canceled,
		"should return context.Canceled when cancelled between attempts")
	assert.Equal(t, int32(1), calls.Load(),
		"fn should only be called once before cancellation")
}

func TestWithRetryPanicsOnInvalidRetries(t *testing.T) {
	mustPanic(t, "WithRetry requires retries >= 0", func() {
		_, _ = WithRetry(context.Background(), RetryOptions{Retries: -1}, func(ctx context.Context) (int, error) {
			return 0, nil
		})
	})
}
