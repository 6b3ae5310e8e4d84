package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{Attempts: attempts, Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2}
}

func TestRetry_FirstCallSucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errBoom, 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_Exhausted(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(2), func(context.Context) error {
		calls++
		return NewTransientError(errBoom, 429)
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, calls)
}

func TestRetry_PermanentErrorStops(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(5), func(context.Context) error {
		calls++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestRetry_CanceledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, fastRetry(5), func(context.Context) error {
		calls++
		cancel()
		return NewTransientError(errBoom, 500)
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CustomRetryableAndHook(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	cfg := fastRetry(3)
	cfg.Retryable = func(err error) bool { return errors.Is(err, errBoom) }
	cfg.OnRetry = LogRetries(zap.New(core), "upload", zap.String("key", "k"))

	calls := 0
	err := Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		return errBoom
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "upload", logs.All()[0].ContextMap()["op"])
	assert.Equal(t, "k", logs.All()[0].ContextMap()["key"])
}

func TestRetryVal(t *testing.T) {
	v, err := RetryVal(context.Background(), fastRetry(2), func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	v, err = RetryVal(context.Background(), fastRetry(2), func(context.Context) (string, error) {
		return "partial", errBoom
	})
	assert.Error(t, err)
	assert.Empty(t, v)
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, backoff(0, cfg))
	assert.Equal(t, 400*time.Millisecond, backoff(2, cfg))
	assert.Equal(t, time.Second, backoff(10, cfg))

	cfg.Jitter = 0.5
	for i := 0; i < 50; i++ {
		d := backoff(0, cfg)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := withDefaults(RetryConfig{Jitter: -1})
	assert.Equal(t, 3, cfg.Attempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Initial)
	assert.Equal(t, 30*time.Second, cfg.Max)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.Zero(t, cfg.Jitter)
}
