package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls exponential backoff.
type RetryConfig struct {
	// Attempts is the total number of calls, including the first.
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is a fraction of the delay added or removed at random.
	Jitter float64
	// Retryable decides whether an error is worth another call. Nil uses
	// IsTransient.
	Retryable func(err error) bool
	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig suits object-store and database calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:   3,
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.25,
	}
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx is done. The last error is returned.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := RetryVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryVal is Retry for functions that return a value.
func RetryVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = withDefaults(cfg)
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var err error
	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !retryable(err) || attempt == cfg.Attempts-1 {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
	return zero, err
}

func withDefaults(cfg RetryConfig) RetryConfig {
	d := DefaultRetryConfig()
	if cfg.Attempts <= 0 {
		cfg.Attempts = d.Attempts
	}
	if cfg.Initial <= 0 {
		cfg.Initial = d.Initial
	}
	if cfg.Max <= 0 {
		cfg.Max = d.Max
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = d.Multiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return cfg
}

func backoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.Initial) * math.Pow(cfg.Multiplier, float64(attempt))
	delay = math.Min(delay, float64(cfg.Max))
	if cfg.Jitter > 0 {
		delay += (rand.Float64()*2 - 1) * delay * cfg.Jitter
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}

// LogRetries returns an OnRetry hook that logs at WARN.
func LogRetries(logger *zap.Logger, op string, fields ...zap.Field) func(int, error) {
	if logger == nil {
		logger = zap.L()
	}
	return func(attempt int, err error) {
		logger.Warn("retrying",
			append([]zap.Field{zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err)}, fields...)...)
	}
}
