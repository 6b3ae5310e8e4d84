package extract

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/sitrep-cli/internal/resilience"
)

// GuardConfig bounds how a backend is called.
type GuardConfig struct {
	Timeout       time.Duration // per call; 0 disables
	RatePerMinute int           // 0 disables
	Retry         resilience.RetryConfig
	Breaker       resilience.BreakerConfig
}

// Guard wraps a backend with a rate limiter, a circuit breaker, a per-call
// timeout and backoff on rate-limit or server errors. Timeouts and parse
// failures are returned to the caller, which owns the attempt budget.
type Guard struct {
	next    Client
	cfg     GuardConfig
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	logger  *zap.Logger
}

// NewGuard wraps next.
func NewGuard(next Client, cfg GuardConfig, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.L()
	}
	g := &Guard{next: next, cfg: cfg, logger: logger}
	if cfg.RatePerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1)
	}

	bc := cfg.Breaker
	if bc.Trips == nil {
		bc.Trips = tripsBreaker
	}
	if bc.OnChange == nil {
		bc.OnChange = func(from, to resilience.BreakerState) {
			logger.Warn("extract: circuit breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
		}
	}
	g.breaker = resilience.NewCircuitBreaker(bc)

	if g.cfg.Retry.Retryable == nil {
		g.cfg.Retry.Retryable = isRateOrServerError
	}
	if g.cfg.Retry.OnRetry == nil {
		g.cfg.Retry.OnRetry = resilience.LogRetries(logger, "extract")
	}
	return g
}

// tripsBreaker counts service failures only; a model that answers with
// garbage is still up.
func tripsBreaker(err error) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind == FailureTransport || f.Kind == FailureTimeout
	}
	return err != nil
}

func isRateOrServerError(err error) bool {
	var te *resilience.TransientError
	return errors.As(err, &te) && te.StatusCode != 0
}

// Extract implements Client.
func (g *Guard) Extract(ctx context.Context, imagePath, modelID string) Result {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return failed(FailureTransport, err)
		}
	}

	res, err := resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (Result, error) {
		return resilience.RetryVal(ctx, g.cfg.Retry, func(ctx context.Context) (Result, error) {
			callCtx, cancel := g.callContext(ctx)
			defer cancel()
			r := g.next.Extract(callCtx, imagePath, modelID)
			if r.Failure != nil && r.Failure.Kind != FailureParse {
				return r, r.Failure
			}
			return r, nil
		})
	})

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return failed(FailureUnavailable, err)
	case err != nil:
		var f *Failure
		if errors.As(err, &f) {
			return Result{Failure: f}
		}
		return failed(FailureTransport, err)
	}
	return res
}

func (g *Guard) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.cfg.Timeout)
}
