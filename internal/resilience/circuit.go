// Package resilience holds the retry and circuit-breaker helpers used around
// model endpoints, the object store and the database.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// BreakerState is the state of a CircuitBreaker.
type BreakerState int

const (
	StateClosed   BreakerState = iota // calls pass through
	StateOpen                         // calls are rejected
	StateHalfOpen                     // one trial call is allowed
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned without calling fn while the breaker is open.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive tripping failures that opens
	// the breaker.
	Threshold int
	// Cooldown is how long the breaker stays open before a trial call.
	Cooldown time.Duration
	// Trips decides whether an error counts as a failure. Nil counts every
	// non-nil error.
	Trips func(err error) bool
	// OnChange observes state transitions.
	OnChange func(from, to BreakerState)
}

// CircuitBreaker stops calling a dependency after repeated failures.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time

	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker. Zero values default to five
// failures and a 30 second cooldown.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteVal(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteVal is Execute for functions that return a value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := cb.admit(); err != nil {
		var zero T
		return zero, err
	}
	v, err := fn(ctx)
	cb.record(err)
	return v, err
}

// State reports the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return nil
	}
	if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
		return ErrCircuitOpen
	}
	cb.setState(StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	trips := err != nil
	if trips && cb.cfg.Trips != nil {
		trips = cb.cfg.Trips(err)
	}
	if !trips {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.setState(StateClosed)
		}
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.cfg.Threshold {
		cb.openedAt = cb.now()
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(to BreakerState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnChange != nil {
		cb.cfg.OnChange(from, to)
	}
}
