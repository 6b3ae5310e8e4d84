// Package lock serializes work on one report across goroutines and processes.
package lock

import (
	"context"
	"sync"
)

// Locker hands out named, non-blocking locks. Acquire returns ok=false when
// another holder has the key; release is nil in that case.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal returns an empty in-process Locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// Acquire implements Locker.
func (l *Local) Acquire(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}
