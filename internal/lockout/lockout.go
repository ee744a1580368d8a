// Package lockout counts failed attempts per key and locks the key out for a
// fixed period once the limit is reached.
package lockout

import (
	"errors"
	"sync"
	"time"
)

var ErrLockedOut = errors.New("too many failed attempts")

type entry struct {
	failures    int
	lockedUntil time.Time
}

// Guard is safe for concurrent use.
type Guard struct {
	mu          sync.Mutex
	maxAttempts int
	period      time.Duration
	entries     map[string]*entry
	now         func() time.Time
}

// New returns a Guard that locks a key for period after maxAttempts
// consecutive failures.
func New(maxAttempts int, period time.Duration) *Guard {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Guard{
		maxAttempts: maxAttempts,
		period:      period,
		entries:     make(map[string]*entry),
		now:         time.Now,
	}
}

// WithClock replaces the guard's time source.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// Check returns ErrLockedOut and the remaining lock time while key is locked.
// An expired lock is cleared.
func (g *Guard) Check(key string) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[key]
	if !ok || e.lockedUntil.IsZero() {
		return 0, nil
	}
	if remaining := e.lockedUntil.Sub(g.now()); remaining > 0 {
		return remaining, ErrLockedOut
	}
	delete(g.entries, key)
	return 0, nil
}

// Fail records a failed attempt. It reports whether this failure locked the
// key and how many attempts remain before it would.
func (g *Guard) Fail(key string) (locked bool, remaining int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[key]
	if !ok {
		e = &entry{}
		g.entries[key] = e
	}
	e.failures++
	if e.failures >= g.maxAttempts {
		e.lockedUntil = g.now().Add(g.period)
		return true, 0
	}
	return false, g.maxAttempts - e.failures
}

// Reset forgets key after a successful attempt.
func (g *Guard) Reset(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
}
