// Package ratelimit enforces per-dependency call rates. Each external
// API gets its own Limiter; callers block in Acquire until permits are
// available instead of ever seeing a rate-limit error.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter caps call starts over a sliding window: at most calls starts
// in any window-length interval. A token bucket is deliberately not
// used here; its burst allowance refills during idle gaps and lets a
// single window admit nearly double the cap.
type Limiter struct {
	name   string
	calls  int
	window time.Duration

	mu     sync.Mutex
	starts []time.Time
}

// New creates a limiter allowing calls permits per window.
func New(name string, calls int, window time.Duration) *Limiter {
	if calls < 1 {
		calls = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &Limiter{
		name:   name,
		calls:  calls,
		window: window,
	}
}

// Acquire blocks until n permits are available or ctx is done. Permits
// are never dropped silently: either the caller proceeds or it gets
// the context error back.
func (l *Limiter) Acquire(ctx context.Context, n int) error {
	if n < 1 {
		n = 1
	}
	if n > l.calls {
		return fmt.Errorf("rate limiter %s: %d permits exceeds window capacity %d", l.name, n, l.calls)
	}

	for {
		wait, ok := l.tryAcquire(n)
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limiter %s: %w", l.name, ctx.Err())
		case <-timer.C:
		}
	}
}

// tryAcquire records n starts if the window has room, else reports how
// long until enough old starts age out.
func (l *Limiter) tryAcquire(n int) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)
	kept := l.starts[:0]
	for _, s := range l.starts {
		if s.After(cutoff) {
			kept = append(kept, s)
		}
	}
	l.starts = kept

	if len(l.starts)+n <= l.calls {
		for i := 0; i < n; i++ {
			l.starts = append(l.starts, now)
		}
		return 0, true
	}

	// The (len+n-calls)-th oldest start must expire first.
	expires := l.starts[len(l.starts)+n-l.calls-1].Add(l.window)
	return expires.Sub(now), false
}

// Name identifies the dependency this limiter guards.
func (l *Limiter) Name() string { return l.name }
