package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countInWindow counts starts in the half-open window [from, from+w).
func countInWindow(starts []time.Time, from time.Time, w time.Duration) int {
	n := 0
	for _, s := range starts {
		if !s.Before(from) && s.Before(from.Add(w)) {
			n++
		}
	}
	return n
}

func TestLimiter_SlidingWindowBound(t *testing.T) {
	// 5 permits per 200ms, 15 sequential acquires from a cold limiter.
	// No window of 200ms anywhere in the sequence may contain more than
	// 5 call starts, including the very first one.
	const (
		calls  = 5
		window = 200 * time.Millisecond
	)
	l := New("test", calls, window)
	ctx := context.Background()

	starts := make([]time.Time, 0, 15)
	for i := 0; i < 15; i++ {
		require.NoError(t, l.Acquire(ctx, 1))
		starts = append(starts, time.Now())
	}

	// Sliding over every start as a window origin covers the worst case.
	for i, from := range starts {
		got := countInWindow(starts, from, window)
		assert.LessOrEqualf(t, got, calls,
			"window opening at start %d admitted %d starts", i, got)
	}
}

func TestLimiter_NoDoubleWindowAfterIdle(t *testing.T) {
	// An idle gap longer than the window must not let the next window
	// admit more than the cap. This is where a refilling token bucket
	// would admit nearly 2x.
	const (
		calls  = 5
		window = 200 * time.Millisecond
	)
	l := New("test", calls, window)
	ctx := context.Background()

	for i := 0; i < calls; i++ {
		require.NoError(t, l.Acquire(ctx, 1))
	}
	time.Sleep(window + 50*time.Millisecond)

	starts := make([]time.Time, 0, 2*calls)
	for i := 0; i < 2*calls; i++ {
		require.NoError(t, l.Acquire(ctx, 1))
		starts = append(starts, time.Now())
	}

	got := countInWindow(starts, starts[0], window)
	assert.LessOrEqual(t, got, calls,
		"post-idle window admitted more than the cap")
}

func TestLimiter_AllWaitersEventuallyProceed(t *testing.T) {
	l := New("test", 10, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.Acquire(ctx, 1)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestLimiter_AcquireRespectsContext(t *testing.T) {
	l := New("test", 1, time.Hour)
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, 1))

	// The window has an hour left; a short deadline must surface the
	// context error rather than hang.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(short, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "rate limiter test")
}

func TestLimiter_RejectsOversizedAcquire(t *testing.T) {
	l := New("test", 2, time.Second)
	err := l.Acquire(context.Background(), 3)
	assert.Error(t, err, "more permits than the window holds can never be granted")
}

func TestLimiter_DefensiveDefaults(t *testing.T) {
	l := New("test", 0, 0)
	assert.Equal(t, "test", l.Name())
	assert.NoError(t, l.Acquire(context.Background(), 1))
}
