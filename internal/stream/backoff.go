package stream

import (
	"math/rand"
	"time"
)

// Backoff produces the reconnect delay schedule: exponential growth
// from base to max, with proportional jitter. Not safe for concurrent
// use; the stream client owns one.
type Backoff struct {
	base       time.Duration
	max        time.Duration
	next       time.Duration
	jitterFrac float64
	rng        *rand.Rand
}

// NewBackoff creates a schedule starting at base and capped at max.
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{
		base:       base,
		max:        max,
		next:       base,
		jitterFrac: 0.2,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the current delay with jitter applied and advances the
// schedule. Successive calls are non-decreasing up to the cap (before
// jitter).
func (b *Backoff) Next() time.Duration {
	d := b.next

	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}

	if b.jitterFrac > 0 {
		// Spread in [d - frac*d, d + frac*d]
		span := float64(d) * b.jitterFrac
		d += time.Duration((b.rng.Float64()*2 - 1) * span)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Reset returns the schedule to its base delay. Called after a
// connection survives the stability window.
func (b *Backoff) Reset() {
	b.next = b.base
}
