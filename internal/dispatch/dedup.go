package dispatch

import "sync"

// dedupRing remembers recently seen signatures in a fixed-size ring so
// duplicate deliveries (reconnect replays) are discarded without the
// set growing forever. Memory-only; restarts forget everything.
type dedupRing struct {
	mu   sync.Mutex
	seen map[string]int // signature -> ring slot
	ring []string
	next int
}

func newDedupRing(capacity int) *dedupRing {
	if capacity < 1 {
		capacity = 1
	}
	return &dedupRing{
		seen: make(map[string]int, capacity),
		ring: make([]string, capacity),
	}
}

// Remember records sig and reports whether it was new. The oldest
// entry is evicted once the ring is full.
func (d *dedupRing) Remember(sig string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[sig]; ok {
		return false
	}

	if old := d.ring[d.next]; old != "" {
		delete(d.seen, old)
	}
	d.ring[d.next] = sig
	d.seen[sig] = d.next
	d.next = (d.next + 1) % len(d.ring)
	return true
}

// Forget removes sig so a later redelivery is admitted again. Used
// when an admitted signature never reached the queue.
func (d *dedupRing) Forget(sig string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if slot, ok := d.seen[sig]; ok {
		delete(d.seen, sig)
		d.ring[slot] = ""
	}
}
