// Package throttle spaces out the first dispatch to each sandbox so a
// cold pool does not hit shared upstream resources (DNS, egress) all at
// once. Steady-state dispatches are not throttled.
package throttle

import (
	"sync"
	"time"
)

// Gate serializes the first execution per sandbox. Each first pass
// advances a shared next-allowed timestamp by a fixed interval; repeat
// calls for a sandbox that already passed return immediately.
type Gate struct {
	interval time.Duration

	mu     sync.Mutex
	nextAt time.Time
	seen   map[string]struct{}

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewGate creates a gate with the given first-exec interval. A zero or
// negative interval disables throttling.
func NewGate(interval time.Duration) *Gate {
	if interval < 0 {
		interval = 0
	}
	return &Gate{
		interval: interval,
		seen:     make(map[string]struct{}),
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Wait blocks the caller until the named sandbox may issue its first
// unit of work. The critical section only computes the slot; the sleep
// happens outside the lock so other workers can claim their slots.
func (g *Gate) Wait(sandbox string) {
	g.mu.Lock()
	if _, ok := g.seen[sandbox]; ok {
		g.mu.Unlock()
		return
	}
	g.seen[sandbox] = struct{}{}

	now := g.now()
	scheduled := g.nextAt
	if scheduled.Before(now) {
		scheduled = now
	}
	g.nextAt = scheduled.Add(g.interval)
	g.mu.Unlock()

	if wait := scheduled.Sub(now); wait > 0 {
		g.sleep(wait)
	}
}

// Passed reports whether the named sandbox has already cleared the gate.
func (g *Gate) Passed(sandbox string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.seen[sandbox]
	return ok
}
