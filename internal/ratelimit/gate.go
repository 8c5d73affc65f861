// Package ratelimit throttles repetitive log lines.
package ratelimit

import (
	"sync/atomic"
	"time"
)

// Gate counts events and lets one through at most once per interval.
// It is safe for concurrent use.
type Gate struct {
	interval time.Duration
	now      func() time.Time
	last     atomic.Int64
	total    atomic.Uint64
}

// NewGate builds a Gate. A non-positive interval lets every event through;
// a nil clock uses time.Now.
func NewGate(interval time.Duration, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{interval: interval, now: now}
}

// Tick counts one event and reports whether it may be logged. The first
// event always passes.
func (g *Gate) Tick() (uint64, bool) {
	if g == nil {
		return 0, false
	}
	total := g.total.Add(1)
	if g.interval <= 0 {
		return total, true
	}
	now := g.now().UnixNano()
	last := g.last.Load()
	if last != 0 && now-last < g.interval.Nanoseconds() {
		return total, false
	}
	return total, g.last.CompareAndSwap(last, now)
}
