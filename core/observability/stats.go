// Package observability collects per-core dispatch counters. Each worker
// owns one CoreStats and is its only writer, so the hot path records events
// with plain atomic stores and no cross-core cache traffic.
package observability

import (
	"sync/atomic"
	"time"
)

// CoreStats holds counters for a single worker core. The owning worker is
// the only writer; readers snapshot through atomic loads. The struct is
// padded out to a cache line so neighbouring cores never share one.
type CoreStats struct {
	Conns        atomic.Uint64 // accepted connections
	ClosedConns  atomic.Uint64
	Requests     atomic.Uint64 // fully parsed requests
	FastHits     atomic.Uint64 // served from the precomputed table
	FallbackHits atomic.Uint64 // delegated to the fallback handler
	ParseErrors  atomic.Uint64
	Panics       atomic.Uint64 // handler panics recovered
	BytesRead    atomic.Uint64
	BytesWritten atomic.Uint64

	_ [56]byte // padding to the next cache line
}

// Snapshot is a point-in-time copy of one core's counters.
type Snapshot struct {
	Core         int
	Conns        uint64
	ClosedConns  uint64
	Requests     uint64
	FastHits     uint64
	FallbackHits uint64
	ParseErrors  uint64
	Panics       uint64
	BytesRead    uint64
	BytesWritten uint64
}

// Monitor aggregates the per-core stat blocks. It is created once at engine
// start with a fixed core count; the slice is never resized afterwards.
type Monitor struct {
	cores   []CoreStats
	started time.Time
}

// NewMonitor allocates stat blocks for n cores.
func NewMonitor(n int) *Monitor {
	return &Monitor{
		cores:   make([]CoreStats, n),
		started: time.Now(),
	}
}

// Core returns the stat block owned by worker id.
func (m *Monitor) Core(id int) *CoreStats {
	return &m.cores[id]
}

// Uptime reports time since the monitor was created.
func (m *Monitor) Uptime() time.Duration {
	return time.Since(m.started)
}

// Snapshot copies one core's counters.
func (m *Monitor) Snapshot(id int) Snapshot {
	c := &m.cores[id]
	return Snapshot{
		Core:         id,
		Conns:        c.Conns.Load(),
		ClosedConns:  c.ClosedConns.Load(),
		Requests:     c.Requests.Load(),
		FastHits:     c.FastHits.Load(),
		FallbackHits: c.FallbackHits.Load(),
		ParseErrors:  c.ParseErrors.Load(),
		Panics:       c.Panics.Load(),
		BytesRead:    c.BytesRead.Load(),
		BytesWritten: c.BytesWritten.Load(),
	}
}

// Totals sums every core into a single snapshot with Core set to -1.
func (m *Monitor) Totals() Snapshot {
	total := Snapshot{Core: -1}
	for i := range m.cores {
		s := m.Snapshot(i)
		total.Conns += s.Conns
		total.ClosedConns += s.ClosedConns
		total.Requests += s.Requests
		total.FastHits += s.FastHits
		total.FallbackHits += s.FallbackHits
		total.ParseErrors += s.ParseErrors
		total.Panics += s.Panics
		total.BytesRead += s.BytesRead
		total.BytesWritten += s.BytesWritten
	}
	return total
}
