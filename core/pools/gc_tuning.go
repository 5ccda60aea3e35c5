package pools

import (
	"runtime"
	"runtime/debug"
	"time"
)

// GCConfig holds GC tuning parameters
type GCConfig struct {
	// GOGC sets the garbage collection target percentage.
	// Default is 100. Lower values = more frequent GC but less memory.
	GOGC int

	// MemoryLimit sets a soft memory limit in bytes. 0 = no limit.
	MemoryLimit int64

	// MinRetainExtra is extra heap to retain as a baseline, which keeps the
	// collector from firing during warmup.
	MinRetainExtra int64
}

// ApplyGCConfig applies GC tuning to reduce GC pressure
func ApplyGCConfig(cfg GCConfig) {
	if cfg.GOGC > 0 {
		debug.SetGCPercent(cfg.GOGC)
	}

	if cfg.MemoryLimit > 0 {
		debug.SetMemoryLimit(cfg.MemoryLimit)
	}

	if cfg.MinRetainExtra > 0 {
		// Force a GC then immediately allocate to set the baseline.
		runtime.GC()
		_ = make([]byte, cfg.MinRetainExtra)
	}
}

// OptimizeForHighThroughput applies GC settings for the event-loop engine:
// very infrequent collections, since the hot path barely allocates.
func OptimizeForHighThroughput() {
	ApplyGCConfig(GCConfig{
		GOGC:           300,
		MinRetainExtra: 100 << 20,
	})
}

// OptimizeForLowLatency applies moderate settings, used by the standard-mode
// net/http server where per-request allocation is unavoidable.
func OptimizeForLowLatency() {
	ApplyGCConfig(GCConfig{
		GOGC:           150,
		MinRetainExtra: 30 << 20,
	})
}

// GCStats holds garbage collection statistics
type GCStats struct {
	NumGC        uint32
	PauseTotal   time.Duration
	LastPause    time.Duration
	AvgPause     time.Duration
	AllocBytes   uint64
	TotalAlloc   uint64
	Sys          uint64
	NumGoroutine int
}

// GetGCStats returns current GC statistics
func GetGCStats() GCStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := GCStats{
		NumGC:        ms.NumGC,
		AllocBytes:   ms.Alloc,
		TotalAlloc:   ms.TotalAlloc,
		Sys:          ms.Sys,
		NumGoroutine: runtime.NumGoroutine(),
	}

	if ms.NumGC > 0 {
		stats.LastPause = time.Duration(ms.PauseNs[(ms.NumGC+255)%256])

		numPauses := ms.NumGC
		if numPauses > 256 {
			numPauses = 256
		}

		var totalPause uint64
		for i := uint32(0); i < numPauses; i++ {
			totalPause += ms.PauseNs[i]
		}

		stats.PauseTotal = time.Duration(totalPause)
		stats.AvgPause = time.Duration(totalPause / uint64(numPauses))
	}

	return stats
}
