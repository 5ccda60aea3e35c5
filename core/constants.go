package core

import (
	"errors"
	"time"
)

// Dispatch loop tuning
const (
	pollIntervalMs = 100 // poller wait granularity, also the shutdown check interval
	initialBufSize = 8192

	// maxConnBuffer caps read-buffer growth: the largest parseable request
	// (head cap plus body cap) rounded up to the next buffer doubling. A
	// request that cannot complete within it gets a 413.
	maxConnBuffer = 2 << 20
	idleTimeout    = 5 * time.Second
	sweepInterval  = 1 * time.Second
)

// Error definitions
var (
	ErrAlreadyRunning = errors.New("engine already running")
	ErrNotRunning     = errors.New("engine not running")
)
