package httpx

import (
	"sync"
	"sync/atomic"
	"time"
)

// DateRefreshInterval bounds how stale a served Date header can be: one
// interval plus one tick of scheduler delay.
const DateRefreshInterval = 500 * time.Millisecond

// dateEpoch is the only piece of state mutated across cores: a single
// writer (the ticker goroutine) bumps it, every worker reads it. Workers
// reformat their private Date string only when the epoch moved.
var dateEpoch atomic.Uint32

var dateTickerOnce sync.Once

// StartDateTicker starts the background epoch ticker. Safe to call more than
// once; the engine calls it on Run.
func StartDateTicker() {
	dateTickerOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(DateRefreshInterval)
			for range ticker.C {
				dateEpoch.Add(1)
			}
		}()
	})
}

// DateCache is a per-worker formatted Date value keyed by the global epoch.
// Each dispatch worker embeds its own; the zero value is ready to use and
// formats lazily on first Append.
type DateCache struct {
	epoch uint32
	valid bool
	buf   []byte
}

// rfc1123 layout used by the Date header ("Mon, 02 Jan 2006 15:04:05 GMT").
const dateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// Append appends the cached Date value to dst, reformatting only when the
// global epoch has moved since the last call. Steady state allocates
// nothing.
func (d *DateCache) Append(dst []byte) []byte {
	if e := dateEpoch.Load(); !d.valid || e != d.epoch {
		d.buf = time.Now().UTC().AppendFormat(d.buf[:0], dateLayout)
		d.epoch = e
		d.valid = true
	}
	return append(dst, d.buf...)
}

// Invalidate forces the next Append to reformat. Used by tests.
func (d *DateCache) Invalidate() {
	d.valid = false
}
