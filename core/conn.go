package core

import (
	"sync/atomic"
	"time"

	"github.com/kowito/chopin-sub000/core/httpx"
)

// conn is the per-connection state. A conn belongs to exactly one worker
// for its whole life; nothing in it is shared across cores.
type conn struct {
	fd  int
	buf []byte // read buffer, requests are parsed in place
	off int    // buffered byte count

	out     []byte // response assembly buffer, reused across requests
	scratch []byte // dynamic body serialization buffer, reused

	lastActive time.Time
	closeAfter bool

	// busy guards against a second pool task starting on this conn while
	// one is still running. Only used when workers per core > 1.
	busy atomic.Bool

	// date is used instead of the worker's cache when pool tasks handle
	// this conn, so concurrent tasks never share a cache buffer.
	date httpx.DateCache
}

func (c *conn) reset() {
	c.fd = -1
	c.buf = nil
	c.off = 0
	c.out = c.out[:0]
	c.scratch = c.scratch[:0]
	c.lastActive = time.Time{}
	c.closeAfter = false
	c.busy.Store(false)
	c.date.Invalidate()
}

// growBuf returns a buffer twice the size with the contents copied over.
// Allocation is direct rather than through the arena so pool tasks can grow
// without touching worker-owned freelists.
func growBuf(buf []byte) []byte {
	size := cap(buf) * 2
	if size < initialBufSize {
		size = initialBufSize
	}
	bigger := make([]byte, size)
	copy(bigger, buf)
	return bigger
}
