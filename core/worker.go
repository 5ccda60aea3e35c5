package core

import (
	"log"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kowito/chopin-sub000/core/httpx"
	"github.com/kowito/chopin-sub000/core/observability"
	"github.com/kowito/chopin-sub000/core/poller"
	"github.com/kowito/chopin-sub000/core/pools"
)

// worker is one dispatch core: its own listener fd, its own poller, its own
// connection table and buffer arena. Workers never touch each other's state;
// the only shared structures are the frozen route table, the fallback
// handler, and the global date epoch.
type worker struct {
	id  int
	eng *Engine

	lfd int
	pl  poller.Poller

	conns    map[int]*conn
	freeList []*conn
	arena    *pools.BufferArena
	date     httpx.DateCache
	stats    *observability.CoreStats

	// pool is nil in the default single-threaded configuration. With
	// workers-per-core > 1 it runs connection handling off the event loop;
	// stealing stays inside this core.
	pool   *pools.WorkerPool
	deadCh chan *conn

	accepting bool
	lastSweep time.Time
}

func newWorker(id int, eng *Engine, lfd int) (*worker, error) {
	pl, err := poller.NewPoller()
	if err != nil {
		return nil, err
	}
	if err := pl.Add(lfd); err != nil {
		pl.Close()
		return nil, err
	}

	w := &worker{
		id:        id,
		eng:       eng,
		lfd:       lfd,
		pl:        pl,
		conns:     make(map[int]*conn, 1024),
		arena:     pools.NewBufferArena(),
		stats:     eng.monitor.Core(id),
		accepting: true,
		lastSweep: time.Now(),
	}

	if eng.cfg.WorkersPerCore > 1 {
		w.pool = pools.NewWorkerPool(eng.cfg.WorkersPerCore)
		w.deadCh = make(chan *conn, 256)
	}

	return w, nil
}

// run is the worker's event loop. The goroutine is pinned to its OS thread
// so the kernel's SO_REUSEPORT flow steering and the per-core cache locality
// actually hold.
func (w *worker) run() {
	defer w.eng.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var deadline time.Time
	for {
		select {
		case <-w.eng.shutdown:
			if w.accepting {
				w.pl.Remove(w.lfd)
				unix.Close(w.lfd)
				w.accepting = false
				deadline = time.Now().Add(w.eng.cfg.GracePeriod)
			}
		default:
		}

		fds, err := w.pl.Wait(pollIntervalMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Printf("core: worker %d: poll: %v", w.id, err)
			continue
		}

		for _, fd := range fds {
			if fd == w.lfd {
				if w.accepting {
					w.accept()
				}
				continue
			}
			if c, ok := w.conns[fd]; ok {
				w.dispatch(c)
			}
		}

		w.reapDead()
		w.sweepIdle()

		if !w.accepting && (len(w.conns) == 0 || time.Now().After(deadline)) {
			break
		}
	}

	w.teardown()
}

// accept drains the listener backlog.
func (w *worker) accept() {
	for {
		nfd, _, err := unix.Accept(w.lfd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.ECONNABORTED || err == unix.EINTR {
				continue
			}
			log.Printf("core: worker %d: accept: %v", w.id, err)
			return
		}

		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			continue
		}
		if w.eng.cfg.NoDelay {
			unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		}
		unix.SetsockoptInt(nfd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)

		c := w.getConn(nfd)
		if err := w.pl.Add(nfd); err != nil {
			unix.Close(nfd)
			w.putConn(c)
			continue
		}
		w.conns[nfd] = c
		w.stats.Conns.Add(1)
	}
}

// dispatch routes a readable event either inline or onto the core's pool.
func (w *worker) dispatch(c *conn) {
	c.lastActive = time.Now()

	if w.pool == nil {
		w.handleConn(c)
		if c.closeAfter {
			w.closeConn(c)
		}
		return
	}

	// One task per conn at a time. The poller is level-triggered, so a
	// skipped event refires while unread data remains.
	if !c.busy.CompareAndSwap(false, true) {
		return
	}
	w.pool.Submit(func() {
		w.handleConn(c)
		if c.closeAfter {
			// busy stays set so the conn is never dispatched again. The
			// fd is closed on the worker thread: closing it here could
			// race the accept loop on a recycled fd number.
			w.deadCh <- c
			return
		}
		c.busy.Store(false)
	})
}

// handleConn reads whatever the socket has, serves every complete pipelined
// request in order, and writes the concatenated responses back.
func (w *worker) handleConn(c *conn) {
	for {
		if c.off == len(c.buf) {
			if len(c.buf) >= maxConnBuffer {
				// Growth stops at the cap; serveBuffered answers 413 for a
				// request that still cannot complete.
				break
			}
			if w.pool == nil {
				c.buf = w.arena.Grow(c.buf)
			} else {
				// Pool tasks must not touch the worker-owned freelists.
				c.buf = growBuf(c.buf)
			}
		}
		n, err := unix.Read(c.fd, c.buf[c.off:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			if err == unix.EINTR {
				continue
			}
			c.closeAfter = true
			break
		}
		if n == 0 {
			// Peer closed its write side. Requests already buffered are
			// still served before the connection goes down.
			c.closeAfter = true
			break
		}
		c.off += n
		w.stats.BytesRead.Add(uint64(n))
		if c.off < len(c.buf) {
			break // short read, socket is drained
		}
	}

	// Each pool task must own its date cache; inline handling shares the
	// worker's.
	date := &w.date
	if w.pool != nil {
		date = &c.date
	}
	w.serveBuffered(c, date)
}

// serveBuffered parses and serves every complete request sitting in the
// read buffer. Responses accumulate into one write buffer so a pipelined
// burst goes out in a single writev-like syscall, in arrival order.
func (w *worker) serveBuffered(c *conn, date *httpx.DateCache) {
	consumed := 0
	c.out = c.out[:0]

	for {
		data := c.buf[consumed:c.off]
		if len(data) == 0 {
			break
		}

		req, n, err := httpx.Parse(data)
		if err == httpx.ErrIncomplete {
			if c.off-consumed > httpx.MaxHeadBytes+httpx.MaxBodyBytes {
				c.out = httpx.AppendError(c.out, 413, date)
				c.closeAfter = true
				consumed = c.off
			}
			break
		}
		if err == httpx.ErrBodyTooLarge {
			c.out = httpx.AppendError(c.out, 413, date)
			c.closeAfter = true
			consumed = c.off
			break
		}
		if err != nil {
			w.stats.ParseErrors.Add(1)
			c.out = httpx.AppendError(c.out, 400, date)
			c.closeAfter = true
			consumed = c.off
			break
		}

		consumed += n
		w.stats.Requests.Add(1)
		w.serveRequest(c, date, req)

		keep := req.KeepAlive()
		httpx.ReleaseRequest(req)

		if c.closeAfter {
			// A panic poisoned the connection; drop the rest of the burst.
			consumed = c.off
			break
		}
		if !keep {
			// Discard anything pipelined after an explicit close.
			c.closeAfter = true
			consumed = c.off
			break
		}
	}

	if consumed > 0 && consumed < c.off {
		copy(c.buf, c.buf[consumed:c.off])
	}
	c.off -= consumed

	if len(c.out) > 0 {
		w.writeOut(c)
	}
}

// serveRequest produces exactly one response for req into c.out. This is
// the panic boundary: a handler or producer panic costs this request a 500
// and the connection, never the worker.
func (w *worker) serveRequest(c *conn, date *httpx.DateCache, req *httpx.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			w.stats.Panics.Add(1)
			log.Printf("core: worker %d: panic serving %s %s: %v", w.id, req.Method, req.Path, rec)
			c.out = httpx.AppendError(c.out, 500, date)
			c.closeAfter = true
		}
	}()

	if rt := w.eng.table.Match(req.Method, req.Path); rt != nil {
		var err error
		c.out, c.scratch, err = rt.Render(c.out, c.scratch, date, req.Method == "HEAD")
		if err != nil {
			log.Printf("core: worker %d: render %s: %v", w.id, req.Path, err)
			c.out = httpx.AppendError(c.out, 500, date)
			return
		}
		w.stats.FastHits.Add(1)
		return
	}

	if w.eng.fallback == nil {
		c.out = httpx.AppendError(c.out, 404, date)
		return
	}

	w.stats.FallbackHits.Add(1)
	ctx := httpx.AcquireContext(req)
	w.eng.fallback.Handle(ctx)
	c.out = httpx.AppendResponse(c.out, ctx, date, req.Method == "HEAD")
	httpx.ReleaseContext(ctx)
}

// writeOut flushes c.out to the socket, handling partial writes. A send
// buffer that stays full long enough to exhaust the retries counts as a
// dead peer.
func (w *worker) writeOut(c *conn) {
	buf := c.out
	retries := 0
	for len(buf) > 0 {
		n, err := unix.Write(c.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				retries++
				if retries > 1000 {
					c.closeAfter = true
					return
				}
				runtime.Gosched()
				continue
			}
			if err == unix.EINTR {
				continue
			}
			c.closeAfter = true
			return
		}
		buf = buf[n:]
		w.stats.BytesWritten.Add(uint64(n))
	}
}

// getConn takes a conn from the worker-local free list.
func (w *worker) getConn(fd int) *conn {
	var c *conn
	if n := len(w.freeList); n > 0 {
		c = w.freeList[n-1]
		w.freeList = w.freeList[:n-1]
	} else {
		c = &conn{}
	}
	c.fd = fd
	c.buf = w.arena.Get(initialBufSize)
	c.lastActive = time.Now()
	return c
}

// putConn recycles a conn and its read buffer.
func (w *worker) putConn(c *conn) {
	if c.buf != nil {
		w.arena.Put(c.buf)
	}
	c.reset()
	if len(w.freeList) < 256 {
		w.freeList = append(w.freeList, c)
	}
}

// closeConn removes the conn from the poller and the table and closes it.
// Only called on the worker thread.
func (w *worker) closeConn(c *conn) {
	w.pl.Remove(c.fd)
	delete(w.conns, c.fd)
	unix.Close(c.fd)
	w.stats.ClosedConns.Add(1)
	w.putConn(c)
}

// reapDead closes conns that pool tasks finished with.
func (w *worker) reapDead() {
	if w.deadCh == nil {
		return
	}
	for {
		select {
		case c := <-w.deadCh:
			w.closeConn(c)
		default:
			return
		}
	}
}

// sweepIdle closes connections idle past the timeout.
func (w *worker) sweepIdle() {
	now := time.Now()
	if now.Sub(w.lastSweep) < sweepInterval {
		return
	}
	w.lastSweep = now

	var toClose []*conn
	for _, c := range w.conns {
		if w.pool != nil && c.busy.Load() {
			continue
		}
		if now.Sub(c.lastActive) > idleTimeout {
			toClose = append(toClose, c)
		}
	}
	for _, c := range toClose {
		w.closeConn(c)
	}
}

// teardown closes everything the worker still owns.
func (w *worker) teardown() {
	if w.pool != nil {
		w.pool.Close()
		// Queued tasks drain after Close; wait for in-flight ones before
		// closing fds underneath them.
		for i := 0; i < 100; i++ {
			w.reapDead()
			busy := false
			for _, c := range w.conns {
				if c.busy.Load() {
					busy = true
					break
				}
			}
			if !busy {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		w.reapDead()
	}
	for _, c := range w.conns {
		w.pl.Remove(c.fd)
		unix.Close(c.fd)
		w.stats.ClosedConns.Add(1)
	}
	w.conns = nil
	w.pl.Close()
	if w.accepting {
		unix.Close(w.lfd)
	}
}
