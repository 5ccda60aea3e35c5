package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/kowito/chopin-sub000/config"
	"github.com/kowito/chopin-sub000/core/fallback"
	"github.com/kowito/chopin-sub000/core/fastroute"
	"github.com/kowito/chopin-sub000/core/httpx"
	"github.com/kowito/chopin-sub000/core/observability"
	"github.com/kowito/chopin-sub000/core/pools"
)

// Engine is the dual-mode HTTP dispatch core. Routes registered through
// Static and Dynamic are served from the precomputed fast tier; everything
// else goes to the fallback handler. In performance mode each core runs its
// own SO_REUSEPORT listener and event loop; in standard mode the same
// registrations are served through net/http.
type Engine struct {
	cfg      *config.Config
	table    *fastroute.Table
	fallback fallback.Handler
	monitor  *observability.Monitor

	workers  []*worker
	std      *fallback.StdServer
	shutdown chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  atomic.Bool
}

// NewEngine creates an engine for the given configuration. Registration is
// only valid before Run. In standard mode the net/http server is built here
// so that Shutdown never races with Run over its existence.
func NewEngine(cfg *config.Config) *Engine {
	e := &Engine{
		cfg:      cfg,
		table:    fastroute.New(),
		fallback: fallback.NewRouter(),
		monitor:  observability.NewMonitor(cfg.Cores),
		shutdown: make(chan struct{}),
	}
	if cfg.Mode == config.ModeStandard {
		e.std = fallback.NewStdServer(fallback.StdConfig{Addr: cfg.Addr}, &tableHandler{eng: e})
	}
	return e
}

// Static registers a fixed-body fast route. The complete response is
// precomputed at registration; serving is a memory copy.
func (e *Engine) Static(path string, body []byte, opts ...fastroute.Option) error {
	return e.table.Static(path, body, opts...)
}

// Dynamic registers a fast route whose body comes from producer on every
// request. Headers are still precomputed.
func (e *Engine) Dynamic(path string, producer fastroute.Producer, opts ...fastroute.Option) error {
	return e.table.Dynamic(path, producer, opts...)
}

// Fallback replaces the handler for requests the fast tier does not claim.
// The default is an empty fallback.Router. Passing nil turns misses into
// bare 404 responses.
func (e *Engine) Fallback(h fallback.Handler) {
	e.fallback = h
}

// Router returns the default fallback router, or nil if Fallback installed
// something else.
func (e *Engine) Router() *fallback.Router {
	r, _ := e.fallback.(*fallback.Router)
	return r
}

// Monitor exposes the per-core dispatch counters.
func (e *Engine) Monitor() *observability.Monitor {
	return e.monitor
}

// Run freezes the route table and serves until Shutdown. It returns the
// first startup error, or nil after a graceful stop.
func (e *Engine) Run() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if err := e.cfg.Validate(); err != nil {
		return fmt.Errorf("core: config: %w", err)
	}

	e.table.Freeze()
	httpx.StartDateTicker()

	if e.cfg.Mode == config.ModeStandard {
		return e.runStandard()
	}
	return e.runPerformance()
}

func (e *Engine) runPerformance() error {
	pools.OptimizeForHighThroughput()

	for i := 0; i < e.cfg.Cores; i++ {
		lfd, err := newListenerFD(e.cfg.Addr, e.cfg.Backlog)
		if err != nil {
			e.closeWorkers()
			return err
		}
		w, err := newWorker(i, e, lfd)
		if err != nil {
			unix.Close(lfd)
			e.closeWorkers()
			return fmt.Errorf("core: worker %d: %w", i, err)
		}
		e.workers = append(e.workers, w)
	}

	log.Printf("performance mode: %d cores on %s (fast routes: %d, workers/core: %d)",
		e.cfg.Cores, e.cfg.Addr, e.table.Len(), e.cfg.WorkersPerCore)

	for _, w := range e.workers {
		e.wg.Add(1)
		go w.run()
	}
	e.wg.Wait()
	return nil
}

func (e *Engine) runStandard() error {
	pools.OptimizeForLowLatency()

	log.Printf("standard mode on %s (fast routes: %d)", e.cfg.Addr, e.table.Len())
	return e.std.ListenAndServe()
}

// Shutdown stops accepting, drains in-flight connections within the grace
// period, and returns when every worker has exited or ctx expires.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.running.Load() {
		return ErrNotRunning
	}

	if e.std != nil {
		return e.std.Shutdown(ctx)
	}

	e.stopOnce.Do(func() {
		close(e.shutdown)
	})

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeWorkers tears down partially started workers after a bind failure.
func (e *Engine) closeWorkers() {
	for _, w := range e.workers {
		w.pl.Close()
		unix.Close(w.lfd)
	}
	e.workers = nil
}

// tableHandler serves fast-table hits through the Context contract so
// standard mode and performance mode answer identically. It reads the
// engine's table and fallback per request: both are fixed before Run.
type tableHandler struct {
	eng *Engine
}

func (h *tableHandler) Handle(ctx *httpx.Context) {
	if rt := h.eng.table.Match(ctx.Req.Method, ctx.Req.Path); rt != nil {
		if err := rt.Serve(ctx); err != nil {
			log.Printf("core: serve %s: %v", ctx.Req.Path, err)
			ctx.Error(500, "Internal Server Error")
		}
		return
	}
	if next := h.eng.fallback; next != nil {
		next.Handle(ctx)
		return
	}
	ctx.Error(404, "Not Found")
}
