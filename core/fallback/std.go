package fallback

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kowito/chopin-sub000/core/httpx"
)

// StdServer serves the fallback router through net/http with cleartext
// HTTP/2 (h2c). This is the whole of standard mode: no fast table, no
// event loops, every request walks the middleware chain.
type StdServer struct {
	addr    string
	server  *http.Server
	handler Handler
}

// StdConfig contains standard-mode server settings
type StdConfig struct {
	Addr                 string
	MaxConcurrentStreams uint32
	IdleTimeout          time.Duration
	ReadHeaderTimeout    time.Duration
	MaxBodyBytes         int64
}

// NewStdServer wraps handler in an h2c-enabled net/http server.
func NewStdServer(cfg StdConfig, handler Handler) *StdServer {
	if cfg.MaxConcurrentStreams == 0 {
		cfg.MaxConcurrentStreams = 250
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 2 << 20
	}

	h2s := &http2.Server{
		MaxConcurrentStreams: cfg.MaxConcurrentStreams,
		IdleTimeout:          cfg.IdleTimeout,
	}

	adapter := &stdAdapter{handler: handler, maxBody: cfg.MaxBodyBytes}

	return &StdServer{
		addr:    cfg.Addr,
		handler: handler,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           h2c.NewHandler(adapter, h2s),
			IdleTimeout:       cfg.IdleTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
	}
}

// ListenAndServe blocks serving until Shutdown. http.ErrServerClosed is
// mapped to nil so a graceful stop reads as success.
func (s *StdServer) ListenAndServe() error {
	log.Printf("standard mode: net/http (h2c) listening on %s", s.addr)

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fallback: standard server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *StdServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// stdAdapter translates between net/http and the native Context contract.
type stdAdapter struct {
	handler Handler
	maxBody int64
}

// ServeHTTP lets the router plug straight into any net/http server.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a := stdAdapter{handler: rt, maxBody: 2 << 20}
	a.ServeHTTP(w, r)
}

func (a *stdAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := httpx.AcquireRequest()
	defer httpx.ReleaseRequest(req)

	req.Method = r.Method
	req.Path = r.URL.Path
	req.Proto = r.Proto
	req.Host = r.Host

	for k, vs := range r.Header {
		if len(vs) > 0 {
			req.SetHeader(k, vs[0])
		}
	}

	if rq := r.URL.Query(); len(rq) > 0 {
		if req.Query == nil {
			req.Query = make(map[string]string, len(rq))
		}
		for k, vs := range rq {
			if len(vs) > 0 {
				req.Query[k] = vs[0]
			} else {
				req.Query[k] = ""
			}
		}
	}

	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, a.maxBody))
		if err != nil {
			http.Error(w, "unreadable body", http.StatusBadRequest)
			return
		}
		req.Body = body
	}

	ctx := httpx.AcquireContext(req)
	defer httpx.ReleaseContext(ctx)

	// The panic boundary lives here in standard mode; in performance mode
	// the dispatch worker owns it.
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("fallback: handler panic on %s %s: %v", req.Method, req.Path, rec)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}()

	a.handler.Handle(ctx)

	ctx.VisitHeaders(func(key, value string) {
		w.Header().Set(key, value)
	})
	w.WriteHeader(ctx.StatusCode())
	w.Write(ctx.ResponseBody())
}
