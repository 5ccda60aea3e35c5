// Package fastroute implements the pre-registered zero-allocation response
// tier. Routes are registered before the server starts, their response
// header blocks are computed once, and matching on the hot path is a hash
// lookup plus one verify compare.
package fastroute

import (
	"fmt"
	"sync/atomic"

	"github.com/kowito/chopin-sub000/core/optimize"
)

// Producer is a dynamic body source: a zero-argument callable invoked fresh
// per matching request. It is shared across all workers and must be safe to
// call concurrently without mutable shared state.
type Producer func() any

// Route is one immutable fast-route entry. After the table freezes, a Route
// is read-only for the process lifetime.
type Route struct {
	path    string
	methods []string // empty = all methods

	staticBody []byte
	producer   Producer

	contentType string
	hdrKeys     []string
	hdrVals     []string

	// Precomputed wire fragments (built at registration, immutable after).
	//
	// static: staticPrefix ends just after "Date: "; staticSuffix carries
	// the blank line plus the body. A response is prefix + date + suffix.
	staticPrefix []byte
	staticSuffix []byte

	// dynamic: dynPrefix ends after the decorator headers (including
	// Content-Type when registered); length, date and body are appended
	// per request.
	dynPrefix []byte
}

// Table is the immutable fast-route set. Registration is only valid before
// Freeze; lookups after Freeze are lock-free reads.
type Table struct {
	byMethod map[uint64]*Route // hash(method+path) -> method-filtered entries
	byPath   map[uint64]*Route // hash(path) -> all-method entries
	routes   []*Route
	frozen   atomic.Bool
}

// New creates an empty table.
func New() *Table {
	return &Table{
		byMethod: make(map[uint64]*Route, 32),
		byPath:   make(map[uint64]*Route, 8),
	}
}

// Static registers a route answering with a fixed byte body.
func (t *Table) Static(path string, body []byte, opts ...Option) error {
	r := &Route{path: path, staticBody: body}
	return t.register(r, opts)
}

// Dynamic registers a route whose body is produced fresh per request.
// The default content type is application/json; override it with
// WithContentType when the producer returns bytes, strings, or
// proto.Messages.
func (t *Table) Dynamic(path string, producer Producer, opts ...Option) error {
	if producer == nil {
		return fmt.Errorf("fastroute: nil producer for %q", path)
	}
	r := &Route{path: path, producer: producer}
	return t.register(r, opts)
}

func (t *Table) register(r *Route, opts []Option) error {
	if t.frozen.Load() {
		// Programmer error, not a runtime condition: registration is only
		// legal during startup.
		panic("fastroute: route registered after the table froze (server already started)")
	}

	if len(r.path) == 0 || r.path[0] != '/' {
		return fmt.Errorf("fastroute: path %q must start with '/'", r.path)
	}

	for _, opt := range opts {
		opt(r)
	}

	// A CORS-decorated, method-filtered route answers preflight from the
	// table too.
	if len(r.methods) > 0 && r.hasHeader("Access-Control-Allow-Origin") && !r.allowsMethod("OPTIONS") {
		r.methods = append(r.methods, "OPTIONS")
	}

	if err := t.checkConflicts(r); err != nil {
		return err
	}

	r.precompute()

	if len(r.methods) == 0 {
		t.byPath[hash("", r.path)] = r
	} else {
		for _, m := range r.methods {
			t.byMethod[hash(m, r.path)] = r
		}
	}
	t.routes = append(t.routes, r)
	return nil
}

// checkConflicts rejects duplicate (path, method) pairs, including overlaps
// between method-filtered and all-method entries on the same path.
func (t *Table) checkConflicts(r *Route) error {
	for _, existing := range t.routes {
		if existing.path != r.path {
			continue
		}
		if len(existing.methods) == 0 || len(r.methods) == 0 {
			return fmt.Errorf("fastroute: duplicate route %q (all-method entry conflicts)", r.path)
		}
		for _, m := range r.methods {
			for _, em := range existing.methods {
				if m == em {
					return fmt.Errorf("fastroute: duplicate route %s %q", m, r.path)
				}
			}
		}
	}
	return nil
}

// Freeze closes registration. Called by the engine before the first listener
// opens; idempotent.
func (t *Table) Freeze() {
	t.frozen.Store(true)
}

// Frozen reports whether registration has closed.
func (t *Table) Frozen() bool {
	return t.frozen.Load()
}

// Len returns the number of registered routes.
func (t *Table) Len() int {
	return len(t.routes)
}

// Match returns the fast route serving (method, path), or nil when the
// request belongs to the fallback router. Zero allocations.
func (t *Table) Match(method, path string) *Route {
	// Method-filtered entries first: exact (method, path) hash.
	if r, ok := t.byMethod[hash(method, path)]; ok {
		// Hash collision guard: verify the literal match.
		if optimize.EqualString(r.path, path) && r.allowsMethod(method) {
			return r
		}
	}

	// All-method entries by path hash.
	if r, ok := t.byPath[hash("", path)]; ok {
		if optimize.EqualString(r.path, path) {
			// Structurally incompatible verbs stay on the fallback path
			// even for all-method entries.
			if method == "CONNECT" || method == "TRACE" {
				return nil
			}
			return r
		}
	}

	return nil
}

func (r *Route) allowsMethod(method string) bool {
	for _, m := range r.methods {
		if m == method {
			return true
		}
	}
	return false
}

// Path returns the registered literal path.
func (r *Route) Path() string { return r.path }

// Dynamic reports whether the route has a producer body source.
func (r *Route) Dynamic() bool { return r.producer != nil }

// hash computes an FNV-1a hash over method+path.
func hash(method, path string) uint64 {
	const prime = 1099511628211
	h := uint64(14695981039346656037)

	for i := 0; i < len(method); i++ {
		h ^= uint64(method[i])
		h *= prime
	}
	for i := 0; i < len(path); i++ {
		h ^= uint64(path[i])
		h *= prime
	}

	return h
}
