// Package fallback implements the full router behind the fast-route tier.
// The dispatch core is agnostic to what lives here: it calls a single
// Handle entry point for every request the fast table does not claim.
package fallback

import (
	"github.com/kowito/chopin-sub000/core/httpx"
)

// Handler is the single entry point the dispatch core calls on a fast-route
// miss. Implementations read the request from the Context and accumulate
// the response into it; the core materializes and writes the wire bytes.
type Handler interface {
	Handle(ctx *httpx.Context)
}

// HandlerAdapter turns a plain function into a Handler.
type HandlerAdapter func(*httpx.Context)

// Handle implements Handler.
func (f HandlerAdapter) Handle(ctx *httpx.Context) { f(ctx) }

// Router is the default fallback implementation: a middleware pipeline in
// front of a method-aware radix tree with path parameters and wildcards.
type Router struct {
	tree     *radixTree
	mw       *pipeline
	notFound HandlerFunc
}

// NewRouter creates an empty fallback router.
func NewRouter() *Router {
	return &Router{
		tree: newRadixTree(),
		mw:   newPipeline(),
	}
}

// Use appends a middleware run before every matched handler. Middleware may
// call ctx.Abort to stop the chain.
func (r *Router) Use(mw HandlerFunc) *Router {
	r.mw.use(mw)
	return r
}

// Add registers a handler for an arbitrary method.
func (r *Router) Add(method, path string, handler HandlerFunc) {
	r.tree.add(method, path, handler)
}

// GET registers a GET route
func (r *Router) GET(path string, handler HandlerFunc) { r.Add("GET", path, handler) }

// POST registers a POST route
func (r *Router) POST(path string, handler HandlerFunc) { r.Add("POST", path, handler) }

// PUT registers a PUT route
func (r *Router) PUT(path string, handler HandlerFunc) { r.Add("PUT", path, handler) }

// DELETE registers a DELETE route
func (r *Router) DELETE(path string, handler HandlerFunc) { r.Add("DELETE", path, handler) }

// PATCH registers a PATCH route
func (r *Router) PATCH(path string, handler HandlerFunc) { r.Add("PATCH", path, handler) }

// HEAD registers a HEAD route
func (r *Router) HEAD(path string, handler HandlerFunc) { r.Add("HEAD", path, handler) }

// OPTIONS registers an OPTIONS route
func (r *Router) OPTIONS(path string, handler HandlerFunc) { r.Add("OPTIONS", path, handler) }

// NotFound overrides the default 404 response.
func (r *Router) NotFound(handler HandlerFunc) {
	r.notFound = handler
}

// Handle implements Handler. It resolves the route, runs the middleware
// chain, and falls back to 404/405 JSON errors in the standard error shape.
func (r *Router) Handle(ctx *httpx.Context) {
	h, pathMatched := r.tree.find(ctx.Req.Method, ctx.Req.Path, ctx)

	if h == nil {
		if pathMatched {
			ctx.Error(405, "Method Not Allowed")
			return
		}
		if r.notFound != nil {
			r.mw.execute(ctx, r.notFound)
			return
		}
		ctx.Error(404, "Not Found")
		return
	}

	r.mw.execute(ctx, h)
}
