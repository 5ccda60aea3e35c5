package fallback

import (
	"github.com/kowito/chopin-sub000/core/httpx"
)

// pipeline runs the registered middleware in order ahead of the matched
// handler. No interface values, no closures per request: direct calls over
// a fixed slice.
type pipeline struct {
	handlers []HandlerFunc
}

func newPipeline() *pipeline {
	return &pipeline{
		handlers: make([]HandlerFunc, 0, 16),
	}
}

// use appends a middleware to the chain.
func (p *pipeline) use(handler HandlerFunc) {
	p.handlers = append(p.handlers, handler)
}

// execute runs the chain, then finalHandler unless a middleware aborted.
func (p *pipeline) execute(ctx *httpx.Context, finalHandler HandlerFunc) {
	// Fast path: no middleware registered
	if len(p.handlers) == 0 {
		finalHandler(ctx)
		return
	}

	for _, h := range p.handlers {
		h(ctx)
		if ctx.IsAborted() {
			return
		}
	}

	finalHandler(ctx)
}
