/*
Package chopin provides a dual-mode HTTP dispatch core.

Chopin answers a small set of pre-registered "fast routes" with zero
allocations on the hot path and hands every other request to a full
middleware-driven fallback router. In performance mode it runs one
SO_REUSEPORT listener and one epoll event loop per CPU core, with every
accepted connection owned exclusively by the core that accepted it
(shared-nothing), keep-alive and HTTP/1.1 pipelining included. In standard
mode the event loop is bypassed and the fallback router serves through
net/http with cleartext HTTP/2 (h2c).

Quick Start

Basic usage example:

	package main

	import (
	    "time"

	    "github.com/kowito/chopin-sub000/app"
	    "github.com/kowito/chopin-sub000/config"
	    "github.com/kowito/chopin-sub000/core/fastroute"
	)

	func main() {
	    cfg := config.New()
	    application := app.New(cfg)

	    engine := application.Engine()
	    engine.Static("/health", []byte(`{"ok":true}`),
	        fastroute.WithContentType("application/json"),
	        fastroute.WithMethods("GET"))
	    engine.Dynamic("/time", func() any {
	        return map[string]int64{"now": time.Now().Unix()}
	    })

	    application.Run()
	}

Modules

The repository is organized into several modules:

  - app: Application lifecycle management
  - config: Environment-driven configuration
  - core: Listener pool, per-core workers, connection handling, shutdown
  - core/httpx: HTTP/1.1 parsing, response construction, date caching
  - core/fastroute: Pre-registered zero-allocation routes
  - core/fallback: Default fallback router (radix tree + middleware pipeline)
  - core/poller: I/O multiplexing (epoll/kqueue)
  - core/pools: Buffer pools, per-core worker pools, GC tuning
  - core/optimize: SIMD-assisted comparisons
  - core/observability: Per-core counters and aggregated snapshots

Dispatch Model

Every request is matched against the fast-route table first. A hit is
answered synchronously from precomputed wire bytes; only the Date header
and, for dynamic routes, the body are produced per request. A miss is
delegated to the fallback router through a single Handle entry point; the
core is agnostic to whatever middleware, auth, or business logic lives
behind that call.
*/
package chopin
