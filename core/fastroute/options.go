package fastroute

// Option decorates a route at registration time. Decorators are independent,
// additive header insertions; when two decorators set the same header name
// the last-registered one wins.
type Option func(*Route)

// WithMethods restricts the route to the given methods. Without this option
// the route answers every method (HEAD receives headers only; CONNECT and
// TRACE always fall through to the fallback router).
func WithMethods(methods ...string) Option {
	return func(r *Route) {
		r.methods = append(r.methods, methods...)
	}
}

// WithContentType sets the Content-Type baked into the precomputed header
// block. Static routes default to application/octet-stream, dynamic routes
// to application/json.
func WithContentType(ct string) Option {
	return func(r *Route) {
		r.contentType = ct
	}
}

// WithHeader adds a static header to the precomputed block.
func WithHeader(key, value string) Option {
	return func(r *Route) {
		r.setHeader(key, value)
	}
}

// WithCacheControl adds a Cache-Control header to the precomputed block.
func WithCacheControl(value string) Option {
	return func(r *Route) {
		r.setHeader("Cache-Control", value)
	}
}

// WithCORS allows any origin on the route. The allow-methods value mirrors
// the method filter known at application time, so apply it after
// WithMethods when both are used.
func WithCORS() Option {
	return func(r *Route) {
		r.setHeader("Access-Control-Allow-Origin", "*")
		if len(r.methods) > 0 {
			allow := r.methods[0]
			for _, m := range r.methods[1:] {
				allow += ", " + m
			}
			r.setHeader("Access-Control-Allow-Methods", allow)
		} else {
			r.setHeader("Access-Control-Allow-Methods", "*")
		}
		r.setHeader("Access-Control-Allow-Headers", "*")
	}
}

func (r *Route) hasHeader(key string) bool {
	for _, k := range r.hdrKeys {
		if k == key {
			return true
		}
	}
	return false
}

// setHeader inserts additively with last-registered-wins on name conflicts.
func (r *Route) setHeader(key, value string) {
	for i, k := range r.hdrKeys {
		if k == key {
			r.hdrVals[i] = value
			return
		}
	}
	r.hdrKeys = append(r.hdrKeys, key)
	r.hdrVals = append(r.hdrVals, value)
}
