// Package httpx implements the HTTP/1.1 wire layer of the dispatch core:
// zero-allocation request parsing, response materialization, body encoding,
// and the cached Date header.
package httpx

import "sync"

// Request is a zero-allocation HTTP request structure. Its string fields
// alias the connection read buffer: a Request is only valid until the
// response for it has been written and must never outlive its connection
// turn.
type Request struct {
	Method string
	Path   string
	Proto  string

	// Predefined common header fields (zero-allocation)
	ContentType   string
	ContentLength int
	UserAgent     string
	Accept        string
	Host          string
	Connection    string

	// Extra headers (allocated only when needed)
	ExtraHeaders map[string]string

	// Query parameters
	Query map[string]string

	// Request body (aliases the read buffer)
	Body []byte
}

var requestPool = sync.Pool{
	New: func() any {
		return &Request{}
	},
}

// AcquireRequest returns a pooled Request.
func AcquireRequest() *Request {
	return requestPool.Get().(*Request)
}

// ReleaseRequest resets req and returns it to the pool.
func ReleaseRequest(req *Request) {
	req.Reset()
	requestPool.Put(req)
}

// Reset resets the request for reuse (maps are cleared, not freed)
func (r *Request) Reset() {
	r.Method = ""
	r.Path = ""
	r.Proto = ""
	r.ContentType = ""
	r.ContentLength = 0
	r.UserAgent = ""
	r.Accept = ""
	r.Host = ""
	r.Connection = ""
	r.Body = nil

	if r.ExtraHeaders != nil {
		for k := range r.ExtraHeaders {
			delete(r.ExtraHeaders, k)
		}
	}

	if r.Query != nil {
		for k := range r.Query {
			delete(r.Query, k)
		}
	}
}

// foldEqual reports ASCII case-insensitive equality without allocating.
// Header field names (RFC 9110) and Connection tokens compare this way.
func foldEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca == cb {
			continue
		}
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// SetHeader sets a header (prioritizes predefined fields). The exact-case
// switch covers the canonical spellings clients normally send; anything else
// falls through to a case-insensitive pass before landing in ExtraHeaders.
func (r *Request) SetHeader(key, value string) {
	switch key {
	case "Content-Type":
		r.ContentType = value
	case "Content-Length":
		if n, err := parseDecimal(value); err == nil {
			r.ContentLength = n
		}
	case "User-Agent":
		r.UserAgent = value
	case "Accept":
		r.Accept = value
	case "Host":
		r.Host = value
	case "Connection":
		r.Connection = value
	default:
		r.setHeaderFold(key, value)
	}
}

func (r *Request) setHeaderFold(key, value string) {
	switch {
	case foldEqual(key, "Content-Type"):
		r.ContentType = value
	case foldEqual(key, "Content-Length"):
		if n, err := parseDecimal(value); err == nil {
			r.ContentLength = n
		}
	case foldEqual(key, "User-Agent"):
		r.UserAgent = value
	case foldEqual(key, "Accept"):
		r.Accept = value
	case foldEqual(key, "Host"):
		r.Host = value
	case foldEqual(key, "Connection"):
		r.Connection = value
	default:
		if r.ExtraHeaders == nil {
			r.ExtraHeaders = make(map[string]string)
		}
		r.ExtraHeaders[key] = value
	}
}

// Header returns a request header value, predefined fields first.
func (r *Request) Header(key string) string {
	switch {
	case foldEqual(key, "Content-Type"):
		return r.ContentType
	case foldEqual(key, "User-Agent"):
		return r.UserAgent
	case foldEqual(key, "Accept"):
		return r.Accept
	case foldEqual(key, "Host"):
		return r.Host
	case foldEqual(key, "Connection"):
		return r.Connection
	}
	if r.ExtraHeaders != nil {
		if v, ok := r.ExtraHeaders[key]; ok {
			return v
		}
		for k, v := range r.ExtraHeaders {
			if foldEqual(k, key) {
				return v
			}
		}
	}
	return ""
}

// KeepAlive reports whether the connection should stay open after this
// request, per the HTTP/1.0 and HTTP/1.1 defaults. Connection tokens are
// case-insensitive.
func (r *Request) KeepAlive() bool {
	if foldEqual(r.Connection, "close") {
		return false
	}
	if r.Proto == "HTTP/1.0" {
		return foldEqual(r.Connection, "keep-alive")
	}
	return true
}
