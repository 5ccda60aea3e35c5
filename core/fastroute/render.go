package fastroute

import (
	"github.com/kowito/chopin-sub000/core/httpx"
)

// precompute builds the immutable wire fragments for the route. Runs once
// at registration; the hot path only copies.
func (r *Route) precompute() {
	if r.contentType == "" {
		if r.producer != nil {
			r.contentType = httpx.ContentTypeJSON
		} else {
			r.contentType = httpx.ContentTypeBinary
		}
	}

	head := httpx.AppendStatusLine(nil, 200)
	for i := range r.hdrKeys {
		head = append(head, r.hdrKeys[i]...)
		head = append(head, ": "...)
		head = append(head, r.hdrVals[i]...)
		head = append(head, "\r\n"...)
	}
	head = append(head, "Content-Type: "...)
	head = append(head, r.contentType...)
	head = append(head, "\r\n"...)

	if r.producer != nil {
		// Length, date and body are per-request for dynamic routes.
		r.dynPrefix = head
		return
	}

	head = append(head, "Content-Length: "...)
	head = httpx.AppendInt(head, len(r.staticBody))
	head = append(head, "\r\nDate: "...)
	r.staticPrefix = head

	suffix := append([]byte("\r\n\r\n"), r.staticBody...)
	r.staticSuffix = suffix
}

// Render appends the complete wire response for one matching request.
//
// dst is the caller's response assembly buffer. scratch is the caller's
// reusable body buffer for dynamic producers; Render returns it (possibly
// grown) so the caller keeps the capacity. headOnly omits the body while
// preserving Content-Length, for HEAD on all-method routes.
//
// Static routes are a bulk prefix copy, the cached date, and a bulk suffix
// copy: zero allocations. Dynamic routes invoke the producer and serialize
// into scratch; a producer panic propagates to the caller's recover
// boundary.
func (r *Route) Render(dst, scratch []byte, date *httpx.DateCache, headOnly bool) (out, scratchOut []byte, err error) {
	if r.producer == nil {
		dst = append(dst, r.staticPrefix...)
		dst = date.Append(dst)
		if headOnly {
			dst = append(dst, "\r\n\r\n"...)
		} else {
			dst = append(dst, r.staticSuffix...)
		}
		return dst, scratch, nil
	}

	v := r.producer()
	scratch, _, err = httpx.EncodeBody(scratch[:0], v)
	if err != nil {
		return dst, scratch, err
	}

	dst = append(dst, r.dynPrefix...)
	dst = append(dst, "Content-Length: "...)
	dst = httpx.AppendInt(dst, len(scratch))
	dst = append(dst, "\r\nDate: "...)
	dst = date.Append(dst)
	dst = append(dst, "\r\n\r\n"...)
	if !headOnly {
		dst = append(dst, scratch...)
	}
	return dst, scratch, nil
}
