package httpx

import (
	"bytes"
	"errors"
	"unsafe"
)

var (
	ErrInvalidRequest = errors.New("httpx: invalid HTTP request")
	ErrIncomplete     = errors.New("httpx: incomplete request")
	ErrHeadTooLarge   = errors.New("httpx: request head too large")
	ErrBodyTooLarge   = errors.New("httpx: request body too large")
)

// MaxHeadBytes bounds the request line + headers. Anything larger is
// rejected instead of buffered forever.
const MaxHeadBytes = 32 * 1024

// MaxBodyBytes bounds a declared Content-Length body. The rejection comes
// from the head alone, before any body bytes are buffered.
const MaxBodyBytes = MaxHeadBytes * 32

var crlfcrlf = []byte("\r\n\r\n")

// unsafeString converts a byte slice to a string without allocation.
// The returned string shares memory with the byte slice.
func unsafeString(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}

// Parse parses one HTTP/1.1 request from the front of data and reports how
// many bytes it consumed, so the connection loop can walk pipelined requests
// through a single read buffer. ErrIncomplete means data holds a request
// prefix and the caller should read more; any other error is malformed input.
//
// The returned Request aliases data. It must be released before the buffer
// is compacted or reused.
func Parse(data []byte) (*Request, int, error) {
	headEnd := bytes.Index(data, crlfcrlf)
	if headEnd == -1 {
		if len(data) > MaxHeadBytes {
			return nil, 0, ErrHeadTooLarge
		}
		return nil, 0, ErrIncomplete
	}

	req := AcquireRequest()

	// Request line
	lineEnd := bytes.IndexByte(data[:headEnd+2], '\n')
	if lineEnd == -1 {
		ReleaseRequest(req)
		return nil, 0, ErrInvalidRequest
	}

	line := data[:lineEnd]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}

	// METHOD PATH PROTO without SplitN (zero-allocation)
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		ReleaseRequest(req)
		return nil, 0, ErrInvalidRequest
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 == -1 {
		ReleaseRequest(req)
		return nil, 0, ErrInvalidRequest
	}
	sp2 += sp1 + 1

	req.Method = unsafeString(line[:sp1])
	req.Path = unsafeString(line[sp1+1 : sp2])
	req.Proto = unsafeString(line[sp2+1:])

	if req.Path == "" || req.Path[0] != '/' {
		ReleaseRequest(req)
		return nil, 0, ErrInvalidRequest
	}

	// Query parameters
	if idx := bytes.IndexByte(line[sp1+1:sp2], '?'); idx != -1 {
		parseQuery(req, req.Path, idx)
		req.Path = req.Path[:idx]
	}

	// Headers
	if lineEnd < headEnd {
		parseHeaders(req, data[lineEnd+1:headEnd])
	}

	consumed := headEnd + len(crlfcrlf)

	// Body, if announced. The whole body must be buffered before dispatch.
	if req.ContentLength > 0 {
		if req.ContentLength > MaxBodyBytes {
			ReleaseRequest(req)
			return nil, 0, ErrBodyTooLarge
		}
		if len(data) < consumed+req.ContentLength {
			ReleaseRequest(req)
			return nil, 0, ErrIncomplete
		}
		req.Body = data[consumed : consumed+req.ContentLength]
		consumed += req.ContentLength
	}

	return req, consumed, nil
}

// parseHeaders parses the header block between request line and CRLFCRLF.
func parseHeaders(req *Request, data []byte) {
	for len(data) > 0 {
		lineEnd := bytes.IndexByte(data, '\n')
		if lineEnd == -1 {
			lineEnd = len(data)
		}

		line := data[:lineEnd]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}

		if len(line) == 0 {
			break
		}

		colon := bytes.IndexByte(line, ':')
		if colon > 0 {
			key := unsafeString(bytes.TrimSpace(line[:colon]))
			value := unsafeString(bytes.TrimSpace(line[colon+1:]))
			req.SetHeader(key, value)
		}

		if lineEnd == len(data) {
			break
		}
		data = data[lineEnd+1:]
	}
}

// parseQuery fills req.Query from the raw query string after idx.
func parseQuery(req *Request, pathAndQuery string, idx int) {
	queryStr := pathAndQuery[idx+1:]

	if req.Query == nil {
		req.Query = make(map[string]string)
	}

	for len(queryStr) > 0 {
		pair := queryStr
		if amp := indexByteString(queryStr, '&'); amp != -1 {
			pair = queryStr[:amp]
			queryStr = queryStr[amp+1:]
		} else {
			queryStr = ""
		}

		if eq := indexByteString(pair, '='); eq != -1 {
			req.Query[pair[:eq]] = pair[eq+1:]
		} else if pair != "" {
			req.Query[pair] = ""
		}
	}
}

func indexByteString(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

// parseDecimal parses a non-negative decimal integer without allocation.
func parseDecimal(s string) (int, error) {
	if s == "" {
		return 0, ErrInvalidRequest
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, ErrInvalidRequest
		}
		n = n*10 + int(c-'0')
		if n < 0 {
			return 0, ErrInvalidRequest
		}
	}
	return n, nil
}
