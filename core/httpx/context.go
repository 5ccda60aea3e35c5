package httpx

import (
	"encoding/json"
	"sync"
)

// Context carries one request through the fallback router. Handlers
// accumulate the response (status, headers, body) into the Context; the
// owning worker materializes it to the wire afterwards. Contexts are pooled
// and never shared between workers.
type Context struct {
	Req *Request

	// Path parameters (fixed array for performance)
	paramKeys        [4]string
	paramValues      [4]string
	paramCount       int
	paramMapOverflow map[string]string

	// Accumulated response
	status  int
	hdrKeys []string
	hdrVals []string
	body    []byte
	aborted bool
}

var contextPool = sync.Pool{
	New: func() any {
		return &Context{
			hdrKeys: make([]string, 0, 8),
			hdrVals: make([]string, 0, 8),
			body:    make([]byte, 0, 4096),
		}
	},
}

// AcquireContext returns a pooled Context bound to req.
func AcquireContext(req *Request) *Context {
	ctx := contextPool.Get().(*Context)
	ctx.Req = req
	ctx.status = 200
	return ctx
}

// ReleaseContext resets ctx and returns it to the pool.
func ReleaseContext(ctx *Context) {
	ctx.Req = nil
	ctx.paramCount = 0
	if ctx.paramMapOverflow != nil {
		for k := range ctx.paramMapOverflow {
			delete(ctx.paramMapOverflow, k)
		}
	}
	ctx.status = 200
	ctx.hdrKeys = ctx.hdrKeys[:0]
	ctx.hdrVals = ctx.hdrVals[:0]
	ctx.body = ctx.body[:0]
	ctx.aborted = false
	contextPool.Put(ctx)
}

// Request information

func (c *Context) Method() string { return c.Req.Method }
func (c *Context) Path() string   { return c.Req.Path }
func (c *Context) Body() []byte   { return c.Req.Body }

func (c *Context) Query(key string) string {
	if c.Req.Query == nil {
		return ""
	}
	return c.Req.Query[key]
}

func (c *Context) Header(key string) string {
	return c.Req.Header(key)
}

// SetParam sets a path parameter (zero-allocation for up to 4 params)
func (c *Context) SetParam(key, value string) {
	if c.paramCount < len(c.paramKeys) {
		c.paramKeys[c.paramCount] = key
		c.paramValues[c.paramCount] = value
		c.paramCount++
	} else {
		if c.paramMapOverflow == nil {
			c.paramMapOverflow = make(map[string]string)
		}
		c.paramMapOverflow[key] = value
	}
}

// Param gets a path parameter
func (c *Context) Param(key string) string {
	for i := 0; i < c.paramCount; i++ {
		if c.paramKeys[i] == key {
			return c.paramValues[i]
		}
	}
	if c.paramMapOverflow != nil {
		return c.paramMapOverflow[key]
	}
	return ""
}

// Bind unmarshals the request body into v
func (c *Context) Bind(v any) error {
	return json.Unmarshal(c.Req.Body, v)
}

// Response accumulation

// Status sets the response status code
func (c *Context) Status(code int) {
	c.status = code
}

// StatusCode returns the accumulated status code
func (c *Context) StatusCode() int {
	return c.status
}

// SetHeader adds a response header. Repeated names are written once with
// the last value winning.
func (c *Context) SetHeader(key, value string) {
	for i, k := range c.hdrKeys {
		if k == key {
			c.hdrVals[i] = value
			return
		}
	}
	c.hdrKeys = append(c.hdrKeys, key)
	c.hdrVals = append(c.hdrVals, value)
}

// VisitHeaders calls fn for every accumulated response header in insertion
// order.
func (c *Context) VisitHeaders(fn func(key, value string)) {
	for i := range c.hdrKeys {
		fn(c.hdrKeys[i], c.hdrVals[i])
	}
}

// ResponseBody returns the accumulated response body
func (c *Context) ResponseBody() []byte {
	return c.body
}

// String sets a plain text response
func (c *Context) String(code int, s string) {
	c.status = code
	c.SetHeader("Content-Type", ContentTypePlain)
	c.body = append(c.body[:0], s...)
}

// JSON sets a JSON response
func (c *Context) JSON(code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.Error(500, "Failed to marshal JSON")
		return
	}
	c.status = code
	c.SetHeader("Content-Type", ContentTypeJSON)
	c.body = append(c.body[:0], data...)
}

// Bytes sets a raw bytes response
func (c *Context) Bytes(code int, data []byte) {
	c.status = code
	c.SetHeader("Content-Type", ContentTypeBinary)
	c.body = append(c.body[:0], data...)
}

// Data sets a response with a custom content type
func (c *Context) Data(code int, contentType string, data []byte) {
	c.status = code
	c.SetHeader("Content-Type", contentType)
	c.body = append(c.body[:0], data...)
}

// Error sets an error response in the standard JSON error shape
func (c *Context) Error(code int, message string) {
	c.JSON(code, map[string]any{
		"code":    code,
		"message": message,
	})
	c.status = code
}

// Success sets a 200 response wrapping data
func (c *Context) Success(data any) {
	c.JSON(200, map[string]any{
		"code":    0,
		"data":    data,
		"message": "success",
	})
}

// Abort stops middleware processing for this request
func (c *Context) Abort() {
	c.aborted = true
}

// IsAborted reports whether the request has been aborted
func (c *Context) IsAborted() bool {
	return c.aborted
}
