package httpx

// Wire-format response construction. Everything appends into caller-owned
// buffers; nothing here allocates on the steady-state path.

var (
	proto11        = []byte("HTTP/1.1 ")
	crlf           = []byte("\r\n")
	headerSep      = []byte(": ")
	contentLength  = []byte("Content-Length: ")
	datePrefix     = []byte("Date: ")
	headerBlockEnd = []byte("\r\n\r\n")
)

// AppendStatusLine appends "HTTP/1.1 <code> <text>\r\n" to dst.
func AppendStatusLine(dst []byte, code int) []byte {
	dst = append(dst, proto11...)
	dst = AppendInt(dst, code)
	dst = append(dst, ' ')
	dst = append(dst, StatusText(code)...)
	return append(dst, crlf...)
}

// AppendResponse materializes an accumulated Context into wire bytes:
// status line, handler headers, Content-Length, cached Date, blank line,
// body. With headOnly the body is left off the wire but Content-Length
// still states its size, as a HEAD response requires.
func AppendResponse(dst []byte, ctx *Context, date *DateCache, headOnly bool) []byte {
	dst = AppendStatusLine(dst, ctx.StatusCode())

	ctx.VisitHeaders(func(key, value string) {
		dst = append(dst, key...)
		dst = append(dst, headerSep...)
		dst = append(dst, value...)
		dst = append(dst, crlf...)
	})

	body := ctx.ResponseBody()
	dst = append(dst, contentLength...)
	dst = AppendInt(dst, len(body))
	dst = append(dst, crlf...)

	dst = append(dst, datePrefix...)
	dst = date.Append(dst)
	dst = append(dst, headerBlockEnd...)

	if headOnly {
		return dst
	}
	return append(dst, body...)
}

// AppendError appends a minimal error response with a JSON body. Used for
// parse failures and the panic boundary, where no handler output exists.
func AppendError(dst []byte, code int, date *DateCache) []byte {
	text := StatusText(code)

	// {"code":NNN,"message":"..."}
	var body [128]byte
	b := body[:0]
	b = append(b, `{"code":`...)
	b = AppendInt(b, code)
	b = append(b, `,"message":"`...)
	b = append(b, text...)
	b = append(b, `"}`...)

	dst = AppendStatusLine(dst, code)
	dst = append(dst, "Content-Type: application/json\r\n"...)
	dst = append(dst, contentLength...)
	dst = AppendInt(dst, len(b))
	dst = append(dst, crlf...)
	dst = append(dst, datePrefix...)
	dst = date.Append(dst)
	dst = append(dst, headerBlockEnd...)
	return append(dst, b...)
}

// AppendInt appends the decimal form of i to b without allocation.
func AppendInt(b []byte, i int) []byte {
	if i == 0 {
		return append(b, '0')
	}

	if i < 0 {
		b = append(b, '-')
		i = -i
	}

	var digits [20]byte
	n := 0
	for i > 0 {
		digits[n] = byte('0' + i%10)
		i /= 10
		n++
	}

	for n > 0 {
		n--
		b = append(b, digits[n])
	}

	return b
}

// StatusText returns the reason phrase for the status codes the core emits.
func StatusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 204:
		return "No Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 408:
		return "Request Timeout"
	case 413:
		return "Payload Too Large"
	case 429:
		return "Too Many Requests"
	case 500:
		return "Internal Server Error"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown"
	}
}
