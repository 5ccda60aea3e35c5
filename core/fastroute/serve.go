package fastroute

import (
	"github.com/kowito/chopin-sub000/core/httpx"
)

// Serve fills ctx with the route's response instead of rendering wire
// bytes. Standard mode uses this so table routes behave identically when
// net/http owns the connection.
func (r *Route) Serve(ctx *httpx.Context) error {
	for i := range r.hdrKeys {
		ctx.SetHeader(r.hdrKeys[i], r.hdrVals[i])
	}

	if r.producer == nil {
		ctx.Data(200, r.contentType, r.staticBody)
		return nil
	}

	body, _, err := httpx.EncodeBody(nil, r.producer())
	if err != nil {
		return err
	}
	ctx.Data(200, r.contentType, body)
	return nil
}
