package fallback

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kowito/chopin-sub000/core/httpx"
)

func serve(t *testing.T, r *Router, method, path string) *httpx.Context {
	t.Helper()
	req := httpx.AcquireRequest()
	req.Method = method
	req.Path = path
	ctx := httpx.AcquireContext(req)
	t.Cleanup(func() {
		httpx.ReleaseContext(ctx)
		httpx.ReleaseRequest(req)
	})
	r.Handle(ctx)
	return ctx
}

func TestRouterStaticMatch(t *testing.T) {
	r := NewRouter()
	r.GET("/users", func(c *httpx.Context) {
		c.String(200, "user list")
	})

	ctx := serve(t, r, "GET", "/users")
	if ctx.StatusCode() != 200 {
		t.Fatalf("status = %d, want 200", ctx.StatusCode())
	}
	if got := string(ctx.ResponseBody()); got != "user list" {
		t.Fatalf("body = %q, want %q", got, "user list")
	}
}

func TestRouterParams(t *testing.T) {
	r := NewRouter()
	r.GET("/users/:id/posts/:post", func(c *httpx.Context) {
		c.String(200, c.Param("id")+"/"+c.Param("post"))
	})

	ctx := serve(t, r, "GET", "/users/42/posts/7")
	if got := string(ctx.ResponseBody()); got != "42/7" {
		t.Fatalf("params = %q, want %q", got, "42/7")
	}
}

func TestRouterCatchAll(t *testing.T) {
	r := NewRouter()
	r.GET("/static/*filepath", func(c *httpx.Context) {
		c.String(200, c.Param("filepath"))
	})

	ctx := serve(t, r, "GET", "/static/css/site.css")
	if got := string(ctx.ResponseBody()); got != "css/site.css" {
		t.Fatalf("catchall = %q, want %q", got, "css/site.css")
	}
}

func TestRouterNotFound(t *testing.T) {
	r := NewRouter()
	r.GET("/known", func(c *httpx.Context) { c.Status(200) })

	ctx := serve(t, r, "GET", "/unknown")
	if ctx.StatusCode() != 404 {
		t.Fatalf("status = %d, want 404", ctx.StatusCode())
	}
	if !strings.Contains(string(ctx.ResponseBody()), "Not Found") {
		t.Fatalf("body = %q, want a Not Found message", ctx.ResponseBody())
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	r := NewRouter()
	r.GET("/resource", func(c *httpx.Context) { c.Status(200) })

	ctx := serve(t, r, "DELETE", "/resource")
	if ctx.StatusCode() != 405 {
		t.Fatalf("status = %d, want 405", ctx.StatusCode())
	}
}

func TestRouterCustomNotFound(t *testing.T) {
	r := NewRouter()
	r.NotFound(func(c *httpx.Context) {
		c.String(404, "nothing here")
	})

	ctx := serve(t, r, "GET", "/missing")
	if got := string(ctx.ResponseBody()); got != "nothing here" {
		t.Fatalf("body = %q, want %q", got, "nothing here")
	}
}

func TestRouterMiddlewareOrder(t *testing.T) {
	var trace []string
	r := NewRouter()
	r.Use(func(c *httpx.Context) { trace = append(trace, "first") })
	r.Use(func(c *httpx.Context) { trace = append(trace, "second") })
	r.GET("/traced", func(c *httpx.Context) {
		trace = append(trace, "handler")
		c.Status(200)
	})

	serve(t, r, "GET", "/traced")

	want := []string{"first", "second", "handler"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace[%d] = %q, want %q", i, trace[i], want[i])
		}
	}
}

func TestRouterMiddlewareAbort(t *testing.T) {
	handlerRan := false
	r := NewRouter()
	r.Use(func(c *httpx.Context) {
		c.Error(401, "Unauthorized")
		c.Abort()
	})
	r.GET("/private", func(c *httpx.Context) {
		handlerRan = true
		c.Status(200)
	})

	ctx := serve(t, r, "GET", "/private")
	if handlerRan {
		t.Fatal("handler ran after middleware abort")
	}
	if ctx.StatusCode() != 401 {
		t.Fatalf("status = %d, want 401", ctx.StatusCode())
	}
}

func TestRouterDuplicateRoutePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate route")
		}
	}()
	r := NewRouter()
	r.GET("/dup", func(c *httpx.Context) {})
	r.GET("/dup", func(c *httpx.Context) {})
}

func TestRouterStaticAndParamSiblings(t *testing.T) {
	r := NewRouter()
	r.GET("/users/me", func(c *httpx.Context) { c.String(200, "self") })
	r.GET("/users/:id", func(c *httpx.Context) { c.String(200, "id="+c.Param("id")) })

	if got := string(serve(t, r, "GET", "/users/me").ResponseBody()); got != "self" {
		t.Fatalf("static sibling = %q, want %q", got, "self")
	}
	if got := string(serve(t, r, "GET", "/users/99").ResponseBody()); got != "id=99" {
		t.Fatalf("param sibling = %q, want %q", got, "id=99")
	}
}

func TestStdAdapterServesRouter(t *testing.T) {
	r := NewRouter()
	r.GET("/ping", func(c *httpx.Context) {
		c.SetHeader("X-Custom", "yes")
		c.String(200, "pong")
	})
	r.POST("/echo", func(c *httpx.Context) {
		c.Bytes(200, c.Body())
	})

	adapter := &stdAdapter{handler: r, maxBody: 1 << 20}

	rec := httptest.NewRecorder()
	adapter.ServeHTTP(rec, httptest.NewRequest("GET", "/ping?verbose=1", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "pong" {
		t.Fatalf("body = %q, want %q", rec.Body.String(), "pong")
	}
	if rec.Header().Get("X-Custom") != "yes" {
		t.Fatal("custom header not forwarded")
	}

	rec = httptest.NewRecorder()
	adapter.ServeHTTP(rec, httptest.NewRequest("POST", "/echo", strings.NewReader("payload")))
	if rec.Body.String() != "payload" {
		t.Fatalf("echo body = %q, want %q", rec.Body.String(), "payload")
	}
}

func TestStdAdapterRecoversPanic(t *testing.T) {
	r := NewRouter()
	r.GET("/boom", func(c *httpx.Context) {
		panic("exploded")
	})

	adapter := &stdAdapter{handler: r, maxBody: 1 << 20}
	rec := httptest.NewRecorder()
	adapter.ServeHTTP(rec, httptest.NewRequest("GET", "/boom", nil))
	if rec.Code != 500 {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func BenchmarkRouterStatic(b *testing.B) {
	r := NewRouter()
	r.GET("/bench", func(c *httpx.Context) { c.Status(200) })

	req := httpx.AcquireRequest()
	req.Method = "GET"
	req.Path = "/bench"
	defer httpx.ReleaseRequest(req)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctx := httpx.AcquireContext(req)
		r.Handle(ctx)
		httpx.ReleaseContext(ctx)
	}
}

func BenchmarkRouterParam(b *testing.B) {
	r := NewRouter()
	r.GET("/users/:id", func(c *httpx.Context) { c.Status(200) })

	req := httpx.AcquireRequest()
	req.Method = "GET"
	req.Path = "/users/12345"
	defer httpx.ReleaseRequest(req)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctx := httpx.AcquireContext(req)
		r.Handle(ctx)
		httpx.ReleaseContext(ctx)
	}
}
