package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kowito/chopin-sub000/config"
	"github.com/kowito/chopin-sub000/core/fastroute"
	"github.com/kowito/chopin-sub000/core/httpx"
)

func testConfig(mode string) *config.Config {
	return &config.Config{
		Mode:           mode,
		Addr:           "127.0.0.1:0",
		Cores:          1,
		Backlog:        128,
		WorkersPerCore: 1,
		NoDelay:        true,
		GracePeriod:    2 * time.Second,
		Env:            "development",
	}
}

// pickAddr reserves a loopback port and releases it for the engine to bind.
func pickAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// startEngine runs e in the background and waits until it accepts.
func startEngine(t *testing.T, e *Engine) {
	t.Helper()

	runErr := make(chan error, 1)
	go func() { runErr <- e.Run() }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
		if err := <-runErr; err != nil {
			t.Errorf("run: %v", err)
		}
	})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", e.cfg.Addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		select {
		case err := <-runErr:
			t.Fatalf("engine exited during startup: %v", err)
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatal("engine did not start accepting")
}

type wireResponse struct {
	status  int
	headers map[string]string
	body    string
}

// readResponse reads one complete HTTP/1.1 response off r.
func readResponse(t *testing.T, r *bufio.Reader) wireResponse {
	t.Helper()

	statusLine, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	parts := strings.SplitN(strings.TrimSpace(statusLine), " ", 3)
	if len(parts) < 2 || parts[0] != "HTTP/1.1" {
		t.Fatalf("bad status line %q", statusLine)
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		t.Fatalf("bad status code in %q", statusLine)
	}

	headers := make(map[string]string)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read header: %v", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			t.Fatalf("bad header line %q", line)
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	var body []byte
	if cl := headers["Content-Length"]; cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil {
			t.Fatalf("bad Content-Length %q", cl)
		}
		body = make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			t.Fatalf("read body: %v", err)
		}
	}

	return wireResponse{status: status, headers: headers, body: string(body)}
}

func dialAndSend(t *testing.T, addr, raw string) *bufio.Reader {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatal(err)
	}
	return bufio.NewReader(conn)
}

func TestEngineStaticFastRoute(t *testing.T) {
	cfg := testConfig(config.ModePerformance)
	cfg.Addr = pickAddr(t)
	e := NewEngine(cfg)
	if err := e.Static("/health", []byte(`{"status":"ok"}`), fastroute.WithContentType(httpx.ContentTypeJSON)); err != nil {
		t.Fatal(err)
	}
	startEngine(t, e)

	r := dialAndSend(t, cfg.Addr, "GET /health HTTP/1.1\r\nHost: test\r\n\r\n")
	resp := readResponse(t, r)

	if resp.status != 200 {
		t.Fatalf("status = %d, want 200", resp.status)
	}
	if resp.body != `{"status":"ok"}` {
		t.Fatalf("body = %q", resp.body)
	}
	if resp.headers["Content-Type"] != httpx.ContentTypeJSON {
		t.Fatalf("content type = %q", resp.headers["Content-Type"])
	}
	if resp.headers["Date"] == "" {
		t.Fatal("missing Date header")
	}
	if _, err := time.Parse("Mon, 02 Jan 2006 15:04:05 GMT", resp.headers["Date"]); err != nil {
		t.Fatalf("unparseable Date %q: %v", resp.headers["Date"], err)
	}
}

func TestEngineDynamicFastRoute(t *testing.T) {
	cfg := testConfig(config.ModePerformance)
	cfg.Addr = pickAddr(t)

	var calls atomic.Int64
	e := NewEngine(cfg)
	err := e.Dynamic("/counter", func() any {
		return map[string]int64{"count": calls.Add(1)}
	})
	if err != nil {
		t.Fatal(err)
	}
	startEngine(t, e)

	r := dialAndSend(t, cfg.Addr,
		"GET /counter HTTP/1.1\r\nHost: test\r\n\r\n"+
			"GET /counter HTTP/1.1\r\nHost: test\r\n\r\n")

	first := readResponse(t, r)
	second := readResponse(t, r)

	if first.status != 200 || second.status != 200 {
		t.Fatalf("statuses = %d, %d", first.status, second.status)
	}
	if first.body == second.body {
		t.Fatalf("producer not invoked per request: %q == %q", first.body, second.body)
	}
	if !strings.Contains(first.body, `"count":1`) {
		t.Fatalf("first body = %q", first.body)
	}
}

func TestEngineFallbackDelegation(t *testing.T) {
	cfg := testConfig(config.ModePerformance)
	cfg.Addr = pickAddr(t)

	var handled atomic.Int64
	e := NewEngine(cfg)
	e.Router().GET("/users/:id", func(c *httpx.Context) {
		handled.Add(1)
		c.String(200, "user "+c.Param("id"))
	})
	startEngine(t, e)

	r := dialAndSend(t, cfg.Addr, "GET /users/42 HTTP/1.1\r\nHost: test\r\n\r\n")
	resp := readResponse(t, r)

	if resp.status != 200 {
		t.Fatalf("status = %d, want 200", resp.status)
	}
	if resp.body != "user 42" {
		t.Fatalf("body = %q", resp.body)
	}
	if n := handled.Load(); n != 1 {
		t.Fatalf("handler invoked %d times, want 1", n)
	}
}

func TestEngineMethodFilterFallsThrough(t *testing.T) {
	cfg := testConfig(config.ModePerformance)
	cfg.Addr = pickAddr(t)

	e := NewEngine(cfg)
	if err := e.Static("/only-get", []byte("fast"), fastroute.WithMethods("GET")); err != nil {
		t.Fatal(err)
	}
	e.Router().POST("/only-get", func(c *httpx.Context) {
		c.String(200, "slow")
	})
	startEngine(t, e)

	r := dialAndSend(t, cfg.Addr,
		"GET /only-get HTTP/1.1\r\nHost: test\r\n\r\n"+
			"POST /only-get HTTP/1.1\r\nHost: test\r\nContent-Length: 0\r\n\r\n")

	if resp := readResponse(t, r); resp.body != "fast" {
		t.Fatalf("GET body = %q, want fast tier", resp.body)
	}
	if resp := readResponse(t, r); resp.body != "slow" {
		t.Fatalf("POST body = %q, want fallback", resp.body)
	}
}

func TestEnginePipelining(t *testing.T) {
	cfg := testConfig(config.ModePerformance)
	cfg.Addr = pickAddr(t)

	e := NewEngine(cfg)
	if err := e.Static("/a", []byte("alpha")); err != nil {
		t.Fatal(err)
	}
	if err := e.Static("/b", []byte("bravo")); err != nil {
		t.Fatal(err)
	}
	e.Router().GET("/c", func(c *httpx.Context) { c.String(200, "charlie") })
	startEngine(t, e)

	r := dialAndSend(t, cfg.Addr,
		"GET /a HTTP/1.1\r\nHost: t\r\n\r\n"+
			"GET /c HTTP/1.1\r\nHost: t\r\n\r\n"+
			"GET /b HTTP/1.1\r\nHost: t\r\n\r\n")

	want := []string{"alpha", "charlie", "bravo"}
	for i, w := range want {
		if resp := readResponse(t, r); resp.body != w {
			t.Fatalf("pipelined response %d = %q, want %q", i, resp.body, w)
		}
	}
}

func TestEnginePanicIsolation(t *testing.T) {
	cfg := testConfig(config.ModePerformance)
	cfg.Addr = pickAddr(t)

	e := NewEngine(cfg)
	e.Router().GET("/boom", func(c *httpx.Context) {
		panic("handler exploded")
	})
	if err := e.Static("/ok", []byte("fine")); err != nil {
		t.Fatal(err)
	}
	startEngine(t, e)

	r := dialAndSend(t, cfg.Addr, "GET /boom HTTP/1.1\r\nHost: t\r\n\r\n")
	resp := readResponse(t, r)
	if resp.status != 500 {
		t.Fatalf("status = %d, want 500", resp.status)
	}
	// The poisoned connection closes after the error response.
	if _, err := r.ReadByte(); err != io.EOF {
		t.Fatalf("expected EOF after 500, got %v", err)
	}

	// The worker survived: a fresh connection is served normally.
	r2 := dialAndSend(t, cfg.Addr, "GET /ok HTTP/1.1\r\nHost: t\r\n\r\n")
	if resp := readResponse(t, r2); resp.body != "fine" {
		t.Fatalf("post-panic body = %q", resp.body)
	}
}

func TestEngineConnectionIsolation(t *testing.T) {
	cfg := testConfig(config.ModePerformance)
	cfg.Addr = pickAddr(t)

	e := NewEngine(cfg)
	if err := e.Static("/ok", []byte("fine")); err != nil {
		t.Fatal(err)
	}
	startEngine(t, e)

	good, err := net.Dial("tcp", cfg.Addr)
	if err != nil {
		t.Fatal(err)
	}
	defer good.Close()
	gr := bufio.NewReader(good)

	if _, err := good.Write([]byte("GET /ok HTTP/1.1\r\nHost: t\r\n\r\n")); err != nil {
		t.Fatal(err)
	}
	if resp := readResponse(t, gr); resp.body != "fine" {
		t.Fatalf("body = %q", resp.body)
	}

	// A second connection goes bad while the first stays open.
	bad := dialAndSend(t, cfg.Addr, "NOT A REQUEST\r\n\r\n")
	if resp := readResponse(t, bad); resp.status != 400 {
		t.Fatalf("bad conn status = %d, want 400", resp.status)
	}
	if _, err := bad.ReadByte(); err != io.EOF {
		t.Fatalf("bad conn should close, got %v", err)
	}

	// The healthy connection keeps its keep-alive and still answers.
	if _, err := good.Write([]byte("GET /ok HTTP/1.1\r\nHost: t\r\n\r\n")); err != nil {
		t.Fatal(err)
	}
	if resp := readResponse(t, gr); resp.body != "fine" {
		t.Fatalf("post-poison body = %q", resp.body)
	}
}

func TestEngineProducerPanic(t *testing.T) {
	cfg := testConfig(config.ModePerformance)
	cfg.Addr = pickAddr(t)

	e := NewEngine(cfg)
	err := e.Dynamic("/flaky", func() any {
		panic("producer exploded")
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Static("/steady", []byte("steady")); err != nil {
		t.Fatal(err)
	}
	startEngine(t, e)

	r := dialAndSend(t, cfg.Addr, "GET /flaky HTTP/1.1\r\nHost: t\r\n\r\n")
	if resp := readResponse(t, r); resp.status != 500 {
		t.Fatalf("status = %d, want 500", resp.status)
	}

	// The worker outlives the producer panic.
	r2 := dialAndSend(t, cfg.Addr, "GET /steady HTTP/1.1\r\nHost: t\r\n\r\n")
	if resp := readResponse(t, r2); resp.body != "steady" {
		t.Fatalf("post-panic body = %q", resp.body)
	}
}

func TestEngineMultiCore(t *testing.T) {
	cfg := testConfig(config.ModePerformance)
	cfg.Cores = 2
	cfg.Addr = pickAddr(t)

	e := NewEngine(cfg)
	if err := e.Static("/ping", []byte("pong")); err != nil {
		t.Fatal(err)
	}
	startEngine(t, e)

	const requests = 16
	for i := 0; i < requests; i++ {
		r := dialAndSend(t, cfg.Addr, "GET /ping HTTP/1.1\r\nHost: t\r\nConnection: close\r\n\r\n")
		if resp := readResponse(t, r); resp.body != "pong" {
			t.Fatalf("request %d body = %q", i, resp.body)
		}
	}

	// Counters are per core and sum to the request total regardless of how
	// the kernel spread the connections.
	if got := e.Monitor().Totals().Requests; got != requests {
		t.Fatalf("total requests = %d, want %d", got, requests)
	}
}

func TestEngineConnectionClose(t *testing.T) {
	cfg := testConfig(config.ModePerformance)
	cfg.Addr = pickAddr(t)

	e := NewEngine(cfg)
	if err := e.Static("/x", []byte("x")); err != nil {
		t.Fatal(err)
	}
	startEngine(t, e)

	r := dialAndSend(t, cfg.Addr, "GET /x HTTP/1.1\r\nHost: t\r\nConnection: close\r\n\r\n")
	if resp := readResponse(t, r); resp.status != 200 {
		t.Fatalf("status = %d", resp.status)
	}
	if _, err := r.ReadByte(); err != io.EOF {
		t.Fatalf("expected EOF after Connection: close, got %v", err)
	}
}

func TestEngineHeadOnFastRoute(t *testing.T) {
	cfg := testConfig(config.ModePerformance)
	cfg.Addr = pickAddr(t)

	e := NewEngine(cfg)
	if err := e.Static("/doc", []byte("full body here")); err != nil {
		t.Fatal(err)
	}
	startEngine(t, e)

	conn, err := net.Dial("tcp", cfg.Addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("HEAD /doc HTTP/1.1\r\nHost: t\r\n\r\n")); err != nil {
		t.Fatal(err)
	}

	r := bufio.NewReader(conn)
	statusLine, err := r.ReadString('\n')
	if err != nil || !strings.Contains(statusLine, "200") {
		t.Fatalf("status line %q, err %v", statusLine, err)
	}
	var contentLength string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length:"); ok {
			contentLength = strings.TrimSpace(v)
		}
	}
	if contentLength != fmt.Sprint(len("full body here")) {
		t.Fatalf("Content-Length = %q, want body length", contentLength)
	}

	// No body follows the head.
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if b, err := r.ReadByte(); err == nil {
		t.Fatalf("unexpected body byte %q after HEAD", b)
	}
}

func TestEngineBadRequest(t *testing.T) {
	cfg := testConfig(config.ModePerformance)
	cfg.Addr = pickAddr(t)

	e := NewEngine(cfg)
	startEngine(t, e)

	r := dialAndSend(t, cfg.Addr, "NOT A REQUEST\r\n\r\n")
	resp := readResponse(t, r)
	if resp.status != 400 {
		t.Fatalf("status = %d, want 400", resp.status)
	}
}

func TestEngineOversizedBodyRejected(t *testing.T) {
	cfg := testConfig(config.ModePerformance)
	cfg.Addr = pickAddr(t)

	e := NewEngine(cfg)
	startEngine(t, e)

	// The declared length alone triggers the rejection; no body is sent.
	raw := fmt.Sprintf("POST /upload HTTP/1.1\r\nHost: t\r\nContent-Length: %d\r\n\r\n", httpx.MaxBodyBytes+1)
	r := dialAndSend(t, cfg.Addr, raw)
	resp := readResponse(t, r)
	if resp.status != 413 {
		t.Fatalf("status = %d, want 413", resp.status)
	}
	if _, err := r.ReadByte(); err != io.EOF {
		t.Fatalf("expected close after 413, got %v", err)
	}
}

func TestEngineStandardMode(t *testing.T) {
	cfg := testConfig(config.ModeStandard)
	cfg.Addr = pickAddr(t)

	e := NewEngine(cfg)
	if err := e.Static("/health", []byte(`{"status":"ok"}`), fastroute.WithContentType(httpx.ContentTypeJSON)); err != nil {
		t.Fatal(err)
	}
	e.Router().GET("/users/:id", func(c *httpx.Context) {
		c.String(200, "user "+c.Param("id"))
	})
	startEngine(t, e)

	resp, err := http.Get("http://" + cfg.Addr + "/health")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || string(body) != `{"status":"ok"}` {
		t.Fatalf("fast route via net/http: %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get("http://" + cfg.Addr + "/users/7")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || string(body) != "user 7" {
		t.Fatalf("fallback via net/http: %d %q", resp.StatusCode, body)
	}
}

func TestEngineStandardShutdownStopsServe(t *testing.T) {
	cfg := testConfig(config.ModeStandard)
	cfg.Addr = pickAddr(t)

	e := NewEngine(cfg)
	if e.std == nil {
		t.Fatal("standard server must exist before Run")
	}
	if err := e.Static("/ping", []byte("pong")); err != nil {
		t.Fatal(err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- e.Run() }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", cfg.Addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func TestEngineRegisterAfterRunPanics(t *testing.T) {
	cfg := testConfig(config.ModePerformance)
	cfg.Addr = pickAddr(t)

	e := NewEngine(cfg)
	if err := e.Static("/early", []byte("ok")); err != nil {
		t.Fatal(err)
	}
	startEngine(t, e)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic registering after Run")
		}
	}()
	e.Static("/late", []byte("nope"))
}
