package celox

import (
	"bytes"
	"compress/gzip"
	"io"
	"log"
	"strings"
	"testing"
	"time"
)

func TestRecovery(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	handler := Recovery(logger)(HandlerFunc(func(_ *Context) error {
		panic("boom")
	}))

	ctx, captured := testContext(getRequest("/"), nil)
	if err := handler.Serve(ctx); err != nil {
		t.Fatalf("Recovery should swallow the panic, got %v", err)
	}
	_ = ctx.flush()
	if captured.status != 500 {
		t.Errorf("status = %d, want 500", captured.status)
	}
}

func TestLoggerWritesOneLine(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	handler := Logger(logger)(HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "ok")
	}))

	ctx, _ := testContext(getRequest("/ping"), nil)
	if err := handler.Serve(ctx); err != nil {
		t.Fatal(err)
	}
	line := buf.String()
	if !strings.Contains(line, "get") || !strings.Contains(line, "/ping") || !strings.Contains(line, "200") {
		t.Errorf("log line = %q", line)
	}
}

func TestRequestID(t *testing.T) {
	handler := RequestID()(HandlerFunc(func(_ *Context) error { return nil }))

	ctx, captured := testContext(getRequest("/"), nil)
	if err := handler.Serve(ctx); err != nil {
		t.Fatal(err)
	}
	_ = ctx.String(200, "ok")
	_ = ctx.flush()

	id := captured.header(RequestIDHeader)
	if id == "" {
		t.Fatal("request id header missing")
	}
	if v, ok := ctx.Get("request-id"); !ok || v != id {
		t.Errorf("value bag id = %v, header id = %q", v, id)
	}
}

func TestRequestIDHonorsClientID(t *testing.T) {
	handler := RequestID()(HandlerFunc(func(_ *Context) error { return nil }))

	info := getRequest("/")
	info.Headers = [][2]string{{RequestIDHeader, "client-supplied"}}
	ctx, captured := testContext(info, nil)
	if err := handler.Serve(ctx); err != nil {
		t.Fatal(err)
	}
	_ = ctx.String(200, "ok")
	_ = ctx.flush()

	if got := captured.header(RequestIDHeader); got != "client-supplied" {
		t.Errorf("id = %q, want the client's", got)
	}
}

func TestCompressGzip(t *testing.T) {
	payload := strings.Repeat("compress me please ", 200)
	handler := Compress()(HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "%s", payload)
	}))

	info := getRequest("/")
	info.Headers = [][2]string{{"accept-encoding", "gzip"}}
	ctx, captured := testContext(info, nil)
	if err := handler.Serve(ctx); err != nil {
		t.Fatal(err)
	}
	_ = ctx.flush()

	if got := captured.header("content-encoding"); got != "gzip" {
		t.Fatalf("content-encoding = %q", got)
	}
	reader, err := gzip.NewReader(bytes.NewReader(captured.body))
	if err != nil {
		t.Fatalf("body is not gzip: %v", err)
	}
	decompressed, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(decompressed) != payload {
		t.Error("round trip mismatch")
	}
}

func TestCompressBrotliPreferred(t *testing.T) {
	payload := strings.Repeat("compress me please ", 200)
	handler := Compress()(HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "%s", payload)
	}))

	info := getRequest("/")
	info.Headers = [][2]string{{"accept-encoding", "gzip, br"}}
	ctx, captured := testContext(info, nil)
	if err := handler.Serve(ctx); err != nil {
		t.Fatal(err)
	}
	_ = ctx.flush()

	if got := captured.header("content-encoding"); got != "br" {
		t.Errorf("content-encoding = %q, want br", got)
	}
}

func TestCompressSkipsSmallBodies(t *testing.T) {
	handler := Compress()(HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "tiny")
	}))

	info := getRequest("/")
	info.Headers = [][2]string{{"accept-encoding", "gzip"}}
	ctx, captured := testContext(info, nil)
	if err := handler.Serve(ctx); err != nil {
		t.Fatal(err)
	}
	_ = ctx.flush()

	if captured.header("content-encoding") != "" {
		t.Error("small bodies must not be compressed")
	}
	if string(captured.body) != "tiny" {
		t.Errorf("body = %q", captured.body)
	}
}

func TestCompressSkipsWithoutAcceptEncoding(t *testing.T) {
	payload := strings.Repeat("x", 4096)
	handler := Compress()(HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "%s", payload)
	}))

	ctx, captured := testContext(getRequest("/"), nil)
	if err := handler.Serve(ctx); err != nil {
		t.Fatal(err)
	}
	_ = ctx.flush()

	if captured.header("content-encoding") != "" {
		t.Error("must not compress without accept-encoding")
	}
}

func TestTimeout(t *testing.T) {
	handler := Timeout(20 * time.Millisecond)(HandlerFunc(func(ctx *Context) error {
		select {
		case <-ctx.Context().Done():
			return nil
		case <-time.After(time.Second):
			return nil
		}
	}))

	ctx, _ := testContext(getRequest("/slow"), nil)
	err := handler.Serve(ctx)
	httpErr, ok := err.(*HTTPError)
	if !ok || httpErr.Code != 504 {
		t.Fatalf("err = %v, want 504 HTTPError", err)
	}
}

func TestTimeoutFastHandler(t *testing.T) {
	handler := Timeout(time.Second)(HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "quick")
	}))

	ctx, _ := testContext(getRequest("/fast"), nil)
	if err := handler.Serve(ctx); err != nil {
		t.Fatalf("err = %v", err)
	}
	if ctx.Status() != 200 {
		t.Errorf("status = %d", ctx.Status())
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mk := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(ctx *Context) error {
				order = append(order, name)
				return next.Serve(ctx)
			})
		}
	}

	handler := Chain(mk("a"), mk("b"), mk("c"))(HandlerFunc(func(_ *Context) error {
		order = append(order, "h")
		return nil
	}))

	ctx, _ := testContext(getRequest("/"), nil)
	if err := handler.Serve(ctx); err != nil {
		t.Fatal(err)
	}
	if strings.Join(order, "") != "abch" {
		t.Errorf("order = %v", order)
	}
}
