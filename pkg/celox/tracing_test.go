package celox

import (
	"testing"
)

func TestTracingPassThrough(t *testing.T) {
	// With no SDK installed the global tracer is a no-op; the middleware
	// must still run the handler and preserve the response.
	handler := Tracing()(HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "traced")
	}))

	ctx, captured := testContext(getRequest("/orders"), nil)
	if err := handler.Serve(ctx); err != nil {
		t.Fatal(err)
	}
	if err := ctx.flush(); err != nil {
		t.Fatal(err)
	}
	if captured.status != 200 || string(captured.body) != "traced" {
		t.Errorf("response = %d %q", captured.status, captured.body)
	}
}

func TestTracingSkipPaths(t *testing.T) {
	handler := TracingWithConfig(TracingConfig{
		SkipPaths: []string{"/health"},
	})(HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "ok")
	}))

	ctx, _ := testContext(getRequest("/health"), nil)
	if err := handler.Serve(ctx); err != nil {
		t.Fatal(err)
	}
	if ctx.Status() != 200 {
		t.Errorf("status = %d", ctx.Status())
	}
}

func TestTracingErrorStatus(t *testing.T) {
	handler := Tracing()(HandlerFunc(func(ctx *Context) error {
		return NewHTTPError(503, "down")
	}))

	ctx, _ := testContext(getRequest("/down"), nil)
	err := handler.Serve(ctx)
	if httpErr, ok := err.(*HTTPError); !ok || httpErr.Code != 503 {
		t.Fatalf("err = %v, the middleware must pass handler errors through", err)
	}
}
