package celox

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig defines the configuration options for the OpenTelemetry
// tracing middleware.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "celox")
	TracerName string
	// SkipPaths lists paths to skip tracing (e.g., health checks)
	SkipPaths []string
	// Propagator is the propagation format (default: TraceContext)
	Propagator propagation.TextMapPropagator
}

// DefaultTracingConfig returns a TracingConfig with sensible defaults.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		TracerName: "celox",
		SkipPaths:  []string{"/health", "/metrics"},
		Propagator: propagation.TraceContext{},
	}
}

// Tracing returns a middleware that adds OpenTelemetry tracing to HTTP
// requests using the default configuration.
func Tracing() Middleware {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig returns a tracing middleware with custom
// configuration. It creates a span per request and extracts parent trace
// context from the request headers.
func TracingWithConfig(config TracingConfig) Middleware {
	if config.TracerName == "" {
		config.TracerName = "celox"
	}
	if config.Propagator == nil {
		config.Propagator = propagation.TraceContext{}
	}

	skipMap := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}

	tracer := otel.Tracer(config.TracerName)

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) error {
			if skipMap[ctx.Path()] {
				return next.Serve(ctx)
			}

			carrier := &headerCarrier{ctx: ctx}
			parentCtx := config.Propagator.Extract(ctx.Context(), carrier)

			spanCtx, span := tracer.Start(
				parentCtx,
				ctx.Method()+" "+ctx.Path(),
				trace.WithSpanKind(trace.SpanKindServer),
			)
			defer span.End()

			span.SetAttributes(
				attribute.String("http.method", ctx.Method()),
				attribute.String("http.target", ctx.Path()),
				attribute.String("http.host", ctx.Host()),
				attribute.Int("http.request_content_length", len(ctx.Body())),
			)
			if reqID, ok := ctx.Get("request-id"); ok {
				if reqIDStr, ok := reqID.(string); ok {
					span.SetAttributes(attribute.String("http.request_id", reqIDStr))
				}
			}

			prev := ctx.WithContext(spanCtx)
			err := next.Serve(ctx)
			ctx.WithContext(prev)

			span.SetAttributes(attribute.Int("http.status_code", ctx.Status()))
			switch {
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			case ctx.Status() >= 400:
				span.SetStatus(codes.Error, "HTTP error")
			default:
				span.SetStatus(codes.Ok, "")
			}

			return err
		})
	}
}

// headerCarrier adapts the request/response headers to
// propagation.TextMapCarrier.
type headerCarrier struct {
	ctx *Context
}

func (hc *headerCarrier) Get(key string) string {
	return hc.ctx.Header(key)
}

func (hc *headerCarrier) Set(key, value string) {
	hc.ctx.SetHeader(lowerASCII(key), value)
}

func (hc *headerCarrier) Keys() []string {
	headers := hc.ctx.Headers()
	keys := make([]string, 0, len(headers))
	for _, h := range headers {
		keys = append(keys, h[0])
	}
	return keys
}
