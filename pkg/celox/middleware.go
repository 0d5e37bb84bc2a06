package celox

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
)

// Logger returns a middleware that logs one line per request to logger.
func Logger(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) error {
			start := time.Now()
			err := next.Serve(ctx)
			logger.Printf("%s %s -> %d (%v)", ctx.Method(), ctx.Path(), ctx.Status(), time.Since(start))
			return err
		})
	}
}

// Recovery returns a middleware that converts handler panics into 500
// responses instead of tearing down the event loop.
func Recovery(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Printf("panic serving %s %s: %v\n%s", ctx.Method(), ctx.Path(), r, debug.Stack())
					err = ctx.String(500, "Internal Server Error")
				}
			}()
			return next.Serve(ctx)
		})
	}
}

// RequestIDHeader is the header carrying the per-request identifier.
const RequestIDHeader = "x-request-id"

// RequestID returns a middleware that assigns every request a unique
// identifier, honoring one supplied by the client.
func RequestID() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) error {
			id := ctx.Header(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			ctx.Set("request-id", id)
			ctx.SetHeader(RequestIDHeader, id)
			return next.Serve(ctx)
		})
	}
}

// CompressConfig holds configuration for the Compress middleware.
type CompressConfig struct {
	// Level specifies the compression level (gzip 1-9, brotli 0-11).
	Level int
	// MinLength is the smallest response body worth compressing.
	MinLength int
	// SkipContentTypes lists content-type prefixes that are already
	// compressed and should pass through.
	SkipContentTypes []string
}

// DefaultCompressConfig returns a CompressConfig with sensible defaults.
func DefaultCompressConfig() CompressConfig {
	return CompressConfig{
		Level:     4,
		MinLength: 1024,
		SkipContentTypes: []string{
			"image/",
			"video/",
			"audio/",
			"application/zip",
			"application/gzip",
		},
	}
}

// Compress returns a middleware that compresses response bodies with
// brotli or gzip according to the request's Accept-Encoding.
func Compress() Middleware {
	return CompressWithConfig(DefaultCompressConfig())
}

// CompressWithConfig returns a compression middleware with custom
// configuration.
func CompressWithConfig(config CompressConfig) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) error {
			if err := next.Serve(ctx); err != nil {
				return err
			}

			body := ctx.ResponseBody()
			if body == nil || body.Len() < config.MinLength {
				return nil
			}
			contentType := ctx.ResponseHeader("content-type")
			for _, skip := range config.SkipContentTypes {
				if strings.HasPrefix(contentType, skip) {
					return nil
				}
			}

			acceptEncoding := ctx.Header("accept-encoding")
			var compressed bytes.Buffer
			var encoding string
			switch {
			case strings.Contains(acceptEncoding, "br"):
				writer := brotli.NewWriterLevel(&compressed, config.Level)
				if _, err := writer.Write(body.Bytes()); err != nil {
					return nil
				}
				if err := writer.Close(); err != nil {
					return nil
				}
				encoding = "br"
			case strings.Contains(acceptEncoding, "gzip"):
				level := config.Level
				if level < gzip.BestSpeed || level > gzip.BestCompression {
					level = gzip.DefaultCompression
				}
				writer, err := gzip.NewWriterLevel(&compressed, level)
				if err != nil {
					return nil
				}
				if _, err := writer.Write(body.Bytes()); err != nil {
					return nil
				}
				if err := writer.Close(); err != nil {
					return nil
				}
				encoding = "gzip"
			default:
				return nil
			}

			if compressed.Len() >= body.Len() {
				return nil
			}
			body.Reset()
			body.Write(compressed.Bytes())
			ctx.SetHeader("content-encoding", encoding)
			ctx.SetHeader("vary", "accept-encoding")
			return nil
		})
	}
}

// Timeout returns a middleware that bounds handler execution. Handlers
// that run past the deadline produce a 504 and must observe ctx.Context()
// to stop writing.
func Timeout(d time.Duration) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) error {
			timeoutCtx, cancel := context.WithTimeout(ctx.Context(), d)
			defer cancel()
			prev := ctx.WithContext(timeoutCtx)
			defer ctx.WithContext(prev)

			done := make(chan error, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- fmt.Errorf("panic in timed handler: %v", r)
					}
				}()
				done <- next.Serve(ctx)
			}()

			select {
			case err := <-done:
				return err
			case <-timeoutCtx.Done():
				return NewHTTPError(504, "Gateway Timeout")
			}
		})
	}
}
