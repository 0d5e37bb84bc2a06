package celox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dbracia/celox/internal/h1"
	"github.com/dbracia/celox/internal/query"
)

// Context represents one HTTP request-response exchange. It is built from
// the transport's owned request snapshot, so unlike the parser's zero-copy
// view it may be used for the whole handler call chain.
type Context struct {
	info *h1.RequestInfo
	body []byte

	statusCode      int
	responseHeaders [][2]string
	responseBody    *bytes.Buffer

	route   any
	ctx     context.Context
	values  map[string]any
	flushed bool

	write func(status int, headers [][2]string, body []byte) error
}

var responseBufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// newContext builds a context for one dispatched request.
func newContext(ctx context.Context, info *h1.RequestInfo, body []byte, write func(int, [][2]string, []byte) error) *Context {
	buf := responseBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	return &Context{
		info:         info,
		body:         body,
		statusCode:   200,
		responseBody: buf,
		route:        info.Route,
		ctx:          ctx,
		write:        write,
	}
}

// Method returns the HTTP request method, lowercased as delivered by the
// parser.
func (c *Context) Method() string {
	return c.info.Method
}

// Path returns the request path without the query string.
func (c *Context) Path() string {
	return c.info.Path
}

// RawQuery returns the raw query string without the leading '?'.
func (c *Context) RawQuery() string {
	return c.info.RawQuery
}

// Query returns the decoded value for key in the query string, or "".
func (c *Context) Query(key string) string {
	if c.info.RawQuery == "" {
		return ""
	}
	return string(query.Value([]byte(c.info.RawQuery), key))
}

// Host returns the request authority.
func (c *Context) Host() string {
	return c.info.Host
}

// Header returns the value of the given request header. Lookup is
// case-insensitive; wire names are already lowercase.
func (c *Context) Header(key string) string {
	key = lowerASCII(key)
	for _, h := range c.info.Headers {
		if h[0] == key {
			return h[1]
		}
	}
	return ""
}

// Headers returns all request headers in arrival order.
func (c *Context) Headers() [][2]string {
	return c.info.Headers
}

// Param returns the route parameter captured under name, or "".
func (c *Context) Param(name string) string {
	for _, p := range c.info.Params {
		if p[0] == name {
			return p[1]
		}
	}
	return ""
}

// Param is a convenience for ctx.Param(name).
func Param(ctx *Context, name string) string {
	return ctx.Param(name)
}

// Body returns the request body. The slice is owned by the context for the
// duration of the dispatch.
func (c *Context) Body() []byte {
	return c.body
}

// Context returns the carrier context for the request.
func (c *Context) Context() context.Context {
	return c.ctx
}

// WithContext replaces the carrier context, returning the previous one.
func (c *Context) WithContext(ctx context.Context) context.Context {
	prev := c.ctx
	c.ctx = ctx
	return prev
}

// Set stores a value in the context's value bag.
func (c *Context) Set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any, 4)
	}
	c.values[key] = value
}

// Get retrieves a value from the context's value bag.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Status returns the response status code.
func (c *Context) Status() int {
	return c.statusCode
}

// SetStatus sets the response status code without writing a body.
func (c *Context) SetStatus(code int) {
	c.statusCode = code
}

// SetHeader sets a response header, replacing the value of an existing
// header with the same name and appending otherwise. Names should be
// lowercase.
func (c *Context) SetHeader(key, value string) {
	for i := range c.responseHeaders {
		if c.responseHeaders[i][0] == key {
			c.responseHeaders[i][1] = value
			return
		}
	}
	c.responseHeaders = append(c.responseHeaders, [2]string{key, value})
}

// ResponseHeader returns a previously set response header value.
func (c *Context) ResponseHeader(key string) string {
	for _, h := range c.responseHeaders {
		if h[0] == key {
			return h[1]
		}
	}
	return ""
}

// ResponseBody exposes the buffered response body, mainly for middleware
// that rewrites it (compression).
func (c *Context) ResponseBody() *bytes.Buffer {
	return c.responseBody
}

// String writes a formatted plain-text response.
func (c *Context) String(status int, format string, args ...any) error {
	c.statusCode = status
	c.SetHeader("content-type", "text/plain; charset=utf-8")
	if len(args) == 0 {
		c.responseBody.WriteString(format)
		return nil
	}
	fmt.Fprintf(c.responseBody, format, args...)
	return nil
}

// JSON writes a JSON response.
func (c *Context) JSON(status int, v any) error {
	c.statusCode = status
	c.SetHeader("content-type", "application/json; charset=utf-8")
	return json.NewEncoder(c.responseBody).Encode(v)
}

// Blob writes a raw response with the given content type.
func (c *Context) Blob(status int, contentType string, body []byte) error {
	c.statusCode = status
	c.SetHeader("content-type", contentType)
	c.responseBody.Write(body)
	return nil
}

// flush sends the buffered response through the transport. It is called
// once by the server after the handler chain returns.
func (c *Context) flush() error {
	if c.flushed {
		return nil
	}
	c.flushed = true
	err := c.write(c.statusCode, c.responseHeaders, c.responseBody.Bytes())
	responseBufPool.Put(c.responseBody)
	c.responseBody = nil
	return err
}

func lowerASCII(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			b := []byte(s)
			for j := range b {
				if b[j] >= 'A' && b[j] <= 'Z' {
					b[j] |= 0x20
				}
			}
			return string(b)
		}
	}
	return s
}
