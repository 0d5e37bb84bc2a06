package celox

import (
	"context"

	"github.com/dbracia/celox/internal/h1"
)

// capturedResponse records what a context flushed to the transport.
type capturedResponse struct {
	status  int
	headers [][2]string
	body    []byte
	written bool
}

func (c *capturedResponse) header(key string) string {
	for _, h := range c.headers {
		if h[0] == key {
			return h[1]
		}
	}
	return ""
}

// testContext builds a dispatch-ready context without a live transport.
func testContext(info *h1.RequestInfo, body []byte) (*Context, *capturedResponse) {
	captured := &capturedResponse{}
	ctx := newContext(context.Background(), info, body, func(status int, headers [][2]string, b []byte) error {
		captured.status = status
		captured.headers = headers
		captured.body = append([]byte(nil), b...)
		captured.written = true
		return nil
	})
	return ctx, captured
}

func getRequest(path string) *h1.RequestInfo {
	return &h1.RequestInfo{
		Method:    "get",
		Path:      path,
		Host:      "example.com",
		KeepAlive: true,
	}
}
