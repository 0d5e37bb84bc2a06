package h1

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/panjf2000/gnet/v2"

	"github.com/dbracia/celox/internal/proxyproto"
)

// Connection tokens. The parser hands back liveToken to keep reading and
// closedToken when a handler decided the connection is finished.
const (
	liveToken Token = iota
	closedToken
)

// errCloseConn tells the event loop to close the connection after the
// current traffic callback.
var errCloseConn = errors.New("connection close requested")

// defaultMaxBodyBytes bounds accumulated request bodies when the config
// does not say otherwise.
const defaultMaxBodyBytes = 4 << 20

// RequestInfo is an owned snapshot of one request head, safe to retain
// after the parser's buffers are reused.
type RequestInfo struct {
	Method   string
	Path     string
	RawQuery string
	Host     string
	Headers  [][2]string

	// Route and Params carry whatever Handler.Inspect resolved while the
	// zero-copy view was live.
	Route  any
	Params [][2]string

	KeepAlive bool
}

// Handler connects the transport to the application layer.
type Handler interface {
	// Inspect is called with the live zero-copy request view, before any
	// body bytes arrive and while the view's slices are valid.
	// Implementations route the request here (typically installing route
	// parameters on the view) and return an opaque route target plus
	// owned parameter copies; both come back in Handle.
	Inspect(req *Request) (route any, params [][2]string)

	// Handle is called once per request after its body has fully arrived.
	Handle(ctx context.Context, req *RequestInfo, body []byte, w *ResponseWriter) error
}

// Connection binds one gnet connection to a Parser and a Handler. It owns
// the post-padded read buffer the parser mutates.
type Connection struct {
	conn    gnet.Conn
	parser  *Parser
	writer  *ResponseWriter
	handler Handler
	logger  *log.Logger
	ctx     context.Context

	proxy    *proxyproto.Parser
	preamble []byte

	buf          []byte // padded working copy of the current read
	pending      *RequestInfo
	body         []byte
	maxBodyBytes int64
	failed       bool
}

// NewConnection creates a connection bound to c.
func NewConnection(ctx context.Context, c gnet.Conn, handler Handler, logger *log.Logger, proxy *proxyproto.Parser, maxBodyBytes int64) *Connection {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &Connection{
		conn:         c,
		parser:       NewParser(),
		writer:       NewResponseWriter(c, logger, true),
		handler:      handler,
		logger:       logger,
		ctx:          ctx,
		proxy:        proxy,
		maxBodyBytes: maxBodyBytes,
	}
}

// HandleData processes one read's worth of incoming bytes.
func (c *Connection) HandleData(data []byte) error {
	if c.proxy != nil && !c.proxy.Done() {
		// The PROXY preamble is consulted exactly once, before the first
		// head parse; buffer until it is complete.
		c.preamble = append(c.preamble, data...)
		consumed, done, err := c.proxy.Parse(c.preamble)
		if err != nil {
			c.logger.Printf("invalid PROXY preamble: %v", err)
			return c.fail(400, "Bad Request")
		}
		if !done {
			return nil
		}
		data = c.preamble[consumed:]
		defer func() { c.preamble = nil }()
	}
	return c.feed(data)
}

// feed copies data into the connection's padded buffer and runs the
// parser over it.
func (c *Connection) feed(data []byte) error {
	need := len(data) + 1
	if cap(c.buf) < need {
		c.buf = make([]byte, 0, need+MinimumHTTPPostPadding)
	}
	buf := append(c.buf[:0], data...)
	buf = buf[:len(data)+1]
	c.buf = buf[:0]

	switch tok := c.parser.Consume(buf, len(data), liveToken, c.onRequest, c.onData, c.onError); tok {
	case liveToken:
		return nil
	case ErrorToken:
		return c.fail(400, "Bad Request")
	default:
		return errCloseConn
	}
}

// onRequest snapshots the head while the view's slices are valid and lets
// the application route it.
func (c *Connection) onRequest(user Token, req *Request) Token {
	info := &RequestInfo{
		Method:    string(req.Method()),
		Path:      string(trimVersionToken(req.URL())),
		RawQuery:  string(trimVersionToken(req.Query())),
		Host:      string(req.Header("host")),
		KeepAlive: true,
	}
	req.ForEachHeader(func(key, value []byte) {
		info.Headers = append(info.Headers, [2]string{string(key), string(value)})
	})
	if connection := req.Header("connection"); asciiContainsFold(connection, "close") {
		info.KeepAlive = false
	}

	info.Route, info.Params = c.handler.Inspect(req)

	c.pending = info
	c.body = c.body[:0]
	return user
}

// onData accumulates body bytes and dispatches the request on fin.
func (c *Connection) onData(user Token, chunk []byte, fin bool) Token {
	if c.pending == nil {
		return user
	}

	if int64(len(c.body)+len(chunk)) > c.maxBodyBytes {
		_ = c.fail(413, "Payload Too Large")
		return closedToken
	}

	body := chunk
	if len(c.body) > 0 || !fin {
		c.body = append(c.body, chunk...)
		body = c.body
	}
	if !fin {
		return user
	}

	info := c.pending
	c.pending = nil

	c.writer.Reset(info.KeepAlive)
	if err := c.handler.Handle(c.ctx, info, body, c.writer); err != nil {
		c.logger.Printf("handler error: %v", err)
		c.sendError(500, "Internal Server Error")
	}
	c.body = c.body[:0]

	if !info.KeepAlive {
		return closedToken
	}
	return user
}

// onError fires when the fallback buffer filled without a complete head.
func (c *Connection) onError(Token) Token {
	return ErrorToken
}

// fail writes a terminal error response once and asks for the connection
// to be closed.
func (c *Connection) fail(status int, message string) error {
	if !c.failed {
		c.failed = true
		c.sendError(status, message)
	}
	return errCloseConn
}

func (c *Connection) sendError(status int, message string) {
	body := []byte(message)
	headers := [][2]string{
		{"content-type", "text/plain; charset=utf-8"},
		{"content-length", fmt.Sprintf("%d", len(body))},
	}
	c.writer.Reset(false)
	if err := c.writer.WriteResponse(status, headers, body, true); err != nil {
		c.logger.Printf("error response write failed: %v", err)
	}
}

// Close releases the underlying socket.
func (c *Connection) Close() error {
	return c.conn.Close()
}

// trimVersionToken cuts the HTTP-version token off the tail of a request
// target (or its query suffix). The parser exposes the request line's
// value verbatim up to the CR, so the token rides at the end of whichever
// piece holds the last SP.
func trimVersionToken(b []byte) []byte {
	if sp := bytes.LastIndexByte(b, ' '); sp >= 0 {
		return b[:sp]
	}
	return b
}

// asciiContainsFold reports whether b contains sub under ASCII
// case-insensitive comparison.
func asciiContainsFold(b []byte, sub string) bool {
	m := len(sub)
	if m == 0 {
		return true
	}
	for i := 0; i+m <= len(b); i++ {
		match := true
		for j := 0; j < m; j++ {
			cb := b[i+j]
			cs := sub[j]
			if 'A' <= cb && cb <= 'Z' {
				cb |= 0x20
			}
			if 'A' <= cs && cs <= 'Z' {
				cs |= 0x20
			}
			if cb != cs {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
