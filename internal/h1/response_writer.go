package h1

import (
	"log"
	"strconv"
	"sync"

	"github.com/panjf2000/gnet/v2"

	"github.com/dbracia/celox/internal/date"
)

var (
	statusLine200       = []byte("HTTP/1.1 200 OK\r\n")
	headerContentLength = []byte("content-length: ")
	headerConnection    = []byte("connection: ")
	headerDate          = []byte("date: ")
	headerKeepAlive     = []byte("keep-alive\r\n")
	headerClose         = []byte("close\r\n")
	headerSep           = []byte(": ")
	crlf                = []byte("\r\n")
	chunkEnd            = []byte("0\r\n\r\n")

	responseBufferPool = sync.Pool{
		New: func() any {
			b := make([]byte, 0, 8192)
			return &b
		},
	}
)

// ResponseWriter assembles HTTP/1.1 responses and hands them to the gnet
// event loop through AsyncWritev. One writer serves one connection; its
// methods are safe for use from handler goroutines.
type ResponseWriter struct {
	conn        gnet.Conn
	mu          sync.Mutex
	logger      *log.Logger
	pending     [][]byte
	queued      [][]byte
	inflight    bool
	headersSent bool
	chunkedMode bool
	keepAlive   bool
}

// NewResponseWriter creates a response writer for conn.
func NewResponseWriter(conn gnet.Conn, logger *log.Logger, keepAlive bool) *ResponseWriter {
	return &ResponseWriter{
		conn:      conn,
		logger:    logger,
		keepAlive: keepAlive,
	}
}

// WriteResponse writes a response head plus body. The first call emits the
// status line and headers; later calls stream additional body bytes, using
// chunked encoding when the head declared no content-length. endResponse
// terminates a chunked stream.
func (w *ResponseWriter) WriteResponse(status int, headers [][2]string, body []byte, endResponse bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.headersSent {
		bufPtr := responseBufferPool.Get().(*[]byte)
		buf := (*bufPtr)[:0]

		if status == 200 {
			buf = append(buf, statusLine200...)
		} else {
			buf = append(buf, "HTTP/1.1 "...)
			buf = strconv.AppendInt(buf, int64(status), 10)
			buf = append(buf, ' ')
			buf = append(buf, statusText(status)...)
			buf = append(buf, crlf...)
		}

		buf = append(buf, headerDate...)
		buf = append(buf, date.Current()...)
		buf = append(buf, crlf...)

		hasContentLength := false
		for _, h := range headers {
			if h[0] == "content-length" {
				hasContentLength = true
			}
			buf = append(buf, h[0]...)
			buf = append(buf, headerSep...)
			buf = append(buf, h[1]...)
			buf = append(buf, crlf...)
		}

		if !hasContentLength {
			if endResponse {
				buf = append(buf, headerContentLength...)
				buf = strconv.AppendInt(buf, int64(len(body)), 10)
				buf = append(buf, crlf...)
			} else {
				buf = append(buf, "transfer-encoding: chunked\r\n"...)
				w.chunkedMode = true
			}
		}

		buf = append(buf, headerConnection...)
		if w.keepAlive {
			buf = append(buf, headerKeepAlive...)
		} else {
			buf = append(buf, headerClose...)
		}
		buf = append(buf, crlf...)

		if len(body) > 0 {
			if w.chunkedMode {
				buf = w.appendChunk(buf, body)
			} else {
				buf = append(buf, body...)
			}
		}
		if endResponse && w.chunkedMode {
			buf = append(buf, chunkEnd...)
			w.chunkedMode = false
		}

		// The batch owns the bytes until the async write completes; hand
		// over a copy and recycle the assembly buffer.
		out := make([]byte, len(buf))
		copy(out, buf)
		w.pending = append(w.pending, out)

		*bufPtr = buf[:0]
		responseBufferPool.Put(bufPtr)

		w.headersSent = true
		return w.flush()
	}

	if len(body) > 0 {
		var out []byte
		if w.chunkedMode {
			out = w.appendChunk(make([]byte, 0, len(body)+16), body)
		} else {
			out = make([]byte, len(body))
			copy(out, body)
		}
		w.pending = append(w.pending, out)
	}
	if endResponse && w.chunkedMode {
		w.pending = append(w.pending, chunkEnd)
		w.chunkedMode = false
	}
	return w.flush()
}

// appendChunk appends a single chunk frame (hex size, CRLF, data, CRLF).
func (w *ResponseWriter) appendChunk(buf, body []byte) []byte {
	buf = strconv.AppendInt(buf, int64(len(body)), 16)
	buf = append(buf, crlf...)
	buf = append(buf, body...)
	return append(buf, crlf...)
}

// flush sends all pending buffers with one vectorized async write. Writes
// issued while one is inflight are queued and sent from the completion
// callback.
func (w *ResponseWriter) flush() error {
	if w.inflight {
		w.queued = append(w.queued, w.pending...)
		w.pending = nil
		return nil
	}

	batch := w.pending
	w.pending = nil
	if len(batch) == 0 {
		return nil
	}

	w.inflight = true
	return w.conn.AsyncWritev(batch, w.onWriteDone)
}

func (w *ResponseWriter) onWriteDone(_ gnet.Conn, err error) error {
	if err != nil && w.logger != nil {
		w.logger.Printf("async write error: %v", err)
	}

	w.mu.Lock()
	next := w.queued
	w.queued = nil
	if len(next) == 0 {
		w.inflight = false
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()
	return w.conn.AsyncWritev(next, w.onWriteDone)
}

// Reset prepares the writer for the next response on a kept-alive
// connection. Inflight writes are untouched.
func (w *ResponseWriter) Reset(keepAlive bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.headersSent = false
	w.chunkedMode = false
	w.keepAlive = keepAlive
	w.pending = nil
}

// statusText returns the reason phrase for common HTTP status codes.
func statusText(code int) string {
	switch code {
	case 100:
		return "Continue"
	case 101:
		return "Switching Protocols"
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 202:
		return "Accepted"
	case 204:
		return "No Content"
	case 206:
		return "Partial Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 307:
		return "Temporary Redirect"
	case 308:
		return "Permanent Redirect"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 408:
		return "Request Timeout"
	case 409:
		return "Conflict"
	case 413:
		return "Payload Too Large"
	case 414:
		return "URI Too Long"
	case 415:
		return "Unsupported Media Type"
	case 429:
		return "Too Many Requests"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	case 504:
		return "Gateway Timeout"
	default:
		return "Unknown"
	}
}
