// Package h1 implements the HTTP/1.x request parser core and the gnet
// transport that feeds it.
package h1

import "bytes"

const (
	// MaxFallbackSize bounds the accumulator for heads that arrive in
	// fragments. A head that does not complete within this many bytes is
	// a parser error.
	MaxFallbackSize = 4096

	// MinimumHTTPPostPadding is the sentinel slack reserved past the
	// logical end of the fallback buffer.
	MinimumHTTPPostPadding = 32

	// Content-Length values are capped at nine digits (999999999), which
	// cannot overflow the 30-bit streaming counter.
	maxContentLengthDigits = 9
)

// Token is the opaque application-side identity of a connection. Handlers
// return the token they were given to continue, or a different token to
// stop the parser (connection closed or upgraded).
type Token uint64

// ErrorToken is returned by Consume when the parser itself detected a
// protocol violation; the caller must close the connection. It is distinct
// from every valid user token.
const ErrorToken Token = ^Token(0)

// RequestHandler observes one parsed request head. The view and all its
// slices are valid only during the call.
type RequestHandler func(user Token, req *Request) Token

// DataHandler receives body bytes. fin=true marks end-of-body and is
// delivered exactly once per request: together with the last bytes of a
// content-length body, or on an empty slice for chunked bodies and for
// requests without a body.
type DataHandler func(user Token, chunk []byte, fin bool) Token

// ErrorHandler is invoked when the fallback buffer fills without yielding
// a complete head; its return value is handed back to the caller.
type ErrorHandler func(user Token) Token

// Parser carries the per-connection streaming state: the bounded fallback
// buffer for fragmented heads and the packed body-framing word. A Parser
// is not safe for concurrent use; the event loop serializes reads per
// connection.
type Parser struct {
	fallback []byte

	// remainingStreamingBytes packs the in-progress body state: the low 30
	// bits hold either the remaining content-length count or the chunked
	// decoder sub-state, the top two bits flag chunked mode and chunked
	// protocol errors. Zero means no body in progress.
	remainingStreamingBytes uint32
}

// NewParser returns a parser with no buffered state.
func NewParser() *Parser {
	return &Parser{}
}

// Reset drops all buffered state so the parser can serve a fresh stream.
func (p *Parser) Reset() {
	p.fallback = p.fallback[:0]
	p.remainingStreamingBytes = 0
}

// parseContentLength parses an unsigned decimal of at most nine digits.
func parseContentLength(b []byte) (uint32, bool) {
	if len(b) == 0 || len(b) > maxContentLengthDigits {
		return 0, false
	}
	var n uint32
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint32(c-'0')
	}
	return n, true
}

// appendFallback copies b into the fallback buffer, keeping sentinel slack
// reserved past the logical end so the tokenizer can fence it later.
func (p *Parser) appendFallback(b []byte) {
	need := len(p.fallback) + len(b) + MinimumHTTPPostPadding
	if cap(p.fallback) < need {
		grown := make([]byte, len(p.fallback), need)
		copy(grown, p.fallback)
		p.fallback = grown
	}
	p.fallback = append(p.fallback, b...)
}

// drainBody continues an in-progress body at the front of data and returns
// the unconsumed remainder. The returned token is ErrorToken on invalid
// chunked framing, a handler-returned token when a data handler stopped
// the connection, or user to keep going. len(data) must exceed length (the
// caller's padding byte rides along so head parsing can resume on the
// remainder).
func (p *Parser) drainBody(data []byte, length int, user Token, onData DataHandler) ([]byte, int, Token) {
	if isParsingChunkedEncoding(p.remainingStreamingBytes) {
		stopped := user
		rest, state := consumeChunked(data[:length], p.remainingStreamingBytes, func(chunk []byte, fin bool) {
			if stopped == user {
				stopped = onData(user, chunk, fin)
			}
		})
		p.remainingStreamingBytes = state
		if isParsingInvalidChunkedEncoding(state) {
			return data, length, ErrorToken
		}
		n := length - len(rest)
		return data[n:], len(rest), stopped
	}

	if p.remainingStreamingBytes >= uint32(length) {
		returned := onData(user, data[:length], p.remainingStreamingBytes == uint32(length))
		p.remainingStreamingBytes -= uint32(length)
		return data[length:], 0, returned
	}

	returned := onData(user, data[:p.remainingStreamingBytes], true)
	n := int(p.remainingStreamingBytes)
	p.remainingStreamingBytes = 0
	return data[n:], length - n, returned
}

// consumeHead is the deepest part of the parser: it fences the buffer,
// tokenizes complete heads in sequence, applies the smuggling checks,
// invokes the request handler and selects body framing. In
// consume-minimally mode (fallback drain) it parses exactly one head and
// never touches body bytes; otherwise it streams bodies inline and keeps
// going while complete heads remain. len(data) must exceed length.
//
// Returns the bytes consumed and a token: user to keep going, ErrorToken
// on a protocol violation, or whatever a handler returned to stop.
func (p *Parser) consumeHead(consumeMinimally bool, data []byte, length int, user Token, req *Request, onRequest RequestHandler, onData DataHandler) (int, Token) {
	consumedTotal := 0

	// Fence one byte past the logical end; the caller's buffer contract
	// guarantees the byte is writable.
	data[length] = '\r'

	for length > 0 {
		consumed := tokenizeHead(data, length, &req.headers)
		if consumed == 0 {
			break
		}
		data = data[consumed:]
		length -= consumed
		consumedTotal += consumed

		req.ancientHTTP = false
		req.didYield = false
		req.params = nil
		req.bf.reset()
		for i := 1; i < MaxHeaders && len(req.headers[i].key) != 0; i++ {
			req.bf.add(req.headers[i].key)
		}

		// A host header must be present; an empty value is acceptable and
		// distinct from absence.
		if req.Header("host") == nil {
			return 0, ErrorToken
		}

		// RFC 9112 6.3: a message with both Transfer-Encoding and
		// Content-Length might be a smuggling attempt. Reject rather than
		// prefer one framer.
		transferEncoding := req.Header("transfer-encoding")
		contentLength := req.Header("content-length")
		if len(transferEncoding) != 0 && len(contentLength) != 0 {
			return 0, ErrorToken
		}

		target := req.headers[0].value
		if sep := bytes.IndexByte(target, '?'); sep >= 0 {
			req.querySeparator = sep
		} else {
			req.querySeparator = len(target)
		}

		// A changed token means the handler upgraded or closed the
		// connection; stop immediately.
		if returned := onRequest(user, req); returned != user {
			return consumedTotal, returned
		}

		// Body framing per RFC 9112: Transfer-Encoding present (any
		// value) means chunked; else Content-Length means fixed length,
		// even zero; else the body is empty.
		switch {
		case len(transferEncoding) != 0:
			p.remainingStreamingBytes = stateIsChunked
			if !consumeMinimally {
				stopped := user
				rest, state := consumeChunked(data[:length], p.remainingStreamingBytes, func(chunk []byte, fin bool) {
					if stopped == user {
						stopped = onData(user, chunk, fin)
					}
				})
				p.remainingStreamingBytes = state
				if isParsingInvalidChunkedEncoding(state) {
					return 0, ErrorToken
				}
				n := length - len(rest)
				data = data[n:]
				length = len(rest)
				consumedTotal += n
				if stopped != user {
					return consumedTotal, stopped
				}
			}
		case len(contentLength) != 0:
			n, ok := parseContentLength(contentLength)
			if !ok {
				return 0, ErrorToken
			}
			p.remainingStreamingBytes = n
			if consumeMinimally {
				// Body bytes stay untouched so the canonical buffer can
				// stream them, but a zero-length body is already complete
				// and its fin must not be lost.
				if n == 0 {
					if returned := onData(user, data[:0], true); returned != user {
						return consumedTotal, returned
					}
				}
			} else {
				emittable := length
				if int(n) < emittable {
					emittable = int(n)
				}
				returned := onData(user, data[:emittable], uint32(emittable) == n)
				p.remainingStreamingBytes -= uint32(emittable)
				data = data[emittable:]
				length -= emittable
				consumedTotal += emittable
				if returned != user {
					return consumedTotal, returned
				}
			}
		default:
			// No body: emit the empty fin immediately.
			if returned := onData(user, data[:0], true); returned != user {
				return consumedTotal, returned
			}
		}

		if consumeMinimally {
			break
		}
	}
	return consumedTotal, user
}

// Consume feeds length bytes from a single connection through the parser,
// recognizing pipelined heads in arrival order and streaming their bodies
// to the handlers. data must satisfy len(data) >= length+1: the parser
// writes a '\r' sentinel at data[length] and lowercases header names in
// place, so the caller owns the buffer through the whole call and no slice
// handed to a handler outlives that handler's invocation.
//
// The return value is user to continue, a handler-returned token verbatim
// when a handler stopped the connection, or ErrorToken when the parser
// detected a protocol violation and the caller must close.
func (p *Parser) Consume(data []byte, length int, user Token, onRequest RequestHandler, onData DataHandler, onError ErrorHandler) Token {
	var req Request

	if p.remainingStreamingBytes != 0 {
		// A previous call left a body mid-stream; finish it first.
		rest, restLength, returned := p.drainBody(data, length, user, onData)
		if returned != user {
			return returned
		}
		data, length = rest, restLength
	} else if len(p.fallback) != 0 {
		had := len(p.fallback)
		maxCopy := MaxFallbackSize - had
		if maxCopy > length {
			maxCopy = length
		}
		p.appendFallback(data[:maxCopy])

		buf := p.fallback[:len(p.fallback)+1]
		consumed, returned := p.consumeHead(true, buf, len(p.fallback), user, &req, onRequest, onData)
		if returned != user {
			return returned
		}

		if consumed != 0 {
			// Consume-minimally stops after one head, and the prior
			// fallback content was a strict prefix of it, so consumed
			// covers the entire old buffer plus consumed-had fresh bytes.
			p.fallback = p.fallback[:0]
			data = data[consumed-had:]
			length -= consumed - had

			if p.remainingStreamingBytes != 0 {
				rest, restLength, ret := p.drainBody(data, length, user, onData)
				if ret != user {
					return ret
				}
				data, length = rest, restLength
			}
		} else {
			if len(p.fallback) == MaxFallbackSize {
				return onError(user)
			}
			return user
		}
	}

	consumed, returned := p.consumeHead(false, data, length, user, &req, onRequest, onData)
	if returned != user {
		return returned
	}
	data = data[consumed:]
	length -= consumed

	if length != 0 {
		if length < MaxFallbackSize {
			p.appendFallback(data[:length])
		} else {
			return onError(user)
		}
	}
	return user
}
