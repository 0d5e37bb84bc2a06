package h1

import (
	"github.com/dbracia/celox/internal/query"
)

// MaxHeaders bounds the number of header slots per request. Slot 0 holds
// the request line (method in key, target in value); the remaining slots
// hold headers, terminated by the first empty key.
const MaxHeaders = 50

type headerSlot struct {
	key   []byte
	value []byte
}

// Request is a read-only view over one tokenized request head. Every slice
// points into the connection's read buffer (or the fallback buffer): the
// view and everything it returns are valid only for the duration of the
// handler invocation that receives them. Handlers that need persistence
// must copy.
type Request struct {
	headers        [MaxHeaders]headerSlot
	ancientHTTP    bool
	querySeparator int
	didYield       bool
	bf             bloomFilter
	params         [][]byte
}

// Method returns the request method, lowercased. The method bytes are
// lowercased in place, so CaseSensitiveMethod is unreliable afterwards.
func (r *Request) Method() []byte {
	m := r.headers[0].key
	for i := range m {
		m[i] |= 0x20
	}
	return m
}

// CaseSensitiveMethod returns the method bytes without mutating them. A
// view filled by the tokenizer already holds the method lowercased.
func (r *Request) CaseSensitiveMethod() []byte {
	return r.headers[0].key
}

// FullURL returns slot 0's value verbatim: the request target as it
// appeared on the wire, query string included, with the HTTP-version
// token still at its tail.
func (r *Request) FullURL() []byte {
	return r.headers[0].value
}

// URL returns the prefix of the target up to the query separator. Without
// a '?' in the target that is the whole value, version token included;
// callers that route on the path strip the token themselves.
func (r *Request) URL() []byte {
	return r.headers[0].value[:r.querySeparator]
}

// Query returns the raw suffix after the '?', or nil when the target has
// no query.
func (r *Request) Query() []byte {
	target := r.headers[0].value
	if r.querySeparator < len(target) {
		return target[r.querySeparator+1:]
	}
	return nil
}

// QueryValue finds key in the query string and percent-decodes its value
// in place, returning a view into the request buffer.
func (r *Request) QueryValue(key string) []byte {
	return query.Value(r.headers[0].value[r.querySeparator:], key)
}

// Header returns the value of the given lowercased header name, or nil
// when the header is absent. A present header with an empty value returns
// a non-nil empty slice. Duplicate headers: first occurrence wins.
func (r *Request) Header(lowerKey string) []byte {
	if !r.bf.mightHave(lowerKey) {
		return nil
	}
	for i := 1; i < MaxHeaders && len(r.headers[i].key) != 0; i++ {
		if string(r.headers[i].key) == lowerKey {
			return r.headers[i].value
		}
	}
	return nil
}

// ForEachHeader calls fn for every header in arrival order, request line
// excluded.
func (r *Request) ForEachHeader(fn func(key, value []byte)) {
	for i := 1; i < MaxHeaders && len(r.headers[i].key) != 0; i++ {
		fn(r.headers[i].key, r.headers[i].value)
	}
}

// SetParameters installs the route parameter views resolved by the router.
func (r *Request) SetParameters(params [][]byte) {
	r.params = params
}

// Parameter returns the route parameter at index, or nil when out of range.
func (r *Request) Parameter(index int) []byte {
	if index < 0 || index >= len(r.params) {
		return nil
	}
	return r.params[index]
}

// SetYield marks the request as not handled by the current route. The
// parser itself never reads this flag.
func (r *Request) SetYield(yield bool) {
	r.didYield = yield
}

// GetYield reports whether the handler yielded the request.
func (r *Request) GetYield() bool {
	return r.didYield
}

// IsAncient reports whether the request used HTTP/1.0. Reserved: the
// tokenizer currently leaves this false.
func (r *Request) IsAncient() bool {
	return r.ancientHTTP
}
