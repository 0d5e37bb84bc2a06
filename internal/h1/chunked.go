package h1

// Chunked-body sub-state lives in the low 30 bits of the parser's packed
// streaming word; the top two bits flag chunked mode and protocol errors.
//
// While SIZE_KNOWN is clear the low bits accumulate the hex chunk size as
// digits arrive. Once the size line's CRLF has been consumed the low bits
// hold the remaining byte count of the chunk INCLUDING its trailing CRLF
// (size + 2); the terminator chunk therefore encodes remaining = 2 with
// LAST_CHUNK set. The marker bits let the decoder resume from any byte
// boundary, so it consumes everything it is handed and body bytes can
// never leak into head parsing.
const (
	stateIsChunked      uint32 = 1 << 31
	stateChunkedInvalid uint32 = 1 << 30
	stateSizeKnown      uint32 = 1 << 29
	stateLastChunk      uint32 = 1 << 28
	stateInExtension    uint32 = 1 << 27
	stateSeenCR         uint32 = 1 << 26
	stateSizeMask       uint32 = 1<<26 - 1
)

// isParsingChunkedEncoding reports whether the state word is mid-way
// through a chunked body.
func isParsingChunkedEncoding(state uint32) bool {
	return state&stateIsChunked != 0
}

// isParsingInvalidChunkedEncoding reports whether the decoder flagged a
// protocol violation.
func isParsingInvalidChunkedEncoding(state uint32) bool {
	return state&stateChunkedInvalid != 0
}

func chunkRemaining(state uint32) uint32 {
	return state & stateSizeMask
}

func hexValue(c byte) (uint32, bool) {
	switch {
	case c >= '0' && c <= '9':
		return uint32(c - '0'), true
	case c >= 'a' && c <= 'f':
		return uint32(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return uint32(c-'A') + 10, true
	}
	return 0, false
}

// consumeChunked decodes chunked transfer coding from data, emitting each
// contiguous run of decoded chunk bytes with fin=false and a final empty
// slice with fin=true once the terminator chunk and its CRLF have been
// consumed. It returns the unconsumed remainder (non-empty only after the
// body completed or on error) and the updated state word: zero after a
// completed body, CHUNKED_INVALID set on any framing violation (non-hex
// size, size overflow, missing CRLF, bytes after the zero-size chunk that
// are not the immediate terminating CRLF).
func consumeChunked(data []byte, state uint32, emit func(chunk []byte, fin bool)) ([]byte, uint32) {
	for len(data) > 0 {
		if state&stateSizeKnown == 0 {
			c := data[0]
			switch {
			case state&stateSeenCR != 0:
				if c != '\n' {
					return data, state | stateChunkedInvalid
				}
				size := chunkRemaining(state)
				if size > stateSizeMask-2 {
					return data, state | stateChunkedInvalid
				}
				next := stateIsChunked | stateSizeKnown | (size + 2)
				if size == 0 {
					next |= stateLastChunk
				}
				state = next
			case state&stateInExtension != 0:
				if c == '\r' {
					state = state&^stateInExtension | stateSeenCR
				}
			case c == '\r':
				state |= stateSeenCR
			case c == ';':
				state |= stateInExtension
			default:
				d, ok := hexValue(c)
				if !ok {
					return data, state | stateChunkedInvalid
				}
				size := chunkRemaining(state)
				if size > stateSizeMask>>4 {
					return data, state | stateChunkedInvalid
				}
				state = state&^stateSizeMask | (size<<4 | d)
			}
			data = data[1:]
			continue
		}

		remaining := chunkRemaining(state)
		if remaining > 2 {
			emittable := remaining - 2
			if n := uint32(len(data)); n < emittable {
				emittable = n
			}
			emit(data[:emittable], false)
			data = data[emittable:]
			state = state&^stateSizeMask | (remaining - emittable)
			continue
		}

		// The chunk's trailing CRLF (or, for the terminator chunk, the
		// bare CRLF that ends the body).
		want := byte('\n')
		if remaining == 2 {
			want = '\r'
		}
		if data[0] != want {
			return data, state | stateChunkedInvalid
		}
		data = data[1:]
		remaining--
		if remaining > 0 {
			state = state&^stateSizeMask | remaining
			continue
		}
		if state&stateLastChunk != 0 {
			emit(nil, true)
			return data, 0
		}
		state = stateIsChunked
	}
	return data, state
}
