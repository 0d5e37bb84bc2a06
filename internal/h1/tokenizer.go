package h1

// tokenizeHead extracts the request line and headers from buf[:end] into
// slots. buf must extend at least one byte past end with buf[end] == '\r'
// (the sentinel written by the driver), which lets the scan loops run
// without per-byte bounds checks against end.
//
// Field names are lowercased in place (OR 0x20 is safe because only
// field-name bytes are consumed). Slot 0 receives the request line: the
// method behaves like a field name, the target like a value running to
// the CR, so the HTTP-version token stays at the tail of the value and is
// not validated here.
//
// Returns the number of bytes consumed through the terminating CRLF CRLF,
// or 0 when the head is incomplete or malformed (more than MaxHeaders
// lines, missing LF, empty field name).
func tokenizeHead(buf []byte, end int, slots *[MaxHeaders]headerSlot) int {
	pos := 0
	for i := 0; i < MaxHeaders; i++ {
		keyStart := pos
		for isFieldNameByte(buf[pos]) && buf[pos] != ':' {
			buf[pos] |= 0x20
			pos++
		}

		if buf[pos] == '\r' {
			// Terminator line, valid only past the request line and only
			// when the LF is really there (pos == end means we hit the
			// sentinel, not input).
			if pos != end && buf[pos+1] == '\n' && i > 0 {
				slots[i] = headerSlot{}
				return pos + 2
			}
			return 0
		}
		if pos == keyStart {
			// An empty key is the slot array's terminator encoding; it
			// must not be forgeable from the wire.
			return 0
		}
		slots[i].key = buf[keyStart:pos]

		// Skip the colon and any surrounding OWS/BWS, leniently.
		for (buf[pos] == ':' || buf[pos] <= ' ') && buf[pos] != '\r' {
			pos++
		}

		valStart := pos
		cr := scanCR(buf[pos:end])
		if cr < 0 {
			return 0
		}
		pos += cr
		if buf[pos+1] != '\n' {
			return 0
		}
		slots[i].value = buf[valStart:pos]
		pos += 2
	}
	return 0
}
