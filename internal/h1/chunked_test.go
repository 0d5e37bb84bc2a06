package h1

import "testing"

type chunkEvent struct {
	data string
	fin  bool
}

// decode runs the whole input through the decoder from a fresh chunked
// state, returning emitted chunks, leftover bytes and the final state.
func decode(in string) ([]chunkEvent, string, uint32) {
	var events []chunkEvent
	rest, state := consumeChunked([]byte(in), stateIsChunked, func(chunk []byte, fin bool) {
		events = append(events, chunkEvent{data: string(chunk), fin: fin})
	})
	return events, string(rest), state
}

func wantChunks(t *testing.T, got, want []chunkEvent) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d chunks (%+v), want %d (%+v)", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestChunkedSingleChunk(t *testing.T) {
	events, rest, state := decode("5\r\nHELLO\r\n0\r\n\r\n")
	wantChunks(t, events, []chunkEvent{{"HELLO", false}, {"", true}})
	if rest != "" {
		t.Errorf("rest = %q, want empty", rest)
	}
	if state != 0 {
		t.Errorf("state = %#x, want 0 after a completed body", state)
	}
}

func TestChunkedMultipleChunks(t *testing.T) {
	events, _, state := decode("3\r\nabc\r\nA\r\n0123456789\r\n0\r\n\r\n")
	wantChunks(t, events, []chunkEvent{{"abc", false}, {"0123456789", false}, {"", true}})
	if state != 0 {
		t.Errorf("state = %#x, want 0", state)
	}
}

func TestChunkedExtensionIgnored(t *testing.T) {
	events, _, state := decode("5;name=value\r\nHELLO\r\n0\r\n\r\n")
	wantChunks(t, events, []chunkEvent{{"HELLO", false}, {"", true}})
	if state != 0 {
		t.Errorf("state = %#x, want 0", state)
	}
}

func TestChunkedHexCases(t *testing.T) {
	events, _, state := decode("b\r\nhello world\r\n0\r\n\r\n")
	wantChunks(t, events, []chunkEvent{{"hello world", false}, {"", true}})
	if state != 0 {
		t.Errorf("state = %#x, want 0", state)
	}

	events, _, state = decode("B\r\nhello world\r\n0\r\n\r\n")
	wantChunks(t, events, []chunkEvent{{"hello world", false}, {"", true}})
	if state != 0 {
		t.Errorf("state = %#x, want 0 for uppercase hex", state)
	}
}

// TestChunkedResumesAtEverySplit feeds the stream in two pieces at every
// possible boundary; the reassembled chunk payload and the final state
// must match the single-shot run.
func TestChunkedResumesAtEverySplit(t *testing.T) {
	in := "4\r\nWiki\r\n7;ext=1\r\npedia i\r\nB\r\nn chunks.\r\n\r\n0\r\n\r\n"
	const wantBody = "Wikipedia in chunks.\r\n"

	for split := 0; split <= len(in); split++ {
		var body []byte
		fins := 0
		state := stateIsChunked

		rest, state := consumeChunked([]byte(in[:split]), state, func(chunk []byte, fin bool) {
			body = append(body, chunk...)
			if fin {
				fins++
			}
		})
		if len(rest) != 0 {
			t.Fatalf("split %d: first half left %q unconsumed", split, rest)
		}
		rest, state = consumeChunked([]byte(in[split:]), state, func(chunk []byte, fin bool) {
			body = append(body, chunk...)
			if fin {
				fins++
			}
		})
		if len(rest) != 0 {
			t.Fatalf("split %d: second half left %q unconsumed", split, rest)
		}
		if string(body) != wantBody {
			t.Fatalf("split %d: body = %q, want %q", split, body, wantBody)
		}
		if fins != 1 {
			t.Fatalf("split %d: fin emitted %d times", split, fins)
		}
		if state != 0 {
			t.Fatalf("split %d: state = %#x, want 0", split, state)
		}
	}
}

func TestChunkedLeavesPipelinedBytes(t *testing.T) {
	events, rest, state := decode("5\r\nHELLO\r\n0\r\n\r\nGET / HTTP/1.1\r\n")
	wantChunks(t, events, []chunkEvent{{"HELLO", false}, {"", true}})
	if rest != "GET / HTTP/1.1\r\n" {
		t.Errorf("rest = %q, bytes past the body must be left for the next head", rest)
	}
	if state != 0 {
		t.Errorf("state = %#x, want 0", state)
	}
}

func TestChunkedInvalid(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"non-hex-size", "ZZ\r\nHELLO\r\n"},
		{"lf-without-cr", "5\nHELLO\r\n"},
		{"data-overrun", "5\r\nHELLOxx"},
		{"trailer-present", "5\r\nHELLO\r\n0\r\nx-trailer: v\r\n\r\n"},
		{"size-overflow", "FFFFFFFFFF\r\ndata\r\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, state := decode(tc.in)
			if !isParsingInvalidChunkedEncoding(state) {
				t.Fatalf("state = %#x, want CHUNKED_INVALID set", state)
			}
		})
	}
}

func TestChunkedStateHelpers(t *testing.T) {
	if isParsingChunkedEncoding(0) {
		t.Error("zero state must not read as chunked")
	}
	if !isParsingChunkedEncoding(stateIsChunked) {
		t.Error("chunked flag not detected")
	}
	if isParsingInvalidChunkedEncoding(stateIsChunked) {
		t.Error("valid state read as invalid")
	}
	// A plain content-length count shares the word; its value bits must
	// never look like chunked mode.
	if isParsingChunkedEncoding(999999999) {
		t.Error("max content-length reads as chunked")
	}
}
