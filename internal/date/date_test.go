package date

import (
	"testing"
	"time"
)

func TestCurrent(t *testing.T) {
	stop := StartTicker()
	defer stop()

	b := Current()
	if len(b) == 0 {
		t.Fatal("empty date")
	}
	if _, err := time.Parse(time.RFC1123, string(b)); err != nil {
		t.Fatalf("date %q is not RFC1123: %v", b, err)
	}
}

func TestCurrentWithoutTicker(t *testing.T) {
	// Before (or without) the ticker, Current still formats a valid date.
	// Drop any cached value left by an earlier test so the on-demand path
	// runs.
	currentDate.Store(nil)
	b := Current()
	if _, err := time.Parse(time.RFC1123, string(b)); err != nil {
		t.Fatalf("date %q is not RFC1123: %v", b, err)
	}
}
