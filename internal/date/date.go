// Package date provides a cached RFC1123 date string for response headers.
package date

import (
	"sync/atomic"
	"time"
)

// currentDate caches the formatted date bytes so the response writer never
// calls time.Now().Format() on the hot path.
var currentDate atomic.Pointer[[]byte]

// StartTicker begins refreshing the cached date once per second and
// returns a stop function.
func StartTicker() func() {
	update()

	ticker := time.NewTicker(time.Second)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				update()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}

func update() {
	b := []byte(time.Now().UTC().Format(time.RFC1123))
	currentDate.Store(&b)
}

// Current returns the cached date header bytes. Callers must not mutate
// the returned slice.
func Current() []byte {
	if p := currentDate.Load(); p != nil {
		return *p
	}
	// StartTicker has not run yet; format on demand.
	return []byte(time.Now().UTC().Format(time.RFC1123))
}
