// Package clock provides the monotonic timestamp source for flow records.
package clock

import "time"

var start = time.Now()

// fallback measures the Go monotonic clock from process start.
func fallback() uint64 {
	return uint64(time.Since(start))
}
