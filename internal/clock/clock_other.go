//go:build !linux

package clock

// Monotonic returns nanoseconds on the Go runtime's monotonic clock.
func Monotonic() uint64 {
	return fallback()
}
