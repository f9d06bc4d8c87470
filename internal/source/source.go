// Package source implements frame sources that feed the emitter.
package source

import (
	"context"

	"firestige.xyz/flat/internal/core"
)

// Source produces raw frames.
type Source interface {
	// Capture blocks, sending frames to out until ctx is done or the
	// source is exhausted. It does not close out.
	Capture(ctx context.Context, out chan<- core.RawPacket) error
	Stats() Stats
	Close() error
}

// Offline is implemented by sources that replay recorded traffic. Their
// frames carry the original capture time, and nothing is lost by making
// them wait for the consumer.
type Offline interface {
	Offline() bool
}

// IsOffline reports whether s replays recorded traffic.
func IsOffline(s Source) bool {
	o, ok := s.(Offline)
	return ok && o.Offline()
}

// Stats represents capture statistics.
type Stats struct {
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsDropped   uint64 `json:"packets_dropped"`    // dropped by us: channel full
	PacketsIfDropped uint64 `json:"packets_if_dropped"` // dropped by the kernel
}
