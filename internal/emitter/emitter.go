// Package emitter turns intercepted frames into ring records.
//
// For every frame the emitter reserves a ring slot first, decodes directly
// into it and then commits or discards it. Process returns
// core.VerdictAllow on every path, and only a Lossless emitter ever waits.
package emitter

import (
	"errors"
	"sync/atomic"

	"firestige.xyz/flat/internal/core"
	"firestige.xyz/flat/internal/core/decoder"
	"firestige.xyz/flat/internal/metrics"
	"firestige.xyz/flat/internal/ringbuf"
)

const ethernetHeaderLen = 14

// Producer is the reserving side of a record ring.
type Producer interface {
	Reserve() (ringbuf.Reservation, error)
}

// Waiter is a Producer that can park until a slot frees up.
type Waiter interface {
	ReserveWait() (ringbuf.Reservation, error)
}

// Config configures an Emitter.
type Config struct {
	// MSSCeiling clamps reported MSS values. 0 disables clamping.
	MSSCeiling uint16
	// Clock stamps records in monotonic nanoseconds.
	Clock func() uint64
	// CaptureTime stamps records with the frame's capture timestamp
	// (Unix nanoseconds) instead of Clock. Used for replayed traces.
	CaptureTime bool
	// Lossless makes Process wait for ring space instead of dropping the
	// observation. It stalls the caller, so it is for offline sources
	// only, and needs a ring implementing Waiter.
	Lossless bool
}

// Emitter is safe for concurrent use; each Process call owns its own
// reservation.
type Emitter struct {
	ring        Producer
	waiter      Waiter
	decoder     decoder.Decoder
	captureTime bool

	filtered     atomic.Uint64
	decoded      atomic.Uint64
	truncated    atomic.Uint64
	inapplicable atomic.Uint64
	dropped      atomic.Uint64
}

// Stats counts frames by what happened to them.
type Stats struct {
	Filtered     uint64 `json:"filtered"`
	Decoded      uint64 `json:"decoded"`
	Truncated    uint64 `json:"truncated"`
	Inapplicable uint64 `json:"inapplicable"`
	Dropped      uint64 `json:"dropped"`
}

// New creates an emitter publishing into ring.
func New(ring Producer, cfg Config) *Emitter {
	e := &Emitter{
		ring:        ring,
		captureTime: cfg.CaptureTime,
		decoder: decoder.NewFlowDecoder(decoder.Config{
			MSSCeiling: cfg.MSSCeiling,
			Clock:      cfg.Clock,
			OnOptionScan: func(s decoder.OptionScan) {
				metrics.OptionScansTotal.WithLabelValues(s.Stop.String()).Inc()
			},
		}),
	}
	if w, ok := ring.(Waiter); ok && cfg.Lossless {
		e.waiter = w
	}
	return e
}

// Process inspects one frame.
func (e *Emitter) Process(pkt core.RawPacket) core.Verdict {
	if pkt.Data == nil || !pkt.Type.Unicast() || len(pkt.Data) < ethernetHeaderLen {
		e.filtered.Add(1)
		metrics.FramesTotal.WithLabelValues("filtered").Inc()
		return core.VerdictAllow
	}

	res, err := e.reserve()
	if err != nil {
		// Full or closed ring: the observation is lost, the frame is not.
		e.dropped.Add(1)
		if errors.Is(err, core.ErrRingFull) {
			metrics.RingDropsTotal.Inc()
		}
		return core.VerdictAllow
	}

	err = e.decoder.Decode(pkt.Data, res.Record())
	outcome := core.OutcomeOf(err)
	metrics.FramesTotal.WithLabelValues(outcome.String()).Inc()

	switch outcome {
	case core.OutcomeDecoded:
		e.decoded.Add(1)
		if e.captureTime && !pkt.Timestamp.IsZero() {
			res.Record().Timestamp = uint64(pkt.Timestamp.UnixNano())
		}
		if res.Commit() == nil {
			metrics.RecordsTotal.WithLabelValues("committed").Inc()
		}
	case core.OutcomeTruncated:
		e.truncated.Add(1)
		e.discard(&res)
	default:
		e.inapplicable.Add(1)
		e.discard(&res)
	}
	return core.VerdictAllow
}

func (e *Emitter) reserve() (ringbuf.Reservation, error) {
	if e.waiter != nil {
		return e.waiter.ReserveWait()
	}
	return e.ring.Reserve()
}

func (e *Emitter) discard(res *ringbuf.Reservation) {
	if res.Discard() == nil {
		metrics.RecordsTotal.WithLabelValues("discarded").Inc()
	}
}

// Stats returns emitter counters.
func (e *Emitter) Stats() Stats {
	return Stats{
		Filtered:     e.filtered.Load(),
		Decoded:      e.decoded.Load(),
		Truncated:    e.truncated.Load(),
		Inapplicable: e.inapplicable.Load(),
		Dropped:      e.dropped.Load(),
	}
}
