// Package decoder implements the L2-L4 flow record decoder.
//
// Every stage takes the whole frame plus an offset and validates the range
// it is about to read against the frame length first. Stages report
// core.ErrPacketTooShort when a read would cross the tail, and
// core.ErrUnsupportedProto or core.ErrNotSignificant for frames that are
// well formed but not recorded.
package decoder

import (
	"firestige.xyz/flat/internal/core"
)

// Decoder fills a flow record from one frame.
type Decoder interface {
	Decode(frame []byte, rec *core.FlowRecord) error
}

// Config configures a FlowDecoder.
type Config struct {
	// MSSCeiling clamps the negotiated MSS downwards. 0 disables clamping.
	MSSCeiling uint16
	// Clock returns monotonic nanoseconds for the record timestamp.
	Clock func() uint64
	// OnOptionScan, if set, observes every option scan (metrics hook).
	OnOptionScan func(OptionScan)
}

// FlowDecoder is the standard Decoder. It holds no per-frame state and is
// safe for concurrent use.
type FlowDecoder struct {
	cfg Config
}

var _ Decoder = (*FlowDecoder)(nil)

// NewFlowDecoder creates a decoder. A nil Clock stamps records with 0.
func NewFlowDecoder(cfg Config) *FlowDecoder {
	if cfg.Clock == nil {
		cfg.Clock = func() uint64 { return 0 }
	}
	return &FlowDecoder{cfg: cfg}
}

// Decode runs the L3 classifier, the L4 classifier and, for TCP SYN
// segments carrying options, the option scanner. rec is only meaningful
// when Decode returns nil; a malformed options region never fails the
// record.
func (d *FlowDecoder) Decode(frame []byte, rec *core.FlowRecord) error {
	l4off, err := classifyL3(frame, rec)
	if err != nil {
		return err
	}

	tcpLen, err := classifyL4(frame, l4off, d.cfg.Clock, rec)
	if err != nil {
		return err
	}

	if rec.Protocol != core.ProtocolTCP || !rec.SYN || tcpLen <= tcpHeaderMinLen {
		return nil
	}

	optOff := l4off + tcpHeaderMinLen
	opts := frame[optOff:] // optOff <= len(frame): classifyL4 checked the fixed header
	scan := ScanOptions(opts, tcpLen-tcpHeaderMinLen, d.cfg.MSSCeiling)
	rec.MSS = scan.MSS
	if d.cfg.OnOptionScan != nil {
		d.cfg.OnOptionScan(scan)
	}
	return nil
}
