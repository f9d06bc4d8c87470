// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Decode stages report one of the first three; callers
// classify them with OutcomeOf.
var (
	// Packet decoding errors
	ErrPacketTooShort   = errors.New("flat: packet too short")
	ErrUnsupportedProto = errors.New("flat: unsupported protocol")
	ErrNotSignificant   = errors.New("flat: segment not significant")

	// Ring buffer errors
	ErrRingFull        = errors.New("flat: ring buffer full")
	ErrRingClosed      = errors.New("flat: ring buffer closed")
	ErrReservationDone = errors.New("flat: reservation already committed or discarded")

	// Record codec errors
	ErrShortRecord = errors.New("flat: short flow record")

	// Plugin errors
	ErrPluginNotFound = errors.New("flat: plugin not found")

	// Configuration errors
	ErrConfigInvalid = errors.New("flat: invalid configuration")
)

// Outcome is the tri-state result of a decode stage.
type Outcome uint8

const (
	OutcomeDecoded Outcome = iota
	OutcomeTruncated
	OutcomeInapplicable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDecoded:
		return "decoded"
	case OutcomeTruncated:
		return "truncated"
	default:
		return "inapplicable"
	}
}

// OutcomeOf maps a decode error to its outcome. Any error other than
// ErrPacketTooShort counts as inapplicable.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeDecoded
	case errors.Is(err, ErrPacketTooShort):
		return OutcomeTruncated
	default:
		return OutcomeInapplicable
	}
}
