//go:build !linux

package source

import (
	"context"
	"errors"

	"firestige.xyz/flat/internal/core"
)

var errNoAFPacket = errors.New("afpacket capture requires linux")

// AFPacket is unavailable off linux.
type AFPacket struct{}

// OpenAFPacket always fails off linux.
func OpenAFPacket(AFPacketConfig) (*AFPacket, error) { return nil, errNoAFPacket }

func (*AFPacket) Capture(context.Context, chan<- core.RawPacket) error { return errNoAFPacket }
func (*AFPacket) Stats() Stats                                         { return Stats{} }
func (*AFPacket) Close() error                                         { return nil }
