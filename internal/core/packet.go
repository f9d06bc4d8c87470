// Package core defines core data structures with zero external dependencies.
package core

import "time"

// PacketType mirrors the link-layer classification the kernel attaches to
// a frame (PACKET_HOST, PACKET_BROADCAST, ...).
type PacketType uint8

const (
	PacketHost PacketType = iota
	PacketBroadcast
	PacketMulticast
	PacketOtherHost
	PacketOutgoing
)

func (t PacketType) String() string {
	switch t {
	case PacketHost:
		return "host"
	case PacketBroadcast:
		return "broadcast"
	case PacketMulticast:
		return "multicast"
	case PacketOtherHost:
		return "otherhost"
	case PacketOutgoing:
		return "outgoing"
	default:
		return "unknown"
	}
}

// Unicast reports whether the frame was addressed to a single station.
func (t PacketType) Unicast() bool {
	return t != PacketBroadcast && t != PacketMulticast
}

// PacketTypeOf derives the packet type from the destination MAC of an
// Ethernet frame. Frames too short to carry a MAC are reported as host.
func PacketTypeOf(frame []byte) PacketType {
	if len(frame) < 6 {
		return PacketHost
	}
	if frame[0]&frame[1]&frame[2]&frame[3]&frame[4]&frame[5] == 0xff {
		return PacketBroadcast
	}
	if frame[0]&0x01 != 0 {
		return PacketMulticast
	}
	return PacketHost
}

// RawPacket is one frame handed over by the interception point. Data is
// contiguous and may be a zero-copy view into a capture ring.
type RawPacket struct {
	Data           []byte    // Raw frame data, zero-copy slice
	Timestamp      time.Time // Capture timestamp (kernel timestamp preferred)
	CaptureLen     uint32    // Actual captured length
	OrigLen        uint32    // Original frame length
	InterfaceIndex int       // Network interface index
	Type           PacketType
}

// Verdict is the forwarding decision returned to the interception point.
// The tap only observes traffic, so VerdictAllow is the only value ever
// produced.
type Verdict int

const VerdictAllow Verdict = 0
