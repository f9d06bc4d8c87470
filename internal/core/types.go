// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"net/netip"
	"time"
)

// IANA protocol numbers carried in FlowRecord.Protocol.
const (
	ProtocolTCP = 6
	ProtocolUDP = 17
)

// FlowRecord is the fixed-size metadata summary emitted for one qualifying
// frame. Addresses are always 128-bit; IPv4 is stored IPv4-mapped.
type FlowRecord struct {
	SrcIP     [16]byte
	DstIP     [16]byte
	SrcPort   uint16
	DstPort   uint16
	Protocol  uint8
	TTL       uint8
	SYN       bool
	ACK       bool
	Timestamp uint64 // monotonic ns; Unix ns of the capture for replayed traces
	MSS       uint16 // only meaningful when Protocol == TCP && SYN
}

// Src returns the source endpoint. IPv4-mapped addresses are unmapped.
func (r *FlowRecord) Src() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom16(r.SrcIP).Unmap(), r.SrcPort)
}

// Dst returns the destination endpoint. IPv4-mapped addresses are unmapped.
func (r *FlowRecord) Dst() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom16(r.DstIP).Unmap(), r.DstPort)
}

// ProtocolName returns "tcp", "udp" or the decimal protocol number.
func (r *FlowRecord) ProtocolName() string {
	switch r.Protocol {
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	default:
		return fmt.Sprintf("%d", r.Protocol)
	}
}

// MapIPv4 writes the IPv4-mapped form of a 4-byte address into dst.
func MapIPv4(dst *[16]byte, v4 []byte) {
	*dst = [16]byte{}
	dst[10], dst[11] = 0xff, 0xff
	copy(dst[12:], v4[:4])
}

// Handshake is a matched SYN / SYN-ACK pair.
type Handshake struct {
	Client    netip.AddrPort
	Server    netip.AddrPort
	Protocol  uint8
	RTT       time.Duration
	ClientMSS uint16
	ServerMSS uint16
}

// FlowEvent is what reporters receive from the consumer.
type FlowEvent struct {
	NodeID    string
	Record    FlowRecord
	Handshake *Handshake // set on the SYN-ACK that completed a handshake
}
