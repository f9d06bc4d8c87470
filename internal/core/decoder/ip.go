// Package decoder implements protocol decoding.
package decoder

import (
	"firestige.xyz/flat/internal/core"
)

const (
	ipv4HeaderMinLen = 20
	ipv6HeaderLen    = 40
)

// classifyL3 decodes the IPv4 or IPv6 header that follows the Ethernet
// header and fills the address, protocol and TTL fields of rec. It returns
// the offset of the L4 header within frame.
//
// ErrUnsupportedProto covers every frame that is well formed but out of
// scope: non-IP EtherTypes, IP headers that do not fit (the frame is not
// treated as IP at all), and transports other than TCP and UDP.
func classifyL3(frame []byte, rec *core.FlowRecord) (int, error) {
	etherType, err := decodeEthernet(frame)
	if err != nil {
		return 0, err
	}

	switch etherType {
	case etherTypeIPv4:
		return classifyIPv4(frame, rec)
	case etherTypeIPv6:
		return classifyIPv6(frame, rec)
	default:
		// ARP, LLDP, VLAN tags, ...
		return 0, core.ErrUnsupportedProto
	}
}

func classifyIPv4(frame []byte, rec *core.FlowRecord) (int, error) {
	const off = ethernetHeaderLen
	if !fits(frame, off, ipv4HeaderMinLen) {
		return 0, core.ErrUnsupportedProto
	}
	ip := frame[off : off+ipv4HeaderMinLen]

	// Protocol (1 byte at offset 9)
	proto := ip[9]
	if proto != core.ProtocolTCP && proto != core.ProtocolUDP {
		return 0, core.ErrUnsupportedProto
	}

	// IHL is in 32-bit words; options push the L4 header further out.
	headerLen := int(ip[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen || !fits(frame, off, headerLen) {
		return 0, core.ErrPacketTooShort
	}

	core.MapIPv4(&rec.SrcIP, ip[12:16])
	core.MapIPv4(&rec.DstIP, ip[16:20])
	rec.Protocol = proto
	rec.TTL = ip[8]

	return off + headerLen, nil
}

func classifyIPv6(frame []byte, rec *core.FlowRecord) (int, error) {
	const off = ethernetHeaderLen
	if !fits(frame, off, ipv6HeaderLen) {
		return 0, core.ErrUnsupportedProto
	}
	ip := frame[off : off+ipv6HeaderLen]

	// Next Header (1 byte at offset 6). Extension headers are not walked,
	// so anything other than a bare TCP/UDP header is out of scope.
	proto := ip[6]
	if proto != core.ProtocolTCP && proto != core.ProtocolUDP {
		return 0, core.ErrUnsupportedProto
	}

	copy(rec.SrcIP[:], ip[8:24])
	copy(rec.DstIP[:], ip[24:40])
	rec.Protocol = proto
	rec.TTL = ip[7] // hop limit

	return off + ipv6HeaderLen, nil
}
