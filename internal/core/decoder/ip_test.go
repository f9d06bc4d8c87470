package decoder

import (
	"net/netip"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/flat/internal/core"
)

func TestClassifyIPv4(t *testing.T) {
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, // Dst MAC
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, // Src MAC
		0x08, 0x00, // EtherType: IPv4
		0x45,       // Version 4, IHL 5
		0x00,       // DSCP, ECN
		0x00, 0x1C, // Total Length: 28 bytes
		0x12, 0x34, // Identification
		0x00, 0x00, // Flags, Fragment Offset
		0x40,       // TTL: 64
		0x11,       // Protocol: UDP (17)
		0x00, 0x00, // Checksum
		192, 168, 1, 1, // Src IP
		192, 168, 1, 2, // Dst IP
	}

	var rec core.FlowRecord
	l4off, err := classifyL3(data, &rec)
	require.NoError(t, err)

	assert.Equal(t, 34, l4off)
	assert.Equal(t, uint8(17), rec.Protocol)
	assert.Equal(t, uint8(64), rec.TTL)
	assert.Equal(t, netip.MustParseAddr("::ffff:192.168.1.1").As16(), rec.SrcIP)
	assert.Equal(t, netip.MustParseAddr("::ffff:192.168.1.2").As16(), rec.DstIP)
}

func TestClassifyIPv4WithOptions(t *testing.T) {
	plain := udpFrame(t)
	l3 := ethernetHeaderLen + ipv4HeaderMinLen

	// NOP, NOP, NOP, EOL pushes the UDP header out by one word.
	frame := append([]byte{}, plain[:l3]...)
	frame = append(frame, 1, 1, 1, 0)
	frame = append(frame, plain[l3:]...)
	frame[ethernetHeaderLen] = 0x46

	var rec core.FlowRecord
	l4off, err := classifyL3(frame, &rec)
	require.NoError(t, err)
	assert.Equal(t, l3+4, l4off)
	assert.Equal(t, uint8(core.ProtocolUDP), rec.Protocol)
}

func TestClassifyIPv4NotTCPOrUDP(t *testing.T) {
	frame := serialize(t,
		ethernet(layers.EthernetTypeIPv4),
		ipv4("10.0.0.1", "10.0.0.2", layers.IPProtocolICMPv4),
		&layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)},
	)

	var rec core.FlowRecord
	_, err := classifyL3(frame, &rec)
	assert.ErrorIs(t, err, core.ErrUnsupportedProto)
	assert.Equal(t, core.FlowRecord{}, rec, "out-of-scope frames must not touch the record")
}

func TestClassifyIPv4HeaderDoesNotFit(t *testing.T) {
	frame := udpFrame(t)[:ethernetHeaderLen+ipv4HeaderMinLen-1]

	var rec core.FlowRecord
	_, err := classifyL3(frame, &rec)
	assert.ErrorIs(t, err, core.ErrUnsupportedProto)
}

func TestClassifyIPv4BadIHL(t *testing.T) {
	tests := []struct {
		name string
		ihl  byte
	}{
		{"below minimum", 0x44},
		{"beyond frame", 0x4F},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := udpFrame(t)
			frame[ethernetHeaderLen] = tt.ihl

			var rec core.FlowRecord
			_, err := classifyL3(frame, &rec)
			assert.ErrorIs(t, err, core.ErrPacketTooShort)
		})
	}
}

func TestClassifyIPv6(t *testing.T) {
	frame := serialize(t,
		ethernet(layers.EthernetTypeIPv6),
		ipv6("2001:db8::1", "2001:db8::2", layers.IPProtocolUDP),
		&layers.UDP{SrcPort: 53, DstPort: 5353},
	)

	var rec core.FlowRecord
	l4off, err := classifyL3(frame, &rec)
	require.NoError(t, err)

	assert.Equal(t, ethernetHeaderLen+ipv6HeaderLen, l4off)
	assert.Equal(t, uint8(17), rec.Protocol)
	assert.Equal(t, uint8(57), rec.TTL)
	assert.Equal(t, netip.MustParseAddr("2001:db8::1").As16(), rec.SrcIP)
	assert.Equal(t, netip.MustParseAddr("2001:db8::2").As16(), rec.DstIP)
}

func TestClassifyIPv6ExtensionHeader(t *testing.T) {
	frame := serialize(t,
		ethernet(layers.EthernetTypeIPv6),
		ipv6("2001:db8::1", "2001:db8::2", layers.IPProtocolIPv6HopByHop),
	)
	frame = append(frame, make([]byte, 8)...)

	var rec core.FlowRecord
	_, err := classifyL3(frame, &rec)
	assert.ErrorIs(t, err, core.ErrUnsupportedProto)
}

func TestClassifyIPv6HeaderDoesNotFit(t *testing.T) {
	frame := serialize(t,
		ethernet(layers.EthernetTypeIPv6),
		ipv6("2001:db8::1", "2001:db8::2", layers.IPProtocolTCP),
	)

	var rec core.FlowRecord
	_, err := classifyL3(frame[:ethernetHeaderLen+ipv6HeaderLen-1], &rec)
	assert.ErrorIs(t, err, core.ErrUnsupportedProto)
}

func TestClassifyARP(t *testing.T) {
	frame := serialize(t,
		ethernet(layers.EthernetTypeARP),
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   testSrcMAC,
			SourceProtAddress: []byte{10, 0, 0, 1},
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    []byte{10, 0, 0, 2},
		},
	)

	var rec core.FlowRecord
	_, err := classifyL3(frame, &rec)
	assert.ErrorIs(t, err, core.ErrUnsupportedProto)
	assert.Equal(t, core.FlowRecord{}, rec)
}

// The mapped address must not depend on where the frame sits in memory.
func TestClassifyIPv4MappingIsAlignmentIndependent(t *testing.T) {
	frame := udpFrame(t)
	want := netip.MustParseAddr("::ffff:192.168.1.1").As16()

	for shift := 0; shift < 8; shift++ {
		backing := make([]byte, shift+len(frame))
		copy(backing[shift:], frame)

		var rec core.FlowRecord
		_, err := classifyL3(backing[shift:], &rec)
		require.NoError(t, err)
		assert.Equal(t, want, rec.SrcIP, "shift %d", shift)
	}
}
