package core

import (
	"fmt"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructZeroValues(t *testing.T) {
	t.Run("FlowRecord", func(t *testing.T) {
		var rec FlowRecord
		assert.Equal(t, [16]byte{}, rec.SrcIP)
		assert.False(t, rec.SYN)
		assert.Zero(t, rec.MSS)
	})

	t.Run("RawPacket", func(t *testing.T) {
		var raw RawPacket
		assert.Nil(t, raw.Data)
		assert.True(t, raw.Timestamp.IsZero())
		assert.Equal(t, PacketHost, raw.Type)
	})
}

func TestMapIPv4(t *testing.T) {
	var dst [16]byte
	for i := range dst {
		dst[i] = 0xAA // stale content must be cleared
	}
	MapIPv4(&dst, []byte{10, 0, 0, 1})

	want := netip.MustParseAddr("::ffff:10.0.0.1").As16()
	assert.Equal(t, want, dst)
}

func TestFlowRecordEndpoints(t *testing.T) {
	rec := FlowRecord{SrcPort: 40000, DstPort: 443, Protocol: ProtocolTCP}
	MapIPv4(&rec.SrcIP, []byte{10, 0, 0, 1})
	rec.DstIP = netip.MustParseAddr("2001:db8::2").As16()

	assert.Equal(t, "10.0.0.1:40000", rec.Src().String())
	assert.Equal(t, "[2001:db8::2]:443", rec.Dst().String())
	assert.Equal(t, "tcp", rec.ProtocolName())

	rec.Protocol = 132
	assert.Equal(t, "132", rec.ProtocolName())
}

func TestPacketTypeOf(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  PacketType
	}{
		{"broadcast", []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, PacketBroadcast},
		{"multicast", []byte{0x01, 0x00, 0x5e, 0x00, 0x00, 0xfb}, PacketMulticast},
		{"ipv6 multicast", []byte{0x33, 0x33, 0x00, 0x00, 0x00, 0x01}, PacketMulticast},
		{"unicast", []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, PacketHost},
		{"too short", []byte{0xff}, PacketHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PacketTypeOf(tt.frame)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want != PacketBroadcast && tt.want != PacketMulticast, got.Unicast())
		})
	}
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeDecoded, OutcomeOf(nil))
	assert.Equal(t, OutcomeTruncated, OutcomeOf(ErrPacketTooShort))
	assert.Equal(t, OutcomeTruncated, OutcomeOf(fmt.Errorf("ipv4: %w", ErrPacketTooShort)))
	assert.Equal(t, OutcomeInapplicable, OutcomeOf(ErrUnsupportedProto))
	assert.Equal(t, OutcomeInapplicable, OutcomeOf(ErrNotSignificant))
	assert.Equal(t, "truncated", OutcomeTruncated.String())
}
