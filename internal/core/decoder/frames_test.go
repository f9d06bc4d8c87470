package decoder

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

var (
	testSrcMAC = net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	testDstMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
)

// serialize builds a frame from gopacket layers with lengths fixed up.
func serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func ethernet(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: t}
}

func ipv4(src, dst string, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
}

func ipv6(src, dst string, next layers.IPProtocol) *layers.IPv6 {
	return &layers.IPv6{
		Version:    6,
		HopLimit:   57,
		NextHeader: next,
		SrcIP:      net.ParseIP(src),
		DstIP:      net.ParseIP(dst),
	}
}

func mssOption(mss uint16) layers.TCPOption {
	return layers.TCPOption{
		OptionType: layers.TCPOptionKindMSS,
		OptionData: []byte{byte(mss >> 8), byte(mss)},
	}
}

// tcpFrame builds Ethernet+IPv4+TCP with the given flags and options.
func tcpFrame(t testing.TB, syn, ack bool, options ...layers.TCPOption) []byte {
	t.Helper()
	return serialize(t,
		ethernet(layers.EthernetTypeIPv4),
		ipv4("10.0.0.1", "10.0.0.2", layers.IPProtocolTCP),
		&layers.TCP{SrcPort: 40000, DstPort: 443, SYN: syn, ACK: ack, Window: 64240, Options: options},
	)
}

func udpFrame(t testing.TB) []byte {
	t.Helper()
	return serialize(t,
		ethernet(layers.EthernetTypeIPv4),
		ipv4("192.168.1.1", "192.168.1.2", layers.IPProtocolUDP),
		&layers.UDP{SrcPort: 5000, DstPort: 5001},
	)
}
