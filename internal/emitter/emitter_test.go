package emitter

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/flat/internal/core"
	"firestige.xyz/flat/internal/ringbuf"
)

func synFrame(t *testing.T, mss uint16) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
			DstMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			EthernetType: layers.EthernetTypeIPv4,
		},
		&layers.IPv4{
			Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
			SrcIP: net.IP{10, 0, 0, 1}, DstIP: net.IP{10, 0, 0, 2},
		},
		&layers.TCP{
			SrcPort: 40000, DstPort: 443, SYN: true,
			Options: []layers.TCPOption{{
				OptionType: layers.TCPOptionKindMSS,
				OptionData: []byte{byte(mss >> 8), byte(mss)},
			}},
		},
	)
	require.NoError(t, err)
	return buf.Bytes()
}

func newEmitter(t *testing.T, slots int, cfg Config) (*Emitter, *ringbuf.Ring) {
	t.Helper()
	ring, err := ringbuf.New(slots * ringbuf.SlotSize)
	require.NoError(t, err)
	return New(ring, cfg), ring
}

func TestProcessCommitsSYN(t *testing.T) {
	e, ring := newEmitter(t, 4, Config{Clock: func() uint64 { return 99 }})

	v := e.Process(core.RawPacket{Data: synFrame(t, 1460)})
	assert.Equal(t, core.VerdictAllow, v)

	rec, ok := ring.TryRead()
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("::ffff:10.0.0.1").As16(), rec.SrcIP)
	assert.Equal(t, uint16(1460), rec.MSS)
	assert.Equal(t, uint64(99), rec.Timestamp)
	assert.Equal(t, uint64(1), e.Stats().Decoded)
}

func TestProcessAppliesCeiling(t *testing.T) {
	e, ring := newEmitter(t, 4, Config{MSSCeiling: 1200})
	e.Process(core.RawPacket{Data: synFrame(t, 1460)})

	rec, ok := ring.TryRead()
	require.True(t, ok)
	assert.Equal(t, uint16(1200), rec.MSS)
}

func TestProcessFiltersBeforeReserving(t *testing.T) {
	e, ring := newEmitter(t, 4, Config{})

	frames := []core.RawPacket{
		{Data: nil},
		{Data: make([]byte, 13)},
		{Data: synFrame(t, 1460), Type: core.PacketBroadcast},
		{Data: synFrame(t, 1460), Type: core.PacketMulticast},
	}
	for _, pkt := range frames {
		assert.Equal(t, core.VerdictAllow, e.Process(pkt))
	}

	assert.Equal(t, uint64(4), e.Stats().Filtered)
	assert.Zero(t, ring.Stats().Reserved)
}

func TestProcessDiscardsInapplicable(t *testing.T) {
	e, ring := newEmitter(t, 4, Config{})

	arp := make([]byte, 42)
	arp[12], arp[13] = 0x08, 0x06
	ack := synFrame(t, 1460)
	ack[14+20+13] = 0x10 // ACK only

	assert.Equal(t, core.VerdictAllow, e.Process(core.RawPacket{Data: arp}))
	assert.Equal(t, core.VerdictAllow, e.Process(core.RawPacket{Data: ack}))
	assert.Equal(t, core.VerdictAllow, e.Process(core.RawPacket{Data: synFrame(t, 1460)[:40]}))

	_, ok := ring.TryRead()
	assert.False(t, ok)

	st := e.Stats()
	assert.Equal(t, uint64(2), st.Inapplicable)
	assert.Equal(t, uint64(1), st.Truncated)
	assert.Equal(t, uint64(3), ring.Stats().Discarded)
}

func TestProcessFullRingStillAllows(t *testing.T) {
	e, ring := newEmitter(t, 2, Config{})
	frame := synFrame(t, 1460)

	for i := 0; i < 5; i++ {
		assert.Equal(t, core.VerdictAllow, e.Process(core.RawPacket{Data: frame}))
	}

	assert.Equal(t, uint64(3), e.Stats().Dropped)
	assert.Equal(t, uint64(3), ring.Stats().Dropped)
	assert.Equal(t, uint64(2), ring.Stats().Committed)
}

func TestProcessClosedRingStillAllows(t *testing.T) {
	e, ring := newEmitter(t, 2, Config{})
	require.NoError(t, ring.Close())

	assert.Equal(t, core.VerdictAllow, e.Process(core.RawPacket{Data: synFrame(t, 1460)}))
	assert.Equal(t, uint64(1), e.Stats().Dropped)
}

func TestProcessCaptureTime(t *testing.T) {
	ts := time.Unix(1700000000, 250)
	e, ring := newEmitter(t, 4, Config{
		Clock:       func() uint64 { return 42 },
		CaptureTime: true,
	})

	e.Process(core.RawPacket{Data: synFrame(t, 1460), Timestamp: ts})
	e.Process(core.RawPacket{Data: synFrame(t, 1460)})

	rec, ok := ring.TryRead()
	require.True(t, ok)
	assert.Equal(t, uint64(ts.UnixNano()), rec.Timestamp)

	rec, ok = ring.TryRead()
	require.True(t, ok)
	assert.Equal(t, uint64(42), rec.Timestamp, "no capture time falls back to the clock")
}

func TestProcessLosslessWaitsForSpace(t *testing.T) {
	e, ring := newEmitter(t, 2, Config{Lossless: true})
	frame := synFrame(t, 1460)
	e.Process(core.RawPacket{Data: frame})
	e.Process(core.RawPacket{Data: frame})

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Process(core.RawPacket{Data: frame})
	}()

	select {
	case <-done:
		t.Fatal("lossless Process returned on a full ring")
	case <-time.After(20 * time.Millisecond):
	}

	_, ok := ring.TryRead()
	require.True(t, ok)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lossless Process not released")
	}

	assert.Zero(t, e.Stats().Dropped)
	assert.Equal(t, uint64(3), e.Stats().Decoded)
	assert.Zero(t, ring.Stats().Dropped)
}
