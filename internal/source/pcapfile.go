package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/flat/internal/core"
)

// pcapng section header block type, read as the first four file bytes.
var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// PcapFile replays a pcap or pcapng capture of Ethernet frames.
type PcapFile struct {
	path   string
	file   *os.File
	reader packetReader

	packetsReceived atomic.Uint64
}

var _ Source = (*PcapFile)(nil)

// OpenPcapFile opens path and checks that it holds Ethernet frames.
func OpenPcapFile(path string) (*PcapFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}

	r, err := newPacketReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap file %s: %w", path, err)
	}
	return &PcapFile{path: path, file: f, reader: r}, nil
}

func newPacketReader(f *os.File) (packetReader, error) {
	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, err
	}

	if string(magic) == string(pcapngMagic) {
		r, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, err
		}
		if lt := r.LinkType(); lt != layers.LinkTypeEthernet {
			return nil, fmt.Errorf("unsupported link type %s", lt)
		}
		return r, nil
	}

	r, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, err
	}
	if lt := r.LinkType(); lt != layers.LinkTypeEthernet {
		return nil, fmt.Errorf("unsupported link type %s", lt)
	}
	return r, nil
}

// Capture sends every frame in the file, in order, then returns nil. It
// blocks while out is full.
func (s *PcapFile) Capture(ctx context.Context, out chan<- core.RawPacket) error {
	slog.Info("pcap replay started", "path", s.path)

	for {
		data, ci, err := s.reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				slog.Info("pcap replay finished", "path", s.path, "packets", s.packetsReceived.Load())
				return nil
			}
			return fmt.Errorf("failed to read packet: %w", err)
		}
		s.packetsReceived.Add(1)

		raw := core.RawPacket{
			Data:           data,
			Timestamp:      ci.Timestamp,
			CaptureLen:     uint32(ci.CaptureLength),
			OrigLen:        uint32(ci.Length),
			InterfaceIndex: ci.InterfaceIndex,
			Type:           core.PacketTypeOf(data),
		}

		select {
		case out <- raw:
		case <-ctx.Done():
			return nil
		}
	}
}

// Offline reports true: frames come from a trace, so the pipeline stamps
// records with capture time and waits for ring space instead of dropping.
func (s *PcapFile) Offline() bool { return true }

// Stats returns replay statistics.
func (s *PcapFile) Stats() Stats {
	return Stats{PacketsReceived: s.packetsReceived.Load()}
}

// Close closes the file.
func (s *PcapFile) Close() error {
	return s.file.Close()
}
