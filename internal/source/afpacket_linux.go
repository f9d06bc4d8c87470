//go:build linux

package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"firestige.xyz/flat/internal/core"
)

// AFPacket captures live frames from an interface through a TPACKET_V3 ring.
type AFPacket struct {
	cfg    AFPacketConfig
	handle *afpacket.TPacket

	packetsReceived  atomic.Uint64
	packetsDropped   atomic.Uint64
	packetsIfDropped atomic.Uint64
}

var _ Source = (*AFPacket)(nil)

// OpenAFPacket opens the capture socket and applies fanout and filter.
func OpenAFPacket(cfg AFPacketConfig) (*AFPacket, error) {
	cfg.applyDefaults()
	if cfg.Interface == "" {
		return nil, fmt.Errorf("%w: afpacket: interface is required", core.ErrConfigInvalid)
	}

	frameSize, blockSize, numBlocks, err := recomputeSize(cfg.BufferSizeMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("%w: afpacket: %v", core.ErrConfigInvalid, err)
	}

	handle, err := afpacket.NewTPacket(
		afpacket.OptInterface(cfg.Interface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(cfg.PollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create TPacket handle: %w", err)
	}

	s := &AFPacket{cfg: cfg, handle: handle}
	if err := s.configure(); err != nil {
		handle.Close()
		return nil, err
	}

	slog.Info("afpacket source opened",
		"interface", cfg.Interface,
		"frame_size", frameSize,
		"block_size", blockSize,
		"num_blocks", numBlocks,
		"fanout_id", cfg.FanoutID,
		"bpf_filter", cfg.BPFFilter)
	return s, nil
}

func (s *AFPacket) configure() error {
	if s.cfg.FanoutID > 0 {
		if err := s.handle.SetFanout(afpacket.FanoutHashWithDefrag, s.cfg.FanoutID); err != nil {
			return fmt.Errorf("failed to set fanout: %w", err)
		}
	}

	if s.cfg.BPFFilter != "" {
		insns, err := compileBPF(s.cfg.BPFFilter, s.cfg.SnapLen)
		if err != nil {
			return err
		}
		if err := s.handle.SetBPF(insns); err != nil {
			return fmt.Errorf("failed to set BPF: %w", err)
		}
	}

	if err := s.handle.InitSocketStats(); err != nil {
		slog.Warn("failed to init socket stats", "error", err)
	}
	return nil
}

// compileBPF compiles a tcpdump expression for Ethernet frames.
func compileBPF(filter string, snapLen int) ([]bpf.RawInstruction, error) {
	pcapInsns, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to compile BPF filter %q: %w", filter, err)
	}

	// Same layout: Code->Op, Jt, Jf, K
	raw := make([]bpf.RawInstruction, len(pcapInsns))
	for i, ins := range pcapInsns {
		raw[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return raw, nil
}

// Capture reads frames until ctx is done. Frames are copied out of the
// mmap ring because emitter workers hold them past the next read. When out
// is full the frame is dropped rather than stalling the socket.
func (s *AFPacket) Capture(ctx context.Context, out chan<- core.RawPacket) error {
	slog.Info("afpacket capture started", "interface", s.cfg.Interface)

	for {
		select {
		case <-ctx.Done():
			slog.Info("afpacket capture stopped", "interface", s.cfg.Interface)
			return nil
		default:
		}

		data, ci, err := s.handle.ReadPacketData()
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("afpacket capture stopped", "interface", s.cfg.Interface)
				return nil
			}
			// Poll timeout, EINTR: retry.
			continue
		}
		s.packetsReceived.Add(1)

		if _, st, err := s.handle.SocketStats(); err == nil {
			s.packetsIfDropped.Store(uint64(st.Drops()))
		}

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
			slog.Info("afpacket capture stopped", "interface", s.cfg.Interface)
			return nil
		default:
			s.packetsDropped.Add(1)
		}
	}
}

// Stats returns capture statistics.
func (s *AFPacket) Stats() Stats {
	return Stats{
		PacketsReceived:  s.packetsReceived.Load(),
		PacketsDropped:   s.packetsDropped.Load(),
		PacketsIfDropped: s.packetsIfDropped.Load(),
	}
}

// Close releases the socket. Call it only after Capture has returned: the
// read loop touches the mmap ring until then.
func (s *AFPacket) Close() error {
	s.handle.Close()
	return nil
}
