//go:build linux

package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"

	"firestige.xyz/flat/internal/core"
	"firestige.xyz/flat/internal/record"
)

const defaultPollInterval = 200 * time.Millisecond

// KernelRing reads records committed by the in-kernel emitter from a
// pinned ring buffer map. It replaces the userspace emitter and ring: the
// consumer reads from it directly.
type KernelRing struct {
	path   string
	poll   time.Duration
	m      *ebpf.Map
	reader *ringbuf.Reader
	rec    ringbuf.Record

	records   atomic.Uint64
	malformed atomic.Uint64
}

// OpenKernelRing opens the pinned map at cfg.PinPath.
func OpenKernelRing(cfg KernelRingConfig) (*KernelRing, error) {
	if cfg.PinPath == "" {
		return nil, fmt.Errorf("%w: kernel ring: pin_path is required", core.ErrConfigInvalid)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	// Remove resource limits for kernels <5.11.
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("kernel ring: failed to remove memlock: %w", err)
	}

	m, err := ebpf.LoadPinnedMap(cfg.PinPath, nil)
	if err != nil {
		return nil, fmt.Errorf("kernel ring: failed to load pinned map %s: %w", cfg.PinPath, err)
	}
	if m.Type() != ebpf.RingBuf {
		m.Close()
		return nil, fmt.Errorf("%w: kernel ring: %s is a %s map, not a ring buffer", core.ErrConfigInvalid, cfg.PinPath, m.Type())
	}

	rd, err := ringbuf.NewReader(m)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("kernel ring: failed to create reader: %w", err)
	}

	slog.Info("kernel ring opened", "pin_path", cfg.PinPath, "max_entries", m.MaxEntries())
	return &KernelRing{path: cfg.PinPath, poll: cfg.PollInterval, m: m, reader: rd}, nil
}

// Read returns the next record. It is meant for a single reading
// goroutine. Samples shorter than a record are counted and skipped.
func (k *KernelRing) Read(ctx context.Context) (core.FlowRecord, error) {
	var out core.FlowRecord
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		k.reader.SetDeadline(time.Now().Add(k.poll))
		err := k.reader.ReadInto(&k.rec)
		switch {
		case err == nil:
		case errors.Is(err, os.ErrDeadlineExceeded):
			continue
		case errors.Is(err, ringbuf.ErrClosed):
			return out, core.ErrRingClosed
		default:
			return out, fmt.Errorf("kernel ring read: %w", err)
		}

		if err := record.ReadBinary(k.rec.RawSample, &out); err != nil {
			k.malformed.Add(1)
			slog.Debug("kernel ring sample skipped", "error", err, "len", len(k.rec.RawSample))
			continue
		}
		k.records.Add(1)
		return out, nil
	}
}

// Stats returns read counters.
func (k *KernelRing) Stats() KernelRingStats {
	return KernelRingStats{Records: k.records.Load(), Malformed: k.malformed.Load()}
}

// Close closes the reader, unblocking Read, and the map handle.
func (k *KernelRing) Close() error {
	err := k.reader.Close()
	if cerr := k.m.Close(); err == nil {
		err = cerr
	}
	return err
}
