// Package pipeline wires a frame source, the emitter workers, the record
// ring and the consumer into one runnable unit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"firestige.xyz/flat/internal/consumer"
	"firestige.xyz/flat/internal/core"
	"firestige.xyz/flat/internal/emitter"
	"firestige.xyz/flat/internal/flowtable"
	"firestige.xyz/flat/internal/metrics"
	"firestige.xyz/flat/internal/ringbuf"
	"firestige.xyz/flat/internal/source"
	"firestige.xyz/flat/pkg/plugin"
)

const (
	defaultBufferSize = 4096
	depthInterval     = time.Second
)

// Config contains pipeline configuration.
//
// Exactly one of Source and Reader is set. With a Source, frames run
// through Workers emitter goroutines into Ring. With a Reader (the kernel
// ring), records are already encoded and go straight to the consumer.
type Config struct {
	NodeID     string
	Source     source.Source
	Reader     consumer.RecordReader
	Ring       *ringbuf.Ring
	Workers    int
	BufferSize int // frame channel buffer
	Emitter    emitter.Config
	FlowTable  *flowtable.Table
	Reporters  []plugin.Reporter
}

// Pipeline represents one capture-to-report chain.
type Pipeline struct {
	cfg      Config
	emitter  *emitter.Emitter
	consumer *consumer.Consumer
	metrics  *Metrics
}

// Stats represents pipeline statistics.
type Stats struct {
	Frames    uint64           `json:"frames"`
	Source    *source.Stats    `json:"source,omitempty"`
	Emitter   *emitter.Stats   `json:"emitter,omitempty"`
	Ring      *ringbuf.Stats   `json:"ring,omitempty"`
	Consumer  consumer.Stats   `json:"consumer"`
	FlowTable *flowtable.Stats `json:"flow_table,omitempty"`
}

// New creates a new pipeline.
func New(cfg Config) (*Pipeline, error) {
	if (cfg.Source == nil) == (cfg.Reader == nil) {
		return nil, fmt.Errorf("%w: pipeline needs exactly one of source or reader", core.ErrConfigInvalid)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}

	p := &Pipeline{cfg: cfg, metrics: NewMetrics()}
	reader := cfg.Reader
	if cfg.Source != nil {
		if cfg.Ring == nil {
			ring, err := ringbuf.New(ringbuf.DefaultCapacity)
			if err != nil {
				return nil, err
			}
			p.cfg.Ring = ring
		}
		ecfg := cfg.Emitter
		if source.IsOffline(cfg.Source) {
			ecfg.CaptureTime = true
			ecfg.Lossless = true
		}
		p.emitter = emitter.New(p.cfg.Ring, ecfg)
		reader = p.cfg.Ring
	}

	p.consumer = consumer.New(consumer.Config{
		NodeID:    cfg.NodeID,
		Reader:    reader,
		FlowTable: cfg.FlowTable,
		Reporters: cfg.Reporters,
	})
	return p, nil
}

// Run starts reporters and every stage, and blocks until the source is
// exhausted and drained, ctx is cancelled, or a stage fails.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.startReporters(ctx); err != nil {
		return err
	}
	defer p.stopReporters()

	slog.Info("pipeline starting", "node_id", p.cfg.NodeID, "workers", p.cfg.Workers)

	g, ctx := errgroup.WithContext(ctx)
	consumed := make(chan struct{})

	if p.cfg.Source != nil {
		frames := make(chan core.RawPacket, p.cfg.BufferSize)

		g.Go(func() error {
			defer close(frames)
			if err := p.cfg.Source.Capture(ctx, frames); err != nil {
				return fmt.Errorf("capture failed: %w", err)
			}
			return nil
		})

		var workers sync.WaitGroup
		for i := 0; i < p.cfg.Workers; i++ {
			workers.Add(1)
			g.Go(func() error {
				defer workers.Done()
				p.emitLoop(frames)
				return nil
			})
		}

		// The ring closes once every producer is gone so the consumer can
		// drain it and return.
		g.Go(func() error {
			workers.Wait()
			return p.cfg.Ring.Close()
		})

		// Lossless workers park on a full ring; a cancelled run releases
		// them by closing it.
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return p.cfg.Ring.Close()
			case <-consumed:
				return nil
			}
		})

		g.Go(func() error {
			p.trackDepth(ctx, consumed)
			return nil
		})
	}

	g.Go(func() error {
		defer close(consumed)
		return p.consumer.Run(ctx)
	})

	err := g.Wait()
	slog.Info("pipeline stopped", "node_id", p.cfg.NodeID, "frames", p.metrics.Frames.Load())
	return err
}

func (p *Pipeline) emitLoop(frames <-chan core.RawPacket) {
	for pkt := range frames {
		p.metrics.Frames.Add(1)
		p.emitter.Process(pkt)
	}
}

func (p *Pipeline) trackDepth(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(depthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			metrics.RingDepth.Set(float64(p.cfg.Ring.Len()))
		}
	}
}

func (p *Pipeline) startReporters(ctx context.Context) error {
	for i, r := range p.cfg.Reporters {
		if err := r.Start(ctx); err != nil {
			for _, started := range p.cfg.Reporters[:i] {
				_ = started.Stop(context.Background())
			}
			return fmt.Errorf("start reporter %s: %w", r.Name(), err)
		}
	}
	return nil
}

func (p *Pipeline) stopReporters() {
	var errs []error
	for _, r := range p.cfg.Reporters {
		if err := r.Stop(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("reporter stop failed", "error", err)
	}
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Stats {
	st := Stats{
		Frames:   p.metrics.Frames.Load(),
		Consumer: p.consumer.Stats(),
	}
	if p.cfg.Source != nil {
		src := p.cfg.Source.Stats()
		em := p.emitter.Stats()
		ring := p.cfg.Ring.Stats()
		st.Source, st.Emitter, st.Ring = &src, &em, &ring
	}
	if p.cfg.FlowTable != nil {
		ft := p.cfg.FlowTable.Stats()
		st.FlowTable = &ft
	}
	return st
}
