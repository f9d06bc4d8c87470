package daemon

import (
	"fmt"
	"io"

	"firestige.xyz/flat/internal/clock"
	"firestige.xyz/flat/internal/config"
	"firestige.xyz/flat/internal/emitter"
	"firestige.xyz/flat/internal/flowtable"
	"firestige.xyz/flat/internal/pipeline"
	"firestige.xyz/flat/internal/ringbuf"
	"firestige.xyz/flat/internal/source"
	"firestige.xyz/flat/pkg/plugin"
)

// components is everything a daemon run owns.
type components struct {
	pipeline   *pipeline.Pipeline
	kernelRing *source.KernelRing // nil unless capture.mode=kernel
	closers    []io.Closer
}

// buildComponents opens the configured source and wires the pipeline.
// On error everything opened so far is closed.
func buildComponents(cfg *config.GlobalConfig) (c *components, err error) {
	c = &components{}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	b := pipeline.NewBuilder().
		WithNodeID(cfg.Node.ID).
		WithWorkers(cfg.Emitter.Workers).
		WithBufferSize(cfg.Emitter.BufferSize).
		WithEmitter(emitter.Config{
			MSSCeiling: cfg.Emitter.MSSCeiling,
			Clock:      clock.Monotonic,
		})

	switch cfg.Capture.Mode {
	case config.CaptureModePcap:
		src, err := source.OpenPcapFile(cfg.Capture.Path)
		if err != nil {
			return c, err
		}
		c.closers = append(c.closers, src)
		b.WithSource(src)
	case config.CaptureModeAFPacket:
		src, err := source.OpenAFPacket(cfg.Capture.AFPacket)
		if err != nil {
			return c, err
		}
		c.closers = append(c.closers, src)
		b.WithSource(src)
	case config.CaptureModeKernel:
		kr, err := source.OpenKernelRing(cfg.Capture.Kernel)
		if err != nil {
			return c, err
		}
		c.closers = append(c.closers, kr)
		c.kernelRing = kr
		b.WithReader(kr)
	default:
		return c, fmt.Errorf("unsupported capture mode: %s", cfg.Capture.Mode)
	}

	if cfg.Capture.Mode != config.CaptureModeKernel {
		ring, err := ringbuf.New(cfg.Ring.CapacityBytes)
		if err != nil {
			return c, err
		}
		b.WithRing(ring)
	}

	if cfg.FlowTable.Enabled {
		b.WithFlowTable(flowtable.New(flowtable.Config{
			TTL:             cfg.FlowTable.TTL,
			CleanupInterval: cfg.FlowTable.CleanupInterval,
		}))
	}

	reporters, err := NewReporters(cfg.Reporters)
	if err != nil {
		return c, err
	}
	b.WithReporters(reporters...)

	c.pipeline, err = b.Build()
	return c, err
}

func (c *components) close() {
	for _, cl := range c.closers {
		_ = cl.Close()
	}
	c.closers = nil
}

// NewReporters creates and initializes the configured reporters from the
// plugin registry.
func NewReporters(cfgs []config.ReporterConfig) ([]plugin.Reporter, error) {
	reporters := make([]plugin.Reporter, 0, len(cfgs))
	for _, rc := range cfgs {
		r, err := plugin.NewReporter(rc.Name)
		if err != nil {
			return nil, err
		}
		if err := r.Init(rc.Config); err != nil {
			return nil, fmt.Errorf("init reporter %s: %w", rc.Name, err)
		}
		reporters = append(reporters, r)
	}
	return reporters, nil
}
