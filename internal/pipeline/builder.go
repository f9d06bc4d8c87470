package pipeline

import (
	"firestige.xyz/flat/internal/consumer"
	"firestige.xyz/flat/internal/emitter"
	"firestige.xyz/flat/internal/flowtable"
	"firestige.xyz/flat/internal/ringbuf"
	"firestige.xyz/flat/internal/source"
	"firestige.xyz/flat/pkg/plugin"
)

// Builder provides a fluent interface for building pipelines.
// This is an alternative to using Config directly.
type Builder struct {
	config Config
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			Workers:    1,
			BufferSize: defaultBufferSize,
		},
	}
}

// WithNodeID sets the node identity stamped on every event.
func (b *Builder) WithNodeID(id string) *Builder {
	b.config.NodeID = id
	return b
}

// WithSource sets the frame source.
func (b *Builder) WithSource(s source.Source) *Builder {
	b.config.Source = s
	return b
}

// WithReader reads pre-encoded records instead of running the emitter.
func (b *Builder) WithReader(r consumer.RecordReader) *Builder {
	b.config.Reader = r
	return b
}

// WithRing sets the record ring.
func (b *Builder) WithRing(r *ringbuf.Ring) *Builder {
	b.config.Ring = r
	return b
}

// WithWorkers sets the number of emitter goroutines.
func (b *Builder) WithWorkers(n int) *Builder {
	b.config.Workers = n
	return b
}

// WithEmitter sets the emitter policy.
func (b *Builder) WithEmitter(cfg emitter.Config) *Builder {
	b.config.Emitter = cfg
	return b
}

// WithFlowTable enables handshake matching.
func (b *Builder) WithFlowTable(t *flowtable.Table) *Builder {
	b.config.FlowTable = t
	return b
}

// WithReporters sets the reporter chain.
func (b *Builder) WithReporters(reporters ...plugin.Reporter) *Builder {
	b.config.Reporters = reporters
	return b
}

// WithBufferSize sets the frame channel buffer size.
func (b *Builder) WithBufferSize(size int) *Builder {
	b.config.BufferSize = size
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	return New(b.config)
}
