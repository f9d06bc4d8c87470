// Package consumer drains committed flow records and fans them out to
// reporters.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"firestige.xyz/flat/internal/core"
	"firestige.xyz/flat/internal/flowtable"
	"firestige.xyz/flat/internal/metrics"
	"firestige.xyz/flat/pkg/plugin"
)

// RecordReader yields committed records. ringbuf.Ring and the kernel ring
// source both implement it.
type RecordReader interface {
	Read(ctx context.Context) (core.FlowRecord, error)
}

// Drainer is a RecordReader that can also return what is already published
// without blocking. ringbuf.Ring implements it.
type Drainer interface {
	TryRead() (core.FlowRecord, bool)
}

// DefaultBatchSize caps how many records one drain hands to reporters.
const DefaultBatchSize = 256

// Config configures a Consumer.
type Config struct {
	NodeID    string
	Reader    RecordReader
	FlowTable *flowtable.Table // optional
	Reporters []plugin.Reporter
	BatchSize int
}

// Consumer is the single reading side of the pipeline.
type Consumer struct {
	nodeID    string
	reader    RecordReader
	drainer   Drainer
	table     *flowtable.Table
	reporters []plugin.Reporter
	batchSize int

	events []core.FlowEvent
	batch  []*core.FlowEvent

	consumed     atomic.Uint64
	handshakes   atomic.Uint64
	reportErrors atomic.Uint64
}

// Stats is a snapshot of consumer counters.
type Stats struct {
	Consumed     uint64 `json:"consumed"`
	Handshakes   uint64 `json:"handshakes"`
	ReportErrors uint64 `json:"report_errors"`
}

// New creates a consumer.
func New(cfg Config) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	c := &Consumer{
		nodeID:    cfg.NodeID,
		reader:    cfg.Reader,
		table:     cfg.FlowTable,
		reporters: cfg.Reporters,
		batchSize: cfg.BatchSize,
		events:    make([]core.FlowEvent, 0, cfg.BatchSize),
		batch:     make([]*core.FlowEvent, 0, cfg.BatchSize),
	}
	if d, ok := cfg.Reader.(Drainer); ok {
		c.drainer = d
	}
	return c
}

// Run reads until ctx is done or the reader is closed and drained, then
// flushes the reporters. Reporter failures never stop the loop.
//
// After each blocking read Run also takes whatever else is already
// published, up to BatchSize records, and delivers them together.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.flush()

	recs := make([]core.FlowRecord, 0, c.batchSize)
	for {
		rec, err := c.reader.Read(ctx)
		if err != nil {
			if errors.Is(err, core.ErrRingClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		recs = append(recs[:0], rec)
		for c.drainer != nil && len(recs) < c.batchSize {
			next, ok := c.drainer.TryRead()
			if !ok {
				break
			}
			recs = append(recs, next)
		}
		c.HandleBatch(ctx, recs)
	}
}

// Handle processes one record.
func (c *Consumer) Handle(ctx context.Context, rec core.FlowRecord) {
	c.HandleBatch(ctx, []core.FlowRecord{rec})
}

// HandleBatch matches recs against the flow table in order and delivers
// the events: one ReportBatch call to each plugin.BatchReporter, one Report
// per event to every other reporter. It is not safe for concurrent use.
func (c *Consumer) HandleBatch(ctx context.Context, recs []core.FlowRecord) {
	if len(recs) == 0 {
		return
	}
	c.consumed.Add(uint64(len(recs)))

	c.events = c.events[:0]
	for _, rec := range recs {
		ev := core.FlowEvent{NodeID: c.nodeID, Record: rec}
		if c.table != nil {
			if hs, ok := c.table.Observe(rec); ok {
				c.handshakes.Add(1)
				metrics.HandshakeRTTSeconds.Observe(hs.RTT.Seconds())
				ev.Handshake = &hs
			}
		}
		c.events = append(c.events, ev)
	}
	if c.table != nil {
		metrics.FlowTableSize.Set(float64(c.table.Len()))
	}

	c.batch = c.batch[:0]
	for i := range c.events {
		c.batch = append(c.batch, &c.events[i])
	}

	for _, r := range c.reporters {
		if br, ok := r.(plugin.BatchReporter); ok {
			if err := br.ReportBatch(ctx, c.batch); err != nil {
				c.reportFailed(r, "report_batch", err)
			}
			continue
		}
		for _, ev := range c.batch {
			if err := r.Report(ctx, ev); err != nil {
				c.reportFailed(r, "report", err)
			}
		}
	}
}

func (c *Consumer) reportFailed(r plugin.Reporter, op string, err error) {
	c.reportErrors.Add(1)
	metrics.ReporterErrorsTotal.WithLabelValues(r.Name(), op).Inc()
	slog.Error("reporter failed", "reporter", r.Name(), "op", op, "error", err)
}

// flush runs with a fresh context: Run's ctx is usually cancelled by now.
func (c *Consumer) flush() {
	for _, r := range c.reporters {
		if err := r.Flush(context.Background()); err != nil {
			metrics.ReporterErrorsTotal.WithLabelValues(r.Name(), "flush").Inc()
			slog.Error("reporter flush failed", "reporter", r.Name(), "error", err)
		}
	}
}

// Stats returns consumer counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Consumed:     c.consumed.Load(),
		Handshakes:   c.handshakes.Load(),
		ReportErrors: c.reportErrors.Load(),
	}
}
