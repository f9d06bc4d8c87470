// Package kafka implements Kafka reporter plugin.
// Sends flow events to Kafka with batching, compression, and retry support.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/flat/internal/core"
	"firestige.xyz/flat/internal/record"
	"firestige.xyz/flat/pkg/plugin"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
)

// messageWriter is the subset of *kafka.Writer the reporter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter sends flow events to Kafka.
type KafkaReporter struct {
	name   string
	writer messageWriter
	config Config
	format record.Format

	// Statistics
	reportedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// Config represents Kafka reporter configuration.
type Config struct {
	Brokers      []string      `mapstructure:"brokers"`       // required
	Topic        string        `mapstructure:"topic"`         // required
	Format       string        `mapstructure:"format"`        // optional: json|binary|proto, default json
	BatchSize    int           `mapstructure:"batch_size"`    // optional, default 100
	BatchTimeout time.Duration `mapstructure:"batch_timeout"` // optional, default 100ms
	Compression  string        `mapstructure:"compression"`   // optional: none|gzip|snappy|lz4|zstd, default snappy
	MaxAttempts  int           `mapstructure:"max_attempts"`  // optional, default 3
	Async        bool          `mapstructure:"async"`         // optional, fire-and-forget writes
}

// NewKafkaReporter creates a new Kafka reporter.
func NewKafkaReporter() plugin.Reporter {
	return &KafkaReporter{
		name: "kafka",
	}
}

// Name returns the plugin name.
func (r *KafkaReporter) Name() string {
	return r.name
}

// Init initializes the reporter with configuration.
func (r *KafkaReporter) Init(config map[string]any) error {
	if config == nil {
		return fmt.Errorf("kafka reporter requires configuration")
	}

	cfg := Config{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Compression:  defaultCompression,
		MaxAttempts:  defaultMaxAttempts,
	}
	if err := plugin.DecodeConfig(config, &cfg); err != nil {
		return err
	}
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("brokers is required")
	}
	if cfg.Topic == "" {
		return fmt.Errorf("topic is required")
	}

	format, err := record.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return err
	}

	r.config = cfg
	r.format = format
	r.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // same flow, same partition
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		Compression:  codec,
		Async:        cfg.Async,
		Completion:   r.completion,
	}
	return nil
}

func compressionCodec(name string) (compress.Compression, error) {
	switch name {
	case "none", "":
		return compress.None, nil
	case "gzip":
		return compress.Gzip, nil
	case "snappy":
		return compress.Snappy, nil
	case "lz4":
		return compress.Lz4, nil
	case "zstd":
		return compress.Zstd, nil
	default:
		return compress.None, fmt.Errorf("invalid compression type: %s", name)
	}
}

// completion counts failures of async writes, which never reach Report.
func (r *KafkaReporter) completion(msgs []kafka.Message, err error) {
	if err != nil && r.config.Async {
		r.errorCount.Add(uint64(len(msgs)))
		slog.Error("kafka async write failed", "messages", len(msgs), "error", err)
	}
}

// Start starts the reporter.
func (r *KafkaReporter) Start(ctx context.Context) error {
	slog.Info("kafka reporter started",
		"brokers", r.config.Brokers,
		"topic", r.config.Topic,
		"format", r.format,
		"batch_size", r.config.BatchSize,
		"batch_timeout", r.config.BatchTimeout,
		"compression", r.config.Compression,
	)
	return nil
}

// Stop flushes pending messages and closes the writer.
func (r *KafkaReporter) Stop(ctx context.Context) error {
	if r.writer != nil {
		if err := r.writer.Close(); err != nil {
			slog.Error("error closing kafka writer", "error", err)
			return err
		}
	}

	slog.Info("kafka reporter stopped",
		"total_reported", r.reportedCount.Load(),
		"total_errors", r.errorCount.Load(),
	)
	return nil
}

// Report sends one event to Kafka.
func (r *KafkaReporter) Report(ctx context.Context, ev *core.FlowEvent) error {
	if ev == nil {
		return fmt.Errorf("nil event")
	}

	msg, err := r.message(ev)
	if err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("serialize event failed: %w", err)
	}

	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("kafka write failed: %w", err)
	}

	r.reportedCount.Add(1)
	return nil
}

// ReportBatch writes evs with a single WriteMessages call, so a synchronous
// writer waits out one batch timeout per drain rather than per event.
func (r *KafkaReporter) ReportBatch(ctx context.Context, evs []*core.FlowEvent) error {
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		msg, err := r.message(ev)
		if err != nil {
			r.errorCount.Add(1)
			return fmt.Errorf("serialize event failed: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := r.writer.WriteMessages(ctx, msgs...); err != nil {
		r.errorCount.Add(uint64(len(msgs)))
		return fmt.Errorf("kafka write failed: %w", err)
	}
	r.reportedCount.Add(uint64(len(msgs)))
	return nil
}

// message builds the Kafka message for ev. The key is "src:port-dst:port"
// so both directions of a flow stay ordered within their partitions.
func (r *KafkaReporter) message(ev *core.FlowEvent) (kafka.Message, error) {
	value, err := r.format.Encode(ev)
	if err != nil {
		return kafka.Message{}, err
	}

	rec := &ev.Record
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%s-%s", rec.Src(), rec.Dst())),
		Value: value,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte(r.format.ContentType())},
		},
	}
	if ev.NodeID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "node-id", Value: []byte(ev.NodeID)})
	}
	return msg, nil
}

// Flush is a no-op: kafka.Writer flushes on BatchSize/BatchTimeout and
// on Close.
func (r *KafkaReporter) Flush(ctx context.Context) error {
	return nil
}
