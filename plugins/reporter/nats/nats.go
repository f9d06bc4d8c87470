// Package nats implements the NATS reporter plugin.
// Publishes each encoded flow event to a subject.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"firestige.xyz/flat/internal/core"
	"firestige.xyz/flat/internal/record"
	"firestige.xyz/flat/pkg/plugin"
)

const (
	defaultURL          = nats.DefaultURL
	defaultSubject      = "flat.records"
	defaultFlushTimeout = 2 * time.Second
)

// conn is the subset of *nats.Conn the reporter uses.
type conn interface {
	PublishMsg(m *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
	Drain() error
}

// NATSReporter publishes flow events to NATS.
type NATSReporter struct {
	name   string
	config Config
	format record.Format
	conn   conn
	dial   func(cfg Config) (conn, error)

	reportedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// Config represents NATS reporter configuration.
type Config struct {
	URL          string        `mapstructure:"url"`           // default nats://127.0.0.1:4222
	Subject      string        `mapstructure:"subject"`       // default flat.records
	PerProtocol  bool          `mapstructure:"per_protocol"`  // append ".tcp"/".udp" to the subject
	Format       string        `mapstructure:"format"`        // json|binary|proto, default proto
	FlushTimeout time.Duration `mapstructure:"flush_timeout"` // default 2s
}

// NewNATSReporter creates a new NATS reporter.
func NewNATSReporter() plugin.Reporter {
	return &NATSReporter{
		name: "nats",
		dial: connect,
	}
}

func connect(cfg Config) (conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("flat"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	return nc, nil
}

// Name returns the plugin name.
func (r *NATSReporter) Name() string {
	return r.name
}

// Init initializes the reporter with configuration.
func (r *NATSReporter) Init(config map[string]any) error {
	cfg := Config{
		URL:          defaultURL,
		Subject:      defaultSubject,
		Format:       string(record.FormatProto),
		FlushTimeout: defaultFlushTimeout,
	}
	if err := plugin.DecodeConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.Subject == "" {
		return fmt.Errorf("subject is required")
	}

	format, err := record.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	r.config = cfg
	r.format = format
	return nil
}

// Start connects to the server.
func (r *NATSReporter) Start(ctx context.Context) error {
	c, err := r.dial(r.config)
	if err != nil {
		return fmt.Errorf("connect to nats %s: %w", r.config.URL, err)
	}
	r.conn = c
	slog.Info("nats reporter started", "url", r.config.URL, "subject", r.config.Subject, "format", r.format)
	return nil
}

// Stop drains the connection.
func (r *NATSReporter) Stop(ctx context.Context) error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Drain()
	r.conn = nil
	slog.Info("nats reporter stopped",
		"total_reported", r.reportedCount.Load(),
		"total_errors", r.errorCount.Load(),
	)
	return err
}

// Report publishes one event.
func (r *NATSReporter) Report(ctx context.Context, ev *core.FlowEvent) error {
	if ev == nil {
		return fmt.Errorf("nil event")
	}
	if r.conn == nil {
		return fmt.Errorf("nats reporter not started")
	}

	data, err := r.format.Encode(ev)
	if err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("serialize event failed: %w", err)
	}

	msg := nats.NewMsg(r.subject(&ev.Record))
	msg.Data = data
	msg.Header.Set("Content-Type", r.format.ContentType())
	if ev.NodeID != "" {
		msg.Header.Set("Flat-Node", ev.NodeID)
	}

	if err := r.conn.PublishMsg(msg); err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("nats publish failed: %w", err)
	}
	r.reportedCount.Add(1)
	return nil
}

func (r *NATSReporter) subject(rec *core.FlowRecord) string {
	if !r.config.PerProtocol {
		return r.config.Subject
	}
	return r.config.Subject + "." + rec.ProtocolName()
}

// Flush waits for the server to acknowledge everything published so far.
func (r *NATSReporter) Flush(ctx context.Context) error {
	if r.conn == nil {
		return nil
	}
	timeout := r.config.FlushTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(dl))
	}
	return r.conn.FlushTimeout(timeout)
}
