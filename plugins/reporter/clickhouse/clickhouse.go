// Package clickhouse implements the ClickHouse reporter plugin.
// Buffers flow events and batch-inserts them into the flow_records table.
package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"firestige.xyz/flat/internal/core"
	"firestige.xyz/flat/internal/metrics"
	"firestige.xyz/flat/pkg/plugin"
)

const (
	defaultAddr          = "127.0.0.1:9000"
	defaultDatabase      = "default"
	defaultTable         = "flow_records"
	defaultBatchSize     = 1000
	defaultFlushInterval = 5 * time.Second
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS %s (
    EventTime   DateTime64(3),
    NodeID      LowCardinality(String),
    SrcIP       IPv6,
    DstIP       IPv6,
    SrcPort     UInt16,
    DstPort     UInt16,
    Protocol    UInt8,
    TTL         UInt8,
    SYN         Bool,
    ACK         Bool,
    TimestampNs UInt64,
    MSS         UInt16,
    RTTMicros   Nullable(UInt64),
    ClientMSS   UInt16,
    ServerMSS   UInt16
) ENGINE = MergeTree()
PARTITION BY toYYYYMMDD(EventTime)
ORDER BY (NodeID, EventTime);
`

// batch is the subset of driver.Batch the reporter uses.
type batch interface {
	Append(v ...any) error
	Send() error
	Abort() error
}

// conn is the subset of driver.Conn the reporter uses.
type conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	PrepareBatch(ctx context.Context, query string) (batch, error)
	Close() error
}

type driverConn struct {
	driver.Conn
}

func (c driverConn) PrepareBatch(ctx context.Context, query string) (batch, error) {
	return c.Conn.PrepareBatch(ctx, query)
}

// ClickHouseReporter writes flow events to ClickHouse.
type ClickHouseReporter struct {
	name   string
	config Config
	conn   conn
	dial   func(cfg Config) (conn, error)
	now    func() time.Time

	mu      sync.Mutex
	pending []*core.FlowEvent

	stop chan struct{}
	wg   sync.WaitGroup

	insertedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// Config represents ClickHouse reporter configuration.
type Config struct {
	Addr          []string      `mapstructure:"addr"`           // default 127.0.0.1:9000
	Database      string        `mapstructure:"database"`       // default "default"
	Username      string        `mapstructure:"username"`       // optional
	Password      string        `mapstructure:"password"`       // optional
	Table         string        `mapstructure:"table"`          // default flow_records
	BatchSize     int           `mapstructure:"batch_size"`     // default 1000
	FlushInterval time.Duration `mapstructure:"flush_interval"` // default 5s, 0 disables the timer
	CreateTable   bool          `mapstructure:"create_table"`   // run CREATE TABLE IF NOT EXISTS on start
}

// NewClickHouseReporter creates a new ClickHouse reporter.
func NewClickHouseReporter() plugin.Reporter {
	return &ClickHouseReporter{
		name: "clickhouse",
		dial: connect,
		now:  time.Now,
	}
}

func connect(cfg Config) (conn, error) {
	c, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := c.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return driverConn{c}, nil
}

// Name returns the plugin name.
func (r *ClickHouseReporter) Name() string {
	return r.name
}

// Init initializes the reporter with configuration.
func (r *ClickHouseReporter) Init(config map[string]any) error {
	cfg := Config{
		Addr:          []string{defaultAddr},
		Database:      defaultDatabase,
		Table:         defaultTable,
		BatchSize:     defaultBatchSize,
		FlushInterval: defaultFlushInterval,
		CreateTable:   true,
	}
	if err := plugin.DecodeConfig(config, &cfg); err != nil {
		return err
	}
	if len(cfg.Addr) == 0 {
		return fmt.Errorf("addr is required")
	}
	if cfg.Table == "" {
		return fmt.Errorf("table is required")
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", cfg.BatchSize)
	}

	r.config = cfg
	r.pending = make([]*core.FlowEvent, 0, cfg.BatchSize)
	return nil
}

// Start connects, ensures the table exists and starts the flush timer.
func (r *ClickHouseReporter) Start(ctx context.Context) error {
	c, err := r.dial(r.config)
	if err != nil {
		return fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if r.config.CreateTable {
		if err := c.Exec(ctx, fmt.Sprintf(createTableStatement, r.config.Table)); err != nil {
			_ = c.Close()
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	r.conn = c

	r.stop = make(chan struct{})
	if r.config.FlushInterval > 0 {
		r.wg.Add(1)
		go r.flushLoop()
	}

	slog.Info("clickhouse reporter started",
		"addr", r.config.Addr,
		"table", r.config.Table,
		"batch_size", r.config.BatchSize,
		"flush_interval", r.config.FlushInterval,
	)
	return nil
}

func (r *ClickHouseReporter) flushLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.Flush(context.Background()); err != nil {
				slog.Error("clickhouse periodic flush failed", "error", err)
			}
		}
	}
}

// Stop flushes what is buffered and closes the connection.
func (r *ClickHouseReporter) Stop(ctx context.Context) error {
	if r.conn == nil {
		return nil
	}
	close(r.stop)
	r.wg.Wait()

	err := r.Flush(ctx)
	if cerr := r.conn.Close(); err == nil {
		err = cerr
	}
	r.conn = nil

	slog.Info("clickhouse reporter stopped",
		"total_inserted", r.insertedCount.Load(),
		"total_errors", r.errorCount.Load(),
	)
	return err
}

// Report buffers one event and inserts the buffer once it reaches
// batch_size.
func (r *ClickHouseReporter) Report(ctx context.Context, ev *core.FlowEvent) error {
	if ev == nil {
		return fmt.Errorf("nil event")
	}
	return r.ReportBatch(ctx, []*core.FlowEvent{ev})
}

// ReportBatch buffers evs under one lock and inserts the buffer once it
// reaches batch_size.
func (r *ClickHouseReporter) ReportBatch(ctx context.Context, evs []*core.FlowEvent) error {
	if r.conn == nil {
		return fmt.Errorf("clickhouse reporter not started")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		r.pending = append(r.pending, copyEvent(ev))
	}
	if len(r.pending) < r.config.BatchSize {
		return nil
	}
	return r.flushLocked(ctx)
}

// copyEvent detaches ev from the caller, which reuses it.
func copyEvent(ev *core.FlowEvent) *core.FlowEvent {
	cp := *ev
	if ev.Handshake != nil {
		hs := *ev.Handshake
		cp.Handshake = &hs
	}
	return &cp
}

// Flush inserts everything buffered.
func (r *ClickHouseReporter) Flush(ctx context.Context) error {
	if r.conn == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

func (r *ClickHouseReporter) flushLocked(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	err := r.insert(ctx, r.pending)
	// A failed batch is dropped rather than retried forever.
	clear(r.pending)
	r.pending = r.pending[:0]
	return err
}

func (r *ClickHouseReporter) insert(ctx context.Context, evs []*core.FlowEvent) error {
	if len(evs) == 0 {
		return nil
	}
	metrics.ReporterBatchSize.WithLabelValues(r.name).Observe(float64(len(evs)))

	b, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+r.config.Table)
	if err != nil {
		r.errorCount.Add(uint64(len(evs)))
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	now := r.now()
	for _, ev := range evs {
		if err := b.Append(row(now, ev)...); err != nil {
			_ = b.Abort()
			r.errorCount.Add(uint64(len(evs)))
			return fmt.Errorf("failed to append event to batch: %w", err)
		}
	}

	if err := b.Send(); err != nil {
		r.errorCount.Add(uint64(len(evs)))
		return fmt.Errorf("failed to send batch: %w", err)
	}
	r.insertedCount.Add(uint64(len(evs)))
	return nil
}

// row lays out ev in flow_records column order.
func row(now time.Time, ev *core.FlowEvent) []any {
	rec := &ev.Record
	var (
		rtt                  *uint64
		clientMSS, serverMSS uint16
	)
	if hs := ev.Handshake; hs != nil {
		us := uint64(hs.RTT / time.Microsecond)
		rtt = &us
		clientMSS, serverMSS = hs.ClientMSS, hs.ServerMSS
	}
	return []any{
		now,
		ev.NodeID,
		net.IP(rec.SrcIP[:]),
		net.IP(rec.DstIP[:]),
		rec.SrcPort,
		rec.DstPort,
		rec.Protocol,
		rec.TTL,
		rec.SYN,
		rec.ACK,
		rec.Timestamp,
		rec.MSS,
		rtt,
		clientMSS,
		serverMSS,
	}
}
