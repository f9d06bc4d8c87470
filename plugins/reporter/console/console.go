// Package console implements the console reporter.
// Writes one line per flow event, human-readable or JSON.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"firestige.xyz/flat/internal/core"
	"firestige.xyz/flat/internal/record"
	"firestige.xyz/flat/pkg/plugin"
)

// ConsoleReporter writes flow events to stdout or stderr.
type ConsoleReporter struct {
	name   string
	format string // "json" or "text"

	mu  sync.Mutex
	out *bufio.Writer

	reportedCount atomic.Uint64
}

// Config represents console reporter configuration.
type Config struct {
	Format string `mapstructure:"format"` // "json" or "text", default "text"
	Output string `mapstructure:"output"` // "stdout" or "stderr", default "stdout"
}

// NewConsoleReporter creates a new console reporter writing to stdout.
func NewConsoleReporter() plugin.Reporter {
	return NewWriterReporter(os.Stdout)
}

// NewWriterReporter creates a console reporter writing to w.
func NewWriterReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{
		name:   "console",
		format: "text",
		out:    bufio.NewWriter(w),
	}
}

// Name returns the plugin name.
func (r *ConsoleReporter) Name() string {
	return r.name
}

// Init initializes the reporter with configuration.
func (r *ConsoleReporter) Init(config map[string]any) error {
	cfg := Config{Format: r.format}
	if err := plugin.DecodeConfig(config, &cfg); err != nil {
		return err
	}

	if cfg.Format != "json" && cfg.Format != "text" {
		return fmt.Errorf("invalid format %q, must be json or text", cfg.Format)
	}
	r.format = cfg.Format

	switch cfg.Output {
	case "", "stdout":
	case "stderr":
		r.out = bufio.NewWriter(os.Stderr)
	default:
		return fmt.Errorf("invalid output %q, must be stdout or stderr", cfg.Output)
	}
	return nil
}

// Start starts the reporter.
func (r *ConsoleReporter) Start(ctx context.Context) error {
	slog.Info("console reporter started", "format", r.format)
	return nil
}

// Stop flushes buffered lines.
func (r *ConsoleReporter) Stop(ctx context.Context) error {
	err := r.Flush(ctx)
	slog.Info("console reporter stopped", "total_reported", r.reportedCount.Load())
	return err
}

// Report writes one event.
func (r *ConsoleReporter) Report(ctx context.Context, ev *core.FlowEvent) error {
	if ev == nil {
		return fmt.Errorf("nil event")
	}

	var line []byte
	if r.format == "json" {
		b, err := record.MarshalJSON(ev)
		if err != nil {
			return fmt.Errorf("json marshal failed: %w", err)
		}
		line = b
	} else {
		line = []byte(FormatText(ev))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.out.Write(line); err != nil {
		return err
	}
	if err := r.out.WriteByte('\n'); err != nil {
		return err
	}
	r.reportedCount.Add(1)
	return nil
}

// Flush writes buffered lines to the underlying writer.
func (r *ConsoleReporter) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out.Flush()
}

// FormatText renders ev as a single human-readable line, e.g.
//
//	tcp 10.0.0.1:40000 > 10.0.0.2:443 ttl=64 flags=S mss=1460
func FormatText(ev *core.FlowEvent) string {
	rec := &ev.Record
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s > %s ttl=%d", rec.ProtocolName(), rec.Src(), rec.Dst(), rec.TTL)

	if rec.Protocol == core.ProtocolTCP {
		flags := ""
		if rec.SYN {
			flags += "S"
		}
		if rec.ACK {
			flags += "."
		}
		fmt.Fprintf(&b, " flags=%s", flags)
		if rec.MSS != 0 {
			fmt.Fprintf(&b, " mss=%d", rec.MSS)
		}
	}

	if hs := ev.Handshake; hs != nil {
		fmt.Fprintf(&b, " rtt=%s", hs.RTT)
	}
	return b.String()
}
