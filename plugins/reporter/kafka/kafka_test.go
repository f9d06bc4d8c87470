package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"net/netip"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/flat/internal/core"
	"firestige.xyz/flat/internal/record"
	"firestige.xyz/flat/pkg/plugin"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func minimalConfig() map[string]any {
	return map[string]any{
		"brokers": []any{"localhost:9092"},
		"topic":   "flat-records",
	}
}

func synEvent() *core.FlowEvent {
	return &core.FlowEvent{
		NodeID: "tap-1",
		Record: core.FlowRecord{
			SrcIP:     netip.MustParseAddr("::ffff:192.168.1.100").As16(),
			DstIP:     netip.MustParseAddr("::ffff:192.168.1.200").As16(),
			SrcPort:   40000,
			DstPort:   443,
			Protocol:  core.ProtocolTCP,
			TTL:       64,
			SYN:       true,
			Timestamp: 42,
			MSS:       1460,
		},
	}
}

func newTestReporter(t *testing.T, config map[string]any) (*KafkaReporter, *fakeWriter) {
	t.Helper()
	r := NewKafkaReporter().(*KafkaReporter)
	if err := r.Init(config); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	w := &fakeWriter{}
	r.writer = w
	return r, w
}

func TestKafkaReporter_Init(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
	}{
		{name: "nil config", config: nil, wantErr: true},
		{name: "missing brokers", config: map[string]any{"topic": "test"}, wantErr: true},
		{name: "missing topic", config: map[string]any{"brokers": []any{"localhost:9092"}}, wantErr: true},
		{name: "valid minimal config", config: minimalConfig()},
		{
			name: "valid full config",
			config: map[string]any{
				"brokers":       []any{"broker1:9092", "broker2:9092"},
				"topic":         "test-topic",
				"format":        "proto",
				"batch_size":    200,
				"batch_timeout": "200ms",
				"compression":   "zstd",
				"max_attempts":  5,
				"async":         true,
			},
		},
		{
			name: "invalid compression",
			config: map[string]any{
				"brokers":     []any{"localhost:9092"},
				"topic":       "test-topic",
				"compression": "invalid",
			},
			wantErr: true,
		},
		{
			name: "invalid batch_timeout",
			config: map[string]any{
				"brokers":       []any{"localhost:9092"},
				"topic":         "test-topic",
				"batch_timeout": "invalid",
			},
			wantErr: true,
		},
		{
			name: "invalid format",
			config: map[string]any{
				"brokers": []any{"localhost:9092"},
				"topic":   "test-topic",
				"format":  "avro",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewKafkaReporter().(*KafkaReporter)
			err := r.Init(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("Init() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKafkaReporter_ConfigDefaults(t *testing.T) {
	r := NewKafkaReporter().(*KafkaReporter)
	if err := r.Init(minimalConfig()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if r.config.BatchSize != defaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", r.config.BatchSize, defaultBatchSize)
	}
	if r.config.BatchTimeout != defaultBatchTimeout {
		t.Errorf("BatchTimeout = %v, want %v", r.config.BatchTimeout, defaultBatchTimeout)
	}
	if r.config.Compression != defaultCompression {
		t.Errorf("Compression = %s, want %s", r.config.Compression, defaultCompression)
	}
	if r.config.MaxAttempts != defaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", r.config.MaxAttempts, defaultMaxAttempts)
	}
	if r.format != record.FormatJSON {
		t.Errorf("format = %s, want json", r.format)
	}

	w, ok := r.writer.(*kafka.Writer)
	if !ok {
		t.Fatalf("writer = %T, want *kafka.Writer", r.writer)
	}
	if w.Topic != "flat-records" || w.Compression != compress.Snappy {
		t.Errorf("unexpected writer: topic=%s compression=%v", w.Topic, w.Compression)
	}
}

func TestKafkaReporter_ReportJSON(t *testing.T) {
	r, w := newTestReporter(t, minimalConfig())

	if err := r.Report(context.Background(), synEvent()); err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(w.msgs))
	}

	msg := w.msgs[0]
	if string(msg.Key) != "192.168.1.100:40000-192.168.1.200:443" {
		t.Errorf("Key = %s", msg.Key)
	}

	var out map[string]any
	if err := json.Unmarshal(msg.Value, &out); err != nil {
		t.Fatalf("json.Unmarshal failed: %v", err)
	}
	if out["src_ip"] != "192.168.1.100" || out["mss"] != float64(1460) {
		t.Errorf("unexpected value: %v", out)
	}

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["content-type"] != "application/json" || headers["node-id"] != "tap-1" {
		t.Errorf("unexpected headers: %v", headers)
	}
	if r.reportedCount.Load() != 1 {
		t.Errorf("reportedCount = %d, want 1", r.reportedCount.Load())
	}
}

func TestKafkaReporter_ReportBinary(t *testing.T) {
	cfg := minimalConfig()
	cfg["format"] = "binary"
	r, w := newTestReporter(t, cfg)

	ev := synEvent()
	if err := r.Report(context.Background(), ev); err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	var got core.FlowRecord
	if err := record.ReadBinary(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("ReadBinary failed: %v", err)
	}
	if got != ev.Record {
		t.Errorf("record = %+v, want %+v", got, ev.Record)
	}
}

func TestKafkaReporter_ReportError(t *testing.T) {
	r, w := newTestReporter(t, minimalConfig())
	w.err = errors.New("leader not available")

	if err := r.Report(context.Background(), synEvent()); err == nil {
		t.Fatal("expected error")
	}
	if r.errorCount.Load() != 1 {
		t.Errorf("errorCount = %d, want 1", r.errorCount.Load())
	}
}

func TestKafkaReporter_ReportBatch(t *testing.T) {
	r, w := newTestReporter(t, minimalConfig())
	var br plugin.BatchReporter = r

	if err := br.ReportBatch(context.Background(), []*core.FlowEvent{synEvent(), nil, synEvent()}); err != nil {
		t.Fatalf("ReportBatch failed: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(w.msgs))
	}
	if r.reportedCount.Load() != 2 {
		t.Errorf("reportedCount = %d, want 2", r.reportedCount.Load())
	}

	w.err = errors.New("leader not available")
	if err := br.ReportBatch(context.Background(), []*core.FlowEvent{synEvent(), synEvent()}); err == nil {
		t.Fatal("expected error")
	}
	if r.errorCount.Load() != 2 {
		t.Errorf("errorCount = %d, want 2", r.errorCount.Load())
	}
}

func TestKafkaReporter_ReportNilEvent(t *testing.T) {
	r, _ := newTestReporter(t, minimalConfig())
	if err := r.Report(context.Background(), nil); err == nil {
		t.Error("expected error for nil event")
	}
}

func TestKafkaReporter_Lifecycle(t *testing.T) {
	r, w := newTestReporter(t, minimalConfig())

	if name := r.Name(); name != "kafka" {
		t.Errorf("Name() = %s, want kafka", name)
	}

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if err := r.Flush(ctx); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
	if err := r.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if !w.closed {
		t.Error("writer not closed on Stop")
	}
}

func TestKafkaReporter_AsyncCompletion(t *testing.T) {
	cfg := minimalConfig()
	cfg["async"] = true
	r, _ := newTestReporter(t, cfg)

	r.completion(make([]kafka.Message, 3), errors.New("timeout"))
	r.completion(make([]kafka.Message, 2), nil)
	if r.errorCount.Load() != 3 {
		t.Errorf("errorCount = %d, want 3", r.errorCount.Load())
	}
}
