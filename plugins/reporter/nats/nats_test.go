package nats

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/flat/internal/core"
	"firestige.xyz/flat/internal/record"
)

type fakeConn struct {
	msgs    []*nats.Msg
	err     error
	flushes []time.Duration
	drained bool
}

func (c *fakeConn) PublishMsg(m *nats.Msg) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *fakeConn) FlushTimeout(d time.Duration) error {
	c.flushes = append(c.flushes, d)
	return nil
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func started(t *testing.T, config map[string]any) (*NATSReporter, *fakeConn) {
	t.Helper()
	r := NewNATSReporter().(*NATSReporter)
	require.NoError(t, r.Init(config))

	fc := &fakeConn{}
	r.dial = func(Config) (conn, error) { return fc, nil }
	require.NoError(t, r.Start(context.Background()))
	return r, fc
}

func udpEvent() *core.FlowEvent {
	return &core.FlowEvent{
		NodeID: "tap-1",
		Record: core.FlowRecord{
			SrcIP:    netip.MustParseAddr("::ffff:10.1.1.1").As16(),
			DstIP:    netip.MustParseAddr("::ffff:10.1.1.53").As16(),
			SrcPort:  33000,
			DstPort:  53,
			Protocol: core.ProtocolUDP,
			TTL:      63,
		},
	}
}

func TestNATSReporterInit(t *testing.T) {
	r := NewNATSReporter().(*NATSReporter)
	require.NoError(t, r.Init(nil))
	assert.Equal(t, nats.DefaultURL, r.config.URL)
	assert.Equal(t, "flat.records", r.config.Subject)
	assert.Equal(t, record.FormatProto, r.format)

	assert.Error(t, r.Init(map[string]any{"format": "xml"}))
	assert.Error(t, r.Init(map[string]any{"subject": ""}))
	assert.Error(t, r.Init(map[string]any{"flush_timeout": "soon"}))
}

func TestNATSReporterPublishProto(t *testing.T) {
	r, fc := started(t, nil)

	ev := udpEvent()
	require.NoError(t, r.Report(context.Background(), ev))
	require.Len(t, fc.msgs, 1)

	msg := fc.msgs[0]
	assert.Equal(t, "flat.records", msg.Subject)
	assert.Equal(t, "application/x-protobuf", msg.Header.Get("Content-Type"))
	assert.Equal(t, "tap-1", msg.Header.Get("Flat-Node"))

	var got core.FlowEvent
	require.NoError(t, record.UnmarshalProto(msg.Data, &got))
	assert.Equal(t, ev.Record, got.Record)
	assert.Equal(t, "tap-1", got.NodeID)
}

func TestNATSReporterPerProtocolSubject(t *testing.T) {
	r, fc := started(t, map[string]any{"subject": "taps.edge", "per_protocol": true, "format": "json"})

	require.NoError(t, r.Report(context.Background(), udpEvent()))
	require.Len(t, fc.msgs, 1)
	assert.Equal(t, "taps.edge.udp", fc.msgs[0].Subject)
	assert.Contains(t, string(fc.msgs[0].Data), `"protocol":"udp"`)
}

func TestNATSReporterErrors(t *testing.T) {
	r := NewNATSReporter().(*NATSReporter)
	require.NoError(t, r.Init(nil))
	assert.Error(t, r.Report(context.Background(), udpEvent()), "not started")

	r, fc := started(t, nil)
	assert.Error(t, r.Report(context.Background(), nil))

	fc.err = errors.New("slow consumer")
	assert.Error(t, r.Report(context.Background(), udpEvent()))
	assert.Equal(t, uint64(1), r.errorCount.Load())
}

func TestNATSReporterDialFailure(t *testing.T) {
	r := NewNATSReporter().(*NATSReporter)
	require.NoError(t, r.Init(nil))
	r.dial = func(Config) (conn, error) { return nil, nats.ErrNoServers }
	assert.ErrorIs(t, r.Start(context.Background()), nats.ErrNoServers)
}

func TestNATSReporterFlushAndStop(t *testing.T) {
	r, fc := started(t, map[string]any{"flush_timeout": "5s"})

	require.NoError(t, r.Flush(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Flush(ctx))

	require.Len(t, fc.flushes, 2)
	assert.Equal(t, 5*time.Second, fc.flushes[0])
	assert.LessOrEqual(t, fc.flushes[1], time.Second)

	require.NoError(t, r.Stop(context.Background()))
	assert.True(t, fc.drained)
	assert.NoError(t, r.Flush(context.Background()), "flush after stop is a no-op")
	assert.NoError(t, r.Stop(context.Background()))
}
