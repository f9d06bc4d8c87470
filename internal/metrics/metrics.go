// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesTotal counts frames seen by the emitter by decode outcome
	// (decoded, truncated, inapplicable) or filter (filtered).
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flat_frames_total",
			Help: "Total number of frames inspected by the emitter",
		},
		[]string{"outcome"},
	)

	// RecordsTotal counts ring reservations by how they finished.
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flat_records_total",
			Help: "Total number of ring reservations by result",
		},
		[]string{"result"}, // committed | discarded
	)

	// RingDropsTotal counts observations lost to a full ring.
	RingDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flat_ring_drops_total",
			Help: "Total number of records dropped because the ring was full",
		},
	)

	// RingDepth tracks reserved but unread slots.
	RingDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flat_ring_depth",
			Help: "Number of ring slots reserved but not yet consumed",
		},
	)

	// OptionScansTotal counts TCP option scans by stop reason.
	OptionScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flat_option_scans_total",
			Help: "Total number of TCP option scans by stop reason",
		},
		[]string{"stop"},
	)

	// CaptureDropsTotal counts frames lost before the emitter.
	CaptureDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flat_capture_drops_total",
			Help: "Total number of frames dropped during capture",
		},
		[]string{"source", "stage"},
	)

	// HandshakeRTTSeconds measures SYN to SYN-ACK latency.
	HandshakeRTTSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flat_handshake_rtt_seconds",
			Help:    "Latency between a SYN and its SYN-ACK in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 20), // 10µs to ~5s
		},
	)

	// FlowTableSize tracks SYNs awaiting their SYN-ACK.
	FlowTableSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flat_flow_table_size",
			Help: "Current number of pending handshakes in the flow table",
		},
	)

	// ReporterErrorsTotal counts reporter errors by name and error type
	ReporterErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flat_reporter_errors_total",
			Help: "Total number of reporter errors",
		},
		[]string{"reporter", "error_type"},
	)

	// ReporterBatchSize tracks batch sizes written by batching reporters.
	ReporterBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flat_reporter_batch_size",
			Help:    "Number of records sent per reporter batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1, 2, 4, ..., 2048
		},
		[]string{"reporter"},
	)
)
