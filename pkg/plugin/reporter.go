// Package plugin defines plugin interfaces.
package plugin

import (
	"context"

	"firestige.xyz/flat/internal/core"
)

// Reporter sends flow events to external systems.
type Reporter interface {
	Plugin
	Report(ctx context.Context, ev *core.FlowEvent) error
	Flush(ctx context.Context) error
}

// BatchReporter is an optional interface for reporters that write events in
// batches (e.g. ClickHouse inserts). The consumer hands such reporters every
// event it drained in one go through ReportBatch instead of calling Report
// per event. The slice and the events are reused after the call returns.
type BatchReporter interface {
	Reporter
	ReportBatch(ctx context.Context, evs []*core.FlowEvent) error
}
