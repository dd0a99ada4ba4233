// Package sink provides durable destinations for batches of call records.
// Sinks are written to by a single flusher goroutine, so implementations do
// not need locking for ordering; each Append is all-or-nothing within the
// atomicity the medium provides.
package sink

import (
	"context"

	"github.com/loykin/trackr/internal/event"
)

// Sink appends batches of records to a storage medium.
type Sink interface {
	// Append writes the whole batch. A returned error means nothing of the
	// batch should be considered durable and the caller may retry it.
	// Records that individually fail to encode are skipped with a warning,
	// never failing the rest of the batch.
	Append(ctx context.Context, batch []event.Record) error
	// Name identifies the sink in stats and logs.
	Name() string
	Close() error
}

// Skipper is implemented by sinks that can drop individual records during
// encoding. The count feeds the stats snapshot.
type Skipper interface {
	Skipped() uint64
}
