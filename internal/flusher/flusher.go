// Package flusher turns queued records into durable sink writes. Exactly one
// flusher goroutine runs per pipeline; it is the only component that touches
// the sink.
package flusher

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/loykin/trackr/internal/event"
	"github.com/loykin/trackr/internal/metrics"
	"github.com/loykin/trackr/internal/queue"
	"github.com/loykin/trackr/internal/sink"
)

// Flusher drains the queue into batches on two triggers: the queue's
// high-water wake signal and a periodic tick. A batch that fails to append
// is held and retried on the next cycle, once; a second failure drops it.
type Flusher struct {
	q         *queue.Queue
	sink      sink.Sink
	batchSize int
	interval  time.Duration
	logger    *slog.Logger

	// pending holds a batch whose append failed, waiting for its single
	// retry. Touched only by the Run goroutine.
	pending  []event.Record
	lastSkip uint64

	flushed   atomic.Uint64
	dropped   atomic.Uint64
	cycles    atomic.Uint64
	lastFlush atomic.Int64

	done chan struct{}
}

func New(q *queue.Queue, s sink.Sink, batchSize int, interval time.Duration, logger *slog.Logger) *Flusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flusher{
		q:         q,
		sink:      s,
		batchSize: batchSize,
		interval:  interval,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Run flushes until ctx is canceled, then performs the final drain-and-flush
// and closes Done. The stop signal is only observed between cycles, so an
// in-flight append always completes or fails cleanly.
func (f *Flusher) Run(ctx context.Context) {
	defer close(f.done)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.finalDrain()
			return
		case <-ticker.C:
			f.flushOnce()
		case <-f.q.Wake():
			f.flushOnce()
			// keep draining while full batches are queued so a burst
			// does not wait for the next tick
			for f.pending == nil && f.q.Len() >= f.batchSize {
				f.flushOnce()
			}
		}
		metrics.SetQueueDepth(f.q.Len())
	}
}

// Done is closed after the final drain has finished.
func (f *Flusher) Done() <-chan struct{} { return f.done }

// Flushed reports how many records were durably written.
func (f *Flusher) Flushed() uint64 { return f.flushed.Load() }

// Dropped reports how many records were discarded after a failed retry.
func (f *Flusher) Dropped() uint64 { return f.dropped.Load() }

// Cycles reports how many flush cycles ran, including empty ticks.
func (f *Flusher) Cycles() uint64 { return f.cycles.Load() }

// LastFlushAt is the time of the last successful append, zero before one.
func (f *Flusher) LastFlushAt() time.Time {
	ns := f.lastFlush.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// flushOnce runs one cycle: retry the held batch if there is one, otherwise
// drain a fresh batch. An empty drain writes nothing.
func (f *Flusher) flushOnce() {
	f.cycles.Add(1)

	batch := f.pending
	retrying := batch != nil
	if !retrying {
		batch = f.q.Drain(f.batchSize)
	}
	if len(batch) == 0 {
		return
	}

	err := f.append(batch)
	if err == nil {
		f.pending = nil
		return
	}
	if retrying {
		f.pending = nil
		f.dropped.Add(uint64(len(batch)))
		metrics.AddDropped(f.sink.Name(), len(batch))
		f.logger.Error("dropping batch after failed retry",
			"sink", f.sink.Name(), "records", len(batch), "error", err)
		return
	}
	f.pending = batch
	f.logger.Warn("flush failed, holding batch for one retry",
		"sink", f.sink.Name(), "records", len(batch), "error", err)
}

// finalDrain flushes the held batch plus everything left in the queue. The
// queue is closed by the time this runs, so the work is finite. Each batch
// gets one immediate retry before being dropped.
func (f *Flusher) finalDrain() {
	batch := f.pending
	f.pending = nil
	for {
		if len(batch) == 0 {
			batch = f.q.Drain(f.batchSize)
		}
		if len(batch) == 0 {
			metrics.SetQueueDepth(0)
			return
		}
		if err := f.append(batch); err != nil {
			if err2 := f.append(batch); err2 != nil {
				f.dropped.Add(uint64(len(batch)))
				metrics.AddDropped(f.sink.Name(), len(batch))
				f.logger.Error("dropping batch during final drain",
					"sink", f.sink.Name(), "records", len(batch), "error", err2)
			}
		}
		batch = nil
	}
}

// append writes one batch and updates counters. The sink gets a background
// context: shutdown must never interrupt a write mid-flight.
func (f *Flusher) append(batch []event.Record) error {
	start := time.Now()
	err := f.sink.Append(context.Background(), batch)
	skipped := f.skipDelta()
	metrics.ObserveFlush(f.sink.Name(), time.Since(start).Seconds(), len(batch))
	if err != nil {
		return err
	}
	written := len(batch) - skipped
	if written < 0 {
		written = 0
	}
	f.flushed.Add(uint64(written))
	metrics.AddFlushed(f.sink.Name(), written)
	f.lastFlush.Store(time.Now().UnixNano())
	return nil
}

// skipDelta reports how many records the sink skipped during the last
// attempt. Skip counts are per attempt; a record skipped on a failed append
// and again on its retry counts twice.
func (f *Flusher) skipDelta() int {
	sk, ok := f.sink.(sink.Skipper)
	if !ok {
		return 0
	}
	cur := sk.Skipped()
	delta := cur - f.lastSkip
	f.lastSkip = cur
	metrics.AddSerializationSkips(f.sink.Name(), delta)
	return int(delta)
}
