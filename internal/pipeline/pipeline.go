// Package pipeline owns the event pipeline lifecycle: it wires the queue,
// the flusher and a sink together and walks the one-way state machine
// NotStarted -> Running -> Draining -> Stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/trackr/internal/event"
	"github.com/loykin/trackr/internal/flusher"
	"github.com/loykin/trackr/internal/metrics"
	"github.com/loykin/trackr/internal/queue"
	"github.com/loykin/trackr/internal/sink"
)

// State is the pipeline lifecycle state. Transitions are one-directional and
// Stopped is terminal; a stopped pipeline cannot be restarted.
type State int32

const (
	StateNotStarted State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrStopped is returned by Start once the pipeline has begun shutting
	// down; build a new instance instead.
	ErrStopped = errors.New("pipeline stopped")
	// ErrShutdownTimeout reports that shutdown returned before the final
	// drain finished. The drain keeps going in the background.
	ErrShutdownTimeout = errors.New("pipeline shutdown timed out before drain completed")
)

// Options configure a pipeline. The zero value is not usable; at minimum a
// sink, a positive batch size and a positive interval are required unless
// Disabled is set.
type Options struct {
	// MaxBatchSize is the largest batch drained per flush cycle.
	MaxBatchSize int
	// FlushInterval is the time trigger for partial batches.
	FlushInterval time.Duration
	// HighWater is the queue depth that triggers an early flush signal.
	// Defaults to MaxBatchSize.
	HighWater int
	// Sink receives every flushed batch. The pipeline takes ownership and
	// closes it after the final drain.
	Sink sink.Sink
	// Disabled turns the pipeline into a no-op: Start succeeds, Enqueue
	// reports success and nothing is ever written.
	Disabled bool
	Logger   *slog.Logger
}

func (o *Options) validate() error {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Disabled {
		return nil
	}
	if o.MaxBatchSize <= 0 {
		return errors.New("max batch size must be positive")
	}
	if o.FlushInterval <= 0 {
		return errors.New("flush interval must be positive")
	}
	if o.Sink == nil {
		return errors.New("sink is required")
	}
	if o.HighWater <= 0 {
		o.HighWater = o.MaxBatchSize
	}
	return nil
}

// Stats is a point-in-time snapshot of pipeline counters. Safe to request
// from any state.
type Stats struct {
	State              string    `json:"state"`
	Enqueued           uint64    `json:"enqueued_total"`
	Flushed            uint64    `json:"flushed_total"`
	Dropped            uint64    `json:"dropped_total"`
	Rejected           uint64    `json:"rejected_total"`
	SerializationSkips uint64    `json:"serialization_skips_total"`
	QueueDepth         int       `json:"queue_depth"`
	FlushCycles        uint64    `json:"flush_cycles"`
	LastFlushAt        time.Time `json:"last_flush_at,omitzero"`
	Sink               string    `json:"sink"`
}

// Pipeline coordinates the queue, the flusher and the sink.
type Pipeline struct {
	opts Options

	// mu serializes Start and Shutdown; the hot Enqueue path never takes it.
	mu     sync.Mutex
	state  atomic.Int32
	q      *queue.Queue
	fl     *flusher.Flusher
	cancel context.CancelFunc

	rejected atomic.Uint64
}

// New validates opts and returns a pipeline in NotStarted.
func New(opts Options) (*Pipeline, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("pipeline options: %w", err)
	}
	return &Pipeline{opts: opts}, nil
}

// State reports the current lifecycle state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Start moves NotStarted to Running: it creates the queue and launches the
// flusher goroutine. Calling Start while Running is a no-op; after shutdown
// has begun it returns ErrStopped.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.State() {
	case StateRunning:
		return nil
	case StateDraining, StateStopped:
		return ErrStopped
	}
	if !p.opts.Disabled {
		p.q = queue.New(p.opts.HighWater)
		p.fl = flusher.New(p.q, p.opts.Sink, p.opts.MaxBatchSize, p.opts.FlushInterval, p.opts.Logger)
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		go p.fl.Run(ctx)
	}
	p.state.Store(int32(StateRunning))
	p.opts.Logger.Debug("pipeline started",
		"sink", p.sinkName(), "batch_size", p.opts.MaxBatchSize, "interval", p.opts.FlushInterval)
	return nil
}

// Enqueue hands one record to the queue. It only delegates while Running;
// any other state yields queue.ErrClosed. Never blocks on I/O. In disabled
// mode it reports success and does nothing, so instrumented code behaves
// identically with observability off.
func (p *Pipeline) Enqueue(rec event.Record) error {
	if p.opts.Disabled {
		return nil
	}
	if p.State() != StateRunning {
		p.rejected.Add(1)
		metrics.IncRejected()
		return queue.ErrClosed
	}
	if err := p.q.Enqueue(rec); err != nil {
		p.rejected.Add(1)
		metrics.IncRejected()
		return err
	}
	metrics.IncEnqueued()
	return nil
}

// Shutdown drains and stops the pipeline: Running -> Draining, the queue
// stops accepting work, the flusher performs its final drain-and-flush, and
// the state becomes Stopped. If the drain outlives timeout the pipeline
// still stops, the drain finishes in the background, and ErrShutdownTimeout
// is returned. Shutdown from NotStarted goes straight to Stopped; repeated
// calls return nil.
func (p *Pipeline) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.State() {
	case StateStopped, StateDraining:
		return nil
	case StateNotStarted:
		p.state.Store(int32(StateStopped))
		return nil
	}

	p.state.Store(int32(StateDraining))
	if p.opts.Disabled {
		p.state.Store(int32(StateStopped))
		return nil
	}

	p.q.Close()
	p.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.fl.Done():
		p.state.Store(int32(StateStopped))
		if err := p.opts.Sink.Close(); err != nil {
			p.opts.Logger.Warn("closing sink", "sink", p.sinkName(), "error", err)
		}
		p.opts.Logger.Debug("pipeline stopped",
			"flushed", p.fl.Flushed(), "dropped", p.fl.Dropped())
		return nil
	case <-timer.C:
		p.state.Store(int32(StateStopped))
		// the flusher still owns the sink; close it once the drain ends
		go func() {
			<-p.fl.Done()
			_ = p.opts.Sink.Close()
		}()
		p.opts.Logger.Error("shutdown timed out before drain completed", "timeout", timeout)
		return ErrShutdownTimeout
	}
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	st := Stats{
		State:    p.State().String(),
		Rejected: p.rejected.Load(),
		Sink:     p.sinkName(),
	}
	if p.opts.Disabled || p.State() == StateNotStarted || p.q == nil {
		return st
	}
	st.Enqueued = p.q.Accepted()
	st.QueueDepth = p.q.Len()
	st.Flushed = p.fl.Flushed()
	st.Dropped = p.fl.Dropped()
	st.FlushCycles = p.fl.Cycles()
	st.LastFlushAt = p.fl.LastFlushAt()
	if sk, ok := p.opts.Sink.(sink.Skipper); ok {
		st.SerializationSkips = sk.Skipped()
	}
	return st
}

func (p *Pipeline) sinkName() string {
	if p.opts.Disabled || p.opts.Sink == nil {
		return "disabled"
	}
	return p.opts.Sink.Name()
}
