// Package queue holds records between producers and the flusher. A single
// mutex covers enqueue, drain and sequence assignment so arrival order is a
// total order across producers.
package queue

import (
	"errors"
	"sync"

	equeue "github.com/eapache/queue"

	"github.com/loykin/trackr/internal/event"
)

// ErrClosed is returned by Enqueue once the pipeline stopped accepting work.
// Callers must treat it as "event dropped", never as a failure of their own.
var ErrClosed = errors.New("event queue closed")

// Queue is a FIFO buffer for event records. Depth is unbounded by policy;
// crossing signalAt pokes the wake channel so the flusher can drain early
// instead of rejecting producers.
type Queue struct {
	mu       sync.Mutex
	buf      *equeue.Queue
	nextSeq  uint64
	accepted uint64
	closed   bool

	signalAt int
	wake     chan struct{}
}

// New returns an open queue. signalAt <= 0 disables the early wake signal.
func New(signalAt int) *Queue {
	return &Queue{
		buf:      equeue.New(),
		signalAt: signalAt,
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue appends rec and assigns its sequence number. It never blocks on
// I/O; the critical section is O(1).
func (q *Queue) Enqueue(rec event.Record) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.nextSeq++
	rec.Seq = q.nextSeq
	q.buf.Add(rec)
	q.accepted++
	depth := q.buf.Length()
	q.mu.Unlock()

	if q.signalAt > 0 && depth >= q.signalAt {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Drain removes and returns up to max records in sequence order. It is
// non-blocking and atomic: concurrent callers never observe a half-drained
// state. Draining keeps working after Close so shutdown can empty the queue.
func (q *Queue) Drain(max int) []event.Record {
	if max <= 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.buf.Length()
	if n > max {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]event.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, q.buf.Remove().(event.Record))
	}
	return out
}

// Close rejects further enqueues. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Len reports the current depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Length()
}

// Accepted reports how many records were ever enqueued.
func (q *Queue) Accepted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.accepted
}

// Wake exposes the high-water signal channel. The channel has capacity one;
// signals coalesce under burst load.
func (q *Queue) Wake() <-chan struct{} { return q.wake }
