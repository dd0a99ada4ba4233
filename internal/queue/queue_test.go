package queue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/loykin/trackr/internal/event"
)

func rec(name string) event.Record {
	return event.New(name, nil, event.Success(nil), time.Now(), 0)
}

func TestEnqueueAssignsSequence(t *testing.T) {
	q := New(0)
	for i := 0; i < 5; i++ {
		if err := q.Enqueue(rec("f")); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	got := q.Drain(10)
	if len(got) != 5 {
		t.Fatalf("drained %d records, want 5", len(got))
	}
	for i, r := range got {
		if r.Seq != uint64(i+1) {
			t.Fatalf("record %d has seq %d", i, r.Seq)
		}
	}
	if q.Accepted() != 5 {
		t.Fatalf("accepted = %d", q.Accepted())
	}
}

func TestDrainRespectsMax(t *testing.T) {
	q := New(0)
	for i := 0; i < 7; i++ {
		_ = q.Enqueue(rec("f"))
	}
	first := q.Drain(3)
	if len(first) != 3 {
		t.Fatalf("first drain = %d", len(first))
	}
	second := q.Drain(10)
	if len(second) != 4 {
		t.Fatalf("second drain = %d", len(second))
	}
	if first[2].Seq >= second[0].Seq {
		t.Fatalf("order broken across drains: %d then %d", first[2].Seq, second[0].Seq)
	}
	if q.Drain(10) != nil {
		t.Fatal("drain of empty queue must return nil")
	}
}

func TestCloseRejectsEnqueueButAllowsDrain(t *testing.T) {
	q := New(0)
	_ = q.Enqueue(rec("f"))
	q.Close()
	q.Close() // idempotent
	if err := q.Enqueue(rec("g")); err != ErrClosed {
		t.Fatalf("enqueue after close = %v, want ErrClosed", err)
	}
	if got := q.Drain(10); len(got) != 1 {
		t.Fatalf("drain after close = %d records", len(got))
	}
}

func TestConcurrentProducersLoseNothing(t *testing.T) {
	const producers = 8
	const perProducer = 200

	q := New(0)
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				name := fmt.Sprintf("p%d-%d", p, i)
				if err := q.Enqueue(rec(name)); err != nil {
					t.Errorf("enqueue %s: %v", name, err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	var all []event.Record
	for {
		batch := q.Drain(64)
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
	}
	if len(all) != producers*perProducer {
		t.Fatalf("drained %d records, want %d", len(all), producers*perProducer)
	}

	// sequence numbers are a gapless total order
	seen := make(map[uint64]bool, len(all))
	var prev uint64
	for _, r := range all {
		if r.Seq <= prev {
			t.Fatalf("sequence not increasing: %d after %d", r.Seq, prev)
		}
		prev = r.Seq
		if seen[r.Seq] {
			t.Fatalf("duplicate seq %d", r.Seq)
		}
		seen[r.Seq] = true
	}

	// each producer's own order is preserved
	lastIdx := make(map[int]int, producers)
	for _, r := range all {
		var p, i int
		if _, err := fmt.Sscanf(r.FuncName, "p%d-%d", &p, &i); err != nil {
			t.Fatalf("bad name %q: %v", r.FuncName, err)
		}
		if last, ok := lastIdx[p]; ok && i != last+1 {
			t.Fatalf("producer %d order broken: %d after %d", p, i, last)
		}
		lastIdx[p] = i
	}
}

func TestHighWaterSignal(t *testing.T) {
	q := New(3)
	_ = q.Enqueue(rec("a"))
	_ = q.Enqueue(rec("b"))
	select {
	case <-q.Wake():
		t.Fatal("wake before high water mark")
	default:
	}
	_ = q.Enqueue(rec("c"))
	select {
	case <-q.Wake():
	case <-time.After(time.Second):
		t.Fatal("no wake signal at high water mark")
	}

	// signals coalesce instead of blocking producers
	for i := 0; i < 10; i++ {
		_ = q.Enqueue(rec("d"))
	}
	select {
	case <-q.Wake():
	case <-time.After(time.Second):
		t.Fatal("coalesced wake signal missing")
	}
}
