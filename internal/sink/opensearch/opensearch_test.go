package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/trackr/internal/event"
)

func makeBatch(n int) []event.Record {
	batch := make([]event.Record, 0, n)
	for i := 0; i < n; i++ {
		rec := event.New("search.Query", event.FormatArgs("term", i), event.Success(i), time.Now(), time.Millisecond)
		rec.Seq = uint64(i + 1)
		batch = append(batch, rec)
	}
	return batch
}

func TestAppendPostsBulk(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotType string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"took":1,"errors":false,"items":[]}`))
	}))
	defer srv.Close()

	s := New(srv.URL+"/", "calls")
	defer func() { _ = s.Close() }()

	batch := makeBatch(2)
	if err := s.Append(context.Background(), batch); err != nil {
		t.Fatalf("append: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/calls/_bulk" {
		t.Fatalf("posted to %q, want /calls/_bulk", gotPath)
	}
	if gotType != "application/x-ndjson" {
		t.Fatalf("content type = %q", gotType)
	}

	lines := bytes.Split(bytes.TrimSuffix(gotBody, []byte("\n")), []byte("\n"))
	if len(lines) != 4 {
		t.Fatalf("bulk body has %d lines, want 4:\n%s", len(lines), gotBody)
	}
	for i, rec := range batch {
		var action struct {
			Index struct {
				ID string `json:"_id"`
			} `json:"index"`
		}
		if err := json.Unmarshal(lines[2*i], &action); err != nil {
			t.Fatalf("parse action line %d: %v", 2*i, err)
		}
		if action.Index.ID != rec.EventID {
			t.Fatalf("action %d id = %q, want %q", i, action.Index.ID, rec.EventID)
		}
		var doc event.Record
		if err := json.Unmarshal(lines[2*i+1], &doc); err != nil {
			t.Fatalf("parse document line %d: %v", 2*i+1, err)
		}
		if doc.FuncName != rec.FuncName || doc.Seq != rec.Seq {
			t.Fatalf("document %d = %+v, want %+v", i, doc, rec)
		}
	}
}

func TestAppendReportsBulkItemErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"took":3,"errors":true,"items":[{"index":{"status":429}}]}`))
	}))
	defer srv.Close()

	s := New(srv.URL, "calls")
	err := s.Append(context.Background(), makeBatch(1))
	if err == nil {
		t.Fatal("expected error when bulk reports item failures")
	}
	if !strings.Contains(err.Error(), "bulk") {
		t.Fatalf("error = %v", err)
	}
}

func TestAppendStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	s := New(srv.URL, "calls")
	err := s.Append(context.Background(), makeBatch(1))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "opensearch sink status 400") {
		t.Fatalf("error = %v", err)
	}
}

func TestEmptyBodySkipsRequest(t *testing.T) {
	var hit bool
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		hit = true
	}))
	defer srv.Close()

	s := New(srv.URL, "calls")
	if err := s.Append(context.Background(), nil); err != nil {
		t.Fatalf("append empty batch: %v", err)
	}

	bad := event.New("search.Query", nil, event.Success("ok"), time.Now(), time.Millisecond)
	bad.Meta = map[string]any{"ch": make(chan int)}
	if err := s.Append(context.Background(), []event.Record{bad}); err != nil {
		t.Fatalf("append unencodable-only batch: %v", err)
	}
	if s.Skipped() != 1 {
		t.Fatalf("skipped = %d, want 1", s.Skipped())
	}
	if hit {
		t.Fatal("request sent for a batch with nothing to index")
	}
}
