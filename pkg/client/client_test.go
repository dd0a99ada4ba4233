package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loykin/trackr/internal/event"
)

func collectorStub(t *testing.T, wantKey string) (*httptest.Server, *[]event.Record) {
	t.Helper()
	var got []event.Record
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/logs", func(w http.ResponseWriter, r *http.Request) {
		if wantKey != "" && r.Header.Get("api_key") != wantKey {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "invalid or missing api key"})
			return
		}
		var batch []event.Record
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		got = append(got, batch...)
		_ = json.NewEncoder(w).Encode(IngestResult{Accepted: len(batch)})
	})
	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Stats{State: "running", Enqueued: 12, Sink: "jsonl:calls.jsonl"})
	})
	mux.HandleFunc("GET /api/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Health{OK: true, State: "running"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestIngestSendsBatch(t *testing.T) {
	srv, got := collectorStub(t, "")
	c := New(Config{BaseURL: srv.URL + "/api"})

	batch := []event.Record{
		event.New("fetch.page", event.FormatArgs("https://example.com"), event.Success(200), time.Now(), 3*time.Millisecond),
		event.New("fetch.page", event.FormatArgs("https://example.org"), event.Failure(context.DeadlineExceeded), time.Now(), time.Second),
	}
	res, err := c.Ingest(context.Background(), batch)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Accepted != 2 || res.Rejected != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(*got) != 2 {
		t.Fatalf("server received %d records", len(*got))
	}
	if (*got)[1].Result.OK() {
		t.Fatalf("second record should be a failure")
	}
}

func TestIngestEmptyBatchSkipsRequest(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 100 * time.Millisecond})
	if _, err := c.Ingest(context.Background(), nil); err != nil {
		t.Fatalf("empty batch should not hit the network: %v", err)
	}
}

func TestIngestSendsAPIKey(t *testing.T) {
	srv, _ := collectorStub(t, "k-123")

	unauth := New(Config{BaseURL: srv.URL + "/api"})
	if _, err := unauth.Ingest(context.Background(), sample(1)); err == nil {
		t.Fatalf("expected auth error")
	} else if !strings.Contains(err.Error(), "api key") {
		t.Fatalf("error = %v", err)
	}

	auth := New(Config{BaseURL: srv.URL + "/api", APIKey: "k-123"})
	res, err := auth.Ingest(context.Background(), sample(1))
	if err != nil || res.Accepted != 1 {
		t.Fatalf("Ingest = (%+v, %v)", res, err)
	}
}

func TestStats(t *testing.T) {
	srv, _ := collectorStub(t, "")
	c := New(Config{BaseURL: srv.URL + "/api"})

	st, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.State != "running" || st.Enqueued != 12 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestIsReachable(t *testing.T) {
	srv, _ := collectorStub(t, "")
	c := New(Config{BaseURL: srv.URL + "/api"})
	if !c.IsReachable(context.Background()) {
		t.Fatalf("expected reachable")
	}

	down := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 100 * time.Millisecond})
	if down.IsReachable(context.Background()) {
		t.Fatalf("expected unreachable")
	}
}

func sample(n int) []event.Record {
	out := make([]event.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, event.New("sample.fn", event.FormatArgs(i), event.Success(i), time.Now(), time.Millisecond))
	}
	return out
}
