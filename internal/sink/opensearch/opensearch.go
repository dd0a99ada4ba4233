package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/loykin/trackr/internal/event"
)

// Sink indexes call records into OpenSearch over plain HTTP. A batch maps to
// one _bulk request: an action line carrying the record's event_id as the
// document id, then the record itself, so replaying a failed batch overwrites
// documents instead of duplicating them.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
	skipped atomic.Uint64
}

// New builds a sink posting to baseURL (scheme and host) and the given index.
func New(baseURL, index string) *Sink {
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

type bulkAction struct {
	Index bulkMeta `json:"index"`
}

type bulkMeta struct {
	ID string `json:"_id,omitempty"`
}

func (s *Sink) Append(ctx context.Context, batch []event.Record) error {
	var body bytes.Buffer
	for _, rec := range batch {
		doc, err := json.Marshal(rec)
		if err != nil {
			s.skipped.Add(1)
			slog.Warn("skipping unencodable record", "function", rec.FuncName, "seq", rec.Seq, "error", err)
			continue
		}
		action, _ := json.Marshal(bulkAction{Index: bulkMeta{ID: rec.EventID}})
		body.Write(action)
		body.WriteByte('\n')
		body.Write(doc)
		body.WriteByte('\n')
	}
	if body.Len() == 0 {
		return nil
	}

	u := fmt.Sprintf("%s/%s/_bulk", s.baseURL, s.index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body.Bytes()))
	if err != nil {
		return fmt.Errorf("build bulk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}

	// _bulk answers 200 even when individual operations failed.
	var ack struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&ack); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if ack.Errors {
		return fmt.Errorf("opensearch bulk rejected operations on index %s", s.index)
	}
	return nil
}

func (s *Sink) Name() string { return "opensearch" }

func (s *Sink) Skipped() uint64 { return s.skipped.Load() }

func (s *Sink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
