package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/loykin/trackr/internal/event"
)

// DefaultIngestPath is where a collector accepts record batches.
const DefaultIngestPath = "/api/logs"

// APIKeyHeader carries the shared key on ingest requests.
const APIKeyHeader = "api_key"

// HTTP ships batches to a remote collector as a JSON array per request.
// The URL may carry an api_key query parameter; it is moved into the
// request header and never logged.
type HTTP struct {
	client   *http.Client
	endpoint string
	host     string
	apiKey   string
	skipped  atomic.Uint64
}

// NewHTTP builds a remote sink from an http(s) URL. An empty path defaults
// to the collector ingest path.
func NewHTTP(rawURL string) (*HTTP, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse collector url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("collector url must be http or https, got %q", u.Scheme)
	}
	q := u.Query()
	apiKey := q.Get(APIKeyHeader)
	q.Del(APIKeyHeader)
	u.RawQuery = q.Encode()
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultIngestPath
	}
	return &HTTP{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: u.String(),
		host:     u.Host,
		apiKey:   apiKey,
	}, nil
}

func (s *HTTP) Append(ctx context.Context, batch []event.Record) error {
	rows := make([]json.RawMessage, 0, len(batch))
	for _, rec := range batch {
		b, err := json.Marshal(rec)
		if err != nil {
			s.skipped.Add(1)
			slog.Warn("skipping unencodable record", "function", rec.FuncName, "seq", rec.Seq, "error", err)
			continue
		}
		rows = append(rows, b)
	}
	if len(rows) == 0 {
		return nil
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set(APIKeyHeader, s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post batch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("collector status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (s *HTTP) Name() string { return "http:" + s.host }

func (s *HTTP) Skipped() uint64 { return s.skipped.Load() }

func (s *HTTP) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
