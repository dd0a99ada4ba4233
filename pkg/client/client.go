package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loykin/trackr/internal/event"
	"github.com/loykin/trackr/internal/sink"
)

// Client provides HTTP client functionality to communicate with a trackr
// collector daemon
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string        // Collector API base, e.g. http://localhost:9313/api
	APIKey  string        // Sent as the api_key header when set
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:9313/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new trackr collector API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:9313/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the collector daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/healthz", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	if c.apiKey != "" {
		req.Header.Set(sink.APIKeyHeader, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Collector unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	isReachable := resp.StatusCode != http.StatusNotFound
	c.logger.Debug("Collector reachability check", "reachable", isReachable, "status", resp.StatusCode)
	return isReachable
}

// Ingest sends a batch of records to the collector
func (c *Client) Ingest(ctx context.Context, batch []event.Record) (IngestResult, error) {
	var out IngestResult
	if len(batch) == 0 {
		return out, nil
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return out, fmt.Errorf("marshal batch: %w", err)
	}
	if err := c.doJSON(ctx, "POST", c.baseURL+"/logs", data, &out); err != nil {
		return out, err
	}
	c.logger.Debug("Batch ingested", "accepted", out.Accepted, "rejected", out.Rejected)
	return out, nil
}

// Stats fetches pipeline counters from the collector
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	if err := c.doJSON(ctx, "GET", c.baseURL+"/stats", nil, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Health fetches the collector liveness state
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	if err := c.doJSON(ctx, "GET", c.baseURL+"/healthz", nil, &out); err != nil {
		return out, err
	}
	return out, nil
}

// doJSON performs an HTTP request with common error handling and decodes
// the response body into out when provided
func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(sink.APIKeyHeader, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return c.errorFrom(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// errorFrom converts an HTTP error response into a Go error
func (c *Client) errorFrom(resp *http.Response) error {
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		c.logger.Error("API request failed", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	c.logger.Error("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return fmt.Errorf("API error: %s", errorResp.Error)
}
