package client

import "time"

// IngestResult reports how many records the collector accepted from a batch
type IngestResult struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// Health represents the collector liveness response
type Health struct {
	OK    bool   `json:"ok"`
	State string `json:"state"`
}

// Stats mirrors the collector's pipeline counters
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

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
