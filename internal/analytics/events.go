// Package analytics ships search, index and session events to Kafka and
// aggregates them into operator statistics. Without Kafka the aggregator
// consumes events directly.
package analytics

import "time"

type EventType string

const (
	EventSearch       EventType = "search"
	EventIndexDoc     EventType = "index_document"
	EventSessionOpen  EventType = "session_open"
	EventSessionClose EventType = "session_close"
)

// Tracker accepts events without blocking the caller.
type Tracker interface {
	Track(key string, event any)
}

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs float64   `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

type IndexEvent struct {
	Type         EventType `json:"type"`
	SessionID    int64     `json:"session_id"`
	DocumentID   int64     `json:"document_id"`
	DocumentPath string    `json:"document_path"`
	TermCount    int       `json:"term_count"`
	LatencyMs    float64   `json:"latency_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

type SessionEvent struct {
	Type      EventType `json:"type"`
	SessionID int64     `json:"session_id"`
	Address   string    `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
