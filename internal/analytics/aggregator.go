package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/kafka"
)

const (
	maxLatencySamples = 10000

	// DefaultTopQueries is how many ranked queries Stats reports.
	DefaultTopQueries = 10
)

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	TotalDocIndexed   int64        `json:"total_docs_indexed"`
	SessionsOpened    int64        `json:"sessions_opened"`
	SessionsClosed    int64        `json:"sessions_closed"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      float64      `json:"p50_latency_ms"`
	P95LatencyMs      float64      `json:"p95_latency_ms"`
	P99LatencyMs      float64      `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds analytics events into running statistics. It reads them
// from Kafka when built with a consumer, and also accepts them directly
// through Track.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	totalDocIndexed   int64
	sessionsOpened    int64
	sessionsClosed    int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	latencies         []float64
	nextSample        int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time

	consumer *kafka.Consumer
	logger   *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]float64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// AttachConsumer makes Start consume events from c.
func (a *Aggregator) AttachConsumer(c *kafka.Consumer) {
	a.consumer = c
}

// Start consumes from Kafka until ctx is cancelled. Without a consumer it
// simply waits for ctx.
func (a *Aggregator) Start(ctx context.Context) error {
	if a.consumer == nil {
		<-ctx.Done()
		return nil
	}
	a.logger.Info("analytics aggregator consuming")
	return a.consumer.Start(ctx)
}

type envelope struct {
	Type EventType `json:"type"`
}

// HandleMessage decodes one Kafka message by its type field. Malformed or
// unknown messages are logged and skipped so they are still committed.
func (a *Aggregator) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	env, err := kafka.DecodeJSON[envelope](value)
	if err != nil {
		a.logger.Error("failed to decode analytics event", "error", err)
		return nil
	}
	switch env.Type {
	case EventSearch:
		return a.decodeAndRecord(value, func(b []byte) (any, error) { return kafka.DecodeJSON[SearchEvent](b) })
	case EventIndexDoc:
		return a.decodeAndRecord(value, func(b []byte) (any, error) { return kafka.DecodeJSON[IndexEvent](b) })
	case EventSessionOpen, EventSessionClose:
		return a.decodeAndRecord(value, func(b []byte) (any, error) { return kafka.DecodeJSON[SessionEvent](b) })
	default:
		a.logger.Warn("unknown analytics event type", "type", env.Type)
		return nil
	}
}

func (a *Aggregator) decodeAndRecord(value []byte, decode func([]byte) (any, error)) error {
	event, err := decode(value)
	if err != nil {
		a.logger.Error("failed to decode analytics event", "error", err)
		return nil
	}
	a.record(event)
	return nil
}

// Track records an event in-process.
func (a *Aggregator) Track(key string, event any) {
	a.record(event)
}

func (a *Aggregator) record(event any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearch(e)
	case *SearchEvent:
		a.recordSearch(*e)
	case IndexEvent, *IndexEvent:
		a.totalDocIndexed++
	case SessionEvent:
		a.recordSession(e)
	case *SessionEvent:
		a.recordSession(*e)
	default:
		a.logger.Warn("ignoring analytics event", "type", fmt.Sprintf("%T", event))
	}
}

func (a *Aggregator) recordSearch(e SearchEvent) {
	a.totalSearches++
	if e.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.nextSample] = e.LatencyMs
		a.nextSample = (a.nextSample + 1) % maxLatencySamples
	}
	a.queryCounts[e.Query]++
	if e.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultQueries[e.Query]++
	}
}

func (a *Aggregator) recordSession(e SessionEvent) {
	switch e.Type {
	case EventSessionOpen:
		a.sessionsOpened++
	case EventSessionClose:
		a.sessionsClosed++
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(DefaultTopQueries)
}

// StatsTop is Stats with the top and zero-result query lists cut to n.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		TotalDocIndexed: a.totalDocIndexed,
		SessionsOpened:  a.sessionsOpened,
		SessionsClosed:  a.sessionsClosed,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
	}
	if len(a.latencies) > 0 {
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)

		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, n)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, n)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}

	return stats
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
