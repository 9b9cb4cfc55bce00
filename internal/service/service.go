// Package service is the server-side boundary of the retrieval engine. It
// owns the session registry, the document registry and the inverted index,
// and exposes the five remote operations (register, index, search,
// deregister, shutdown) on top of them.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/service/journal"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/store/document"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/store/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/store/session"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/proto"
)

const journalTimeout = 2 * time.Second

// SessionJournal records session lifecycle events. *journal.Journal
// satisfies it.
type SessionJournal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Options wires the optional collaborators. Zero values disable caching,
// analytics and journaling.
type Options struct {
	Shards       int
	MaxResults   int
	DefaultLimit int
	Cache        *cache.QueryCache
	Tracker      analytics.Tracker
	Journal      SessionJournal
	Metrics      *metrics.Metrics
	// OnShutdown runs on its own goroutine after a shutdown request has
	// been acknowledged.
	OnShutdown func(reason string)
}

type Service struct {
	sessions     *session.Registry
	docs         *document.Registry
	index        *index.InvertedIndex
	exec         *executor.Executor
	cache        *cache.QueryCache
	tracker      analytics.Tracker
	journal      SessionJournal
	metrics      *metrics.Metrics
	defaultLimit int
	onShutdown   func(reason string)
	shutdownOnce sync.Once
	logger       *slog.Logger
}

func New(opts Options) *Service {
	if opts.Shards <= 0 {
		opts.Shards = index.DefaultShards
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = executor.DefaultMaxResults
	}
	if opts.DefaultLimit <= 0 || opts.DefaultLimit > opts.MaxResults {
		opts.DefaultLimit = opts.MaxResults
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}

	docs := document.NewRegistry()
	idx := index.New(opts.Shards)
	return &Service{
		sessions:     session.NewRegistry(),
		docs:         docs,
		index:        idx,
		exec:         executor.New(idx, docs, opts.MaxResults),
		cache:        opts.Cache,
		tracker:      opts.Tracker,
		journal:      opts.Journal,
		metrics:      opts.Metrics,
		defaultLimit: opts.DefaultLimit,
		onShutdown:   opts.OnShutdown,
		logger:       slog.Default().With("component", "retrieval-service"),
	}
}

// Register opens a new session and returns its id.
func (s *Service) Register(ctx context.Context, address string) (*proto.RegisterResponse, error) {
	id := s.sessions.Register(address)
	s.metrics.SessionsRegisteredTotal.Inc()
	s.metrics.ActiveSessions.Set(float64(s.sessions.Count()))

	logger.FromContext(ctx).Info("client registered", "client_id", id, "address", address)
	s.track("session", analytics.SessionEvent{
		Type:      analytics.EventSessionOpen,
		SessionID: id,
		Address:   address,
		Timestamp: time.Now().UTC(),
	})
	s.record(ctx, journal.Entry{SessionID: id, Event: journal.EventRegistered, Address: address})

	return &proto.RegisterResponse{ClientID: id}, nil
}

// SubmitIndex records the term frequencies of one document on behalf of a
// session. The path is registered on first sight; later submissions of the
// same path from any session add postings to the same document.
func (s *Service) SubmitIndex(ctx context.Context, req *proto.IndexRequest) (*proto.IndexResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx = logger.WithSessionID(ctx, req.ClientID)

	docID := s.docs.AssignOrGet(req.DocumentPath, req.ClientID)
	added := s.index.AddPostings(req.ClientID, docID, index.Frequencies(req.WordFrequencies))

	s.metrics.DocsIndexedTotal.Inc()
	s.metrics.PostingsAddedTotal.Add(float64(added))
	s.metrics.RegisteredDocuments.Set(float64(s.docs.Count()))
	s.metrics.IndexTerms.Set(float64(s.index.Stats().Terms))

	elapsed := time.Since(start)
	logger.FromContext(ctx).Debug("document indexed",
		"doc_id", docID,
		"path", req.DocumentPath,
		"terms", added,
		"elapsed", elapsed,
	)
	s.track("index", analytics.IndexEvent{
		Type:         analytics.EventIndexDoc,
		SessionID:    req.ClientID,
		DocumentID:   docID,
		DocumentPath: req.DocumentPath,
		TermCount:    added,
		LatencyMs:    float64(elapsed.Microseconds()) / 1000,
		Timestamp:    time.Now().UTC(),
	})

	return &proto.IndexResponse{Message: "OK", IndexedTerms: added}, nil
}

// Search runs a conjunctive query and returns the ranked, truncated hits.
// A zero limit means the configured default; larger limits are capped at
// the configured maximum.
func (s *Service) Search(ctx context.Context, req *proto.SearchRequest) (*proto.SearchResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	start := time.Now()
	log := logger.FromContext(ctx)

	plan := parser.FromTerms(req.Terms)
	limit := req.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.exec.MaxResults() {
		limit = s.exec.MaxResults()
	}

	var (
		result   *executor.SearchResult
		cacheHit bool
		err      error
	)
	cacheStatus := "disabled"
	if s.cache != nil && !plan.Empty() {
		result, cacheHit, err = s.cache.GetOrCompute(ctx, plan.Terms, s.index.Version(), limit, func() (*executor.SearchResult, error) {
			return s.exec.Execute(ctx, plan, limit)
		})
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
			s.metrics.CacheHitsTotal.Inc()
		} else {
			s.metrics.CacheMissesTotal.Inc()
		}
	} else {
		result, err = s.exec.Execute(ctx, plan, limit)
	}
	if err != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		log.Error("search failed", "terms", plan.Terms, "error", err)
		return nil, err
	}

	elapsed := time.Since(start)
	resultType := "hit"
	if result.TotalHits == 0 {
		resultType = "zero_result"
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	s.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	s.metrics.SearchResultsCount.Observe(float64(result.TotalHits))

	log.Info("search completed",
		"terms", plan.Terms,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache", cacheStatus,
		"elapsed", elapsed,
	)
	s.track("search", analytics.SearchEvent{
		Type:      analytics.EventSearch,
		Query:     plan.RawQuery,
		Terms:     plan.Terms,
		TotalHits: result.TotalHits,
		Returned:  len(result.Results),
		LatencyMs: float64(elapsed.Microseconds()) / 1000,
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestID(ctx),
	})

	resp := &proto.SearchResponse{
		Results:      make([]proto.SearchResult, 0, len(result.Results)),
		TotalResults: result.TotalHits,
		TimeTaken:    elapsed.Seconds(),
	}
	for _, hit := range result.Results {
		resp.Results = append(resp.Results, proto.SearchResult{
			ClientID:     hit.SessionID,
			DocumentPath: hit.Path,
			Frequency:    hit.Frequency,
		})
	}
	return resp, nil
}

// Deregister closes a session. Unknown or already closed ids are
// acknowledged as well; the postings a session contributed stay searchable.
func (s *Service) Deregister(ctx context.Context, req *proto.DeregisterRequest) (*proto.Ack, error) {
	ctx = logger.WithSessionID(ctx, req.ClientID)
	if !s.sessions.Deregister(req.ClientID) {
		logger.FromContext(ctx).Debug("deregister for inactive session")
		return &proto.Ack{Message: "not registered"}, nil
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.Count()))

	logger.FromContext(ctx).Info("client deregistered")
	s.track("session", analytics.SessionEvent{
		Type:      analytics.EventSessionClose,
		SessionID: req.ClientID,
		Timestamp: time.Now().UTC(),
	})
	s.record(ctx, journal.Entry{SessionID: req.ClientID, Event: journal.EventDeregistered})

	return &proto.Ack{Message: "OK"}, nil
}

// Shutdown acknowledges the request and starts the teardown callback on a
// separate goroutine. Only the first request triggers it.
func (s *Service) Shutdown(ctx context.Context, req *proto.ShutdownRequest) (*proto.Ack, error) {
	logger.FromContext(ctx).Warn("shutdown requested", "reason", req.Reason)
	s.shutdownOnce.Do(func() {
		if s.onShutdown != nil {
			go s.onShutdown(req.Reason)
		}
	})
	return &proto.Ack{Message: "shutting down"}, nil
}

// ListSessions returns the active sessions ordered by id.
func (s *Service) ListSessions() []proto.SessionInfo {
	active := s.sessions.ListActive()
	out := make([]proto.SessionInfo, 0, len(active))
	for _, sess := range active {
		out = append(out, proto.SessionInfo{
			ClientID:    sess.ID,
			Address:     sess.Address,
			ConnectedAt: sess.ConnectedAt.Unix(),
		})
	}
	return out
}

// IndexStats describes the size of the server's in-memory state.
type IndexStats struct {
	Terms          int64  `json:"terms"`
	Postings       int64  `json:"postings"`
	Shards         int    `json:"shards"`
	Documents      int    `json:"documents"`
	ActiveSessions int    `json:"active_sessions"`
	Version        uint64 `json:"version"`
}

func (s *Service) Stats() IndexStats {
	st := s.index.Stats()
	return IndexStats{
		Terms:          int64(st.Terms),
		Postings:       st.Postings,
		Shards:         st.Shards,
		Documents:      s.docs.Count(),
		ActiveSessions: s.sessions.Count(),
		Version:        s.index.Version(),
	}
}

// InvalidateCache drops every cached search result. It is a no-op without
// a cache.
func (s *Service) InvalidateCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}

// CacheStats reports hit and miss counts and whether caching is enabled.
func (s *Service) CacheStats() (hits, misses int64, enabled bool) {
	if s.cache == nil {
		return 0, 0, false
	}
	hits, misses = s.cache.Stats()
	return hits, misses, true
}

func (s *Service) track(key string, event any) {
	if s.tracker != nil {
		s.tracker.Track(key, event)
	}
}

// record journals e under its own deadline. Failures are only logged.
func (s *Service) record(ctx context.Context, e journal.Entry) {
	if s.journal == nil {
		return
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := s.journal.Record(jctx, e); err != nil {
		logger.FromContext(ctx).Warn("session journal write failed", "event", e.Event, "error", err)
	}
}
