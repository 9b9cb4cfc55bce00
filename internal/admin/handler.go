// Package admin serves the operator HTTP surface of the retrieval server:
// active sessions, index statistics, ad-hoc searches, analytics and cache
// control. It never mutates the index.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/service"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/service/journal"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/proto"
)

const defaultEventLimit = 50

// Retrieval is the part of the service the admin surface reads from.
type Retrieval interface {
	ListSessions() []proto.SessionInfo
	Stats() service.IndexStats
	Search(ctx context.Context, req *proto.SearchRequest) (*proto.SearchResponse, error)
	CacheStats() (hits, misses int64, enabled bool)
	InvalidateCache(ctx context.Context) error
}

// EventLister reads the session journal.
type EventLister interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

type Handler struct {
	svc    Retrieval
	events EventLister
	logger *slog.Logger
}

// New creates a Handler. events may be nil when no journal is configured.
func New(svc Retrieval, events EventLister) *Handler {
	return &Handler{
		svc:    svc,
		events: events,
		logger: slog.Default().With("component", "admin-handler"),
	}
}

// Sessions serves GET /api/v1/sessions.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.svc.ListSessions()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// SessionEvents serves GET /api/v1/sessions/events.
func (h *Handler) SessionEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		h.writeError(w, http.StatusServiceUnavailable, "session journal is disabled")
		return
	}
	limit, ok := h.parseLimit(w, r, defaultEventLimit, 1000)
	if !ok {
		return
	}
	entries, err := h.events.Recent(r.Context(), limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("listing session events failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "session journal unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}

// IndexStats serves GET /api/v1/index/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Stats())
}

// Search serves GET /api/v1/search?q=a AND b&limit=n.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, ok := h.parseLimit(w, r, 0, 0)
	if !ok {
		return
	}

	plan := parser.Parse(query)
	resp, err := h.svc.Search(r.Context(), &proto.SearchRequest{Terms: plan.Terms, Limit: limit})
	if err != nil {
		logger.FromContext(r.Context()).Error("admin search failed", "query", query, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CacheStats serves GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	hits, misses, enabled := h.svc.CacheStats()
	if !enabled {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": strconv.FormatFloat(hitRate, 'f', 1, 64) + "%",
	})
}

// CacheInvalidate serves POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if _, _, enabled := h.svc.CacheStats(); !enabled {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.svc.InvalidateCache(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// parseLimit reads the optional limit parameter. A zero ceiling means no cap.
func (h *Handler) parseLimit(w http.ResponseWriter, r *http.Request, def, ceiling int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if ceiling > 0 && n > ceiling {
		n = ceiling
	}
	return n, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
