package admin

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/ratelimit"
)

// RouterConfig holds the optional layers of the admin middleware chain.
// Zero values disable the corresponding layer.
type RouterConfig struct {
	Timeout     time.Duration
	Limiter     *ratelimit.Limiter
	RateLimit   int
	CORSOrigins []string
}

// NewRouter builds the admin HTTP handler.
//
// Route table:
//
//	GET    /api/v1/sessions           → active sessions
//	GET    /api/v1/sessions/events    → session journal (Postgres)
//	GET    /api/v1/index/stats        → index size
//	GET    /api/v1/search             → ad-hoc AND query
//	GET    /api/v1/analytics          → aggregated analytics
//	GET    /api/v1/cache/stats        → query cache counters
//	POST   /api/v1/cache/invalidate   → drop cached results
//	GET    /health/live, /health/ready
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → CORS → RateLimit → Timeout → mux
func NewRouter(h *Handler, stats *analytics.Handler, checker *health.Checker, m *metrics.Metrics, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/sessions", h.Sessions)
	mux.HandleFunc("GET /api/v1/sessions/events", h.SessionEvents)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	if stats != nil {
		mux.HandleFunc("GET /api/v1/analytics", stats.Stats)
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if cfg.Timeout > 0 {
		chain = middleware.Timeout(cfg.Timeout)(chain)
	}
	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		chain = middleware.RateLimit(cfg.Limiter, cfg.RateLimit)(chain)
	}
	if len(cfg.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins))(chain)
	}
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.RequestID(chain)
	return chain
}
