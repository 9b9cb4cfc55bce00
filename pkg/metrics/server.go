package metrics

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// indexGauges are summarised on the landing page, in this order.
var indexGauges = []struct{ name, label string }{
	{"index_terms", "Distinct terms"},
	{"registered_documents", "Documents"},
	{"active_sessions", "Active sessions"},
}

// StartServer serves /metrics for g on port in the background and returns
// the server's Shutdown method.
func StartServer(port int, g prometheus.Gatherer) (shutdown func(context.Context) error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	mux.Handle("/", landingPage(g))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}

// landingPage shows the current size of the index next to the /metrics link.
// Gauges missing from g are left out.
func landingPage(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		values := make(map[string]float64)
		families, err := g.Gather()
		if err != nil {
			slog.Warn("gathering metrics for landing page", "error", err)
		}
		for _, mf := range families {
			if ms := mf.GetMetric(); len(ms) == 1 && ms[0].GetGauge() != nil {
				values[mf.GetName()] = ms[0].GetGauge().GetValue()
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><h1>File Retrieval Metrics</h1><ul>")
		for _, gauge := range indexGauges {
			if v, ok := values[gauge.name]; ok {
				fmt.Fprintf(w, "<li>%s: %.0f</li>", html.EscapeString(gauge.label), v)
			}
		}
		fmt.Fprint(w, `</ul><p><a href="/metrics">/metrics</a></p></body></html>`)
	})
}
