package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/admin"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/service"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/service/journal"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/rpc"
)

const snapshotInterval = time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting retrieval server",
		"rpc_addr", cfg.RPC.Addr,
		"admin_port", cfg.Server.Port,
		"shards", cfg.Index.Shards,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// cancelled only after the rpc drain
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	m := metrics.New(prometheus.DefaultRegisterer)
	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
	}
	checker := health.NewChecker()

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
				OnStateChange: func(name string, from, to resilience.State) {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				},
			})
			m.CircuitBreakerState.WithLabelValues(breaker.Name()).Set(float64(resilience.StateClosed))
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, breaker)
			checker.RegisterPing("redis", false, redisClient.Ping)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	aggregator := analytics.NewAggregator()
	var tracker analytics.Tracker = aggregator
	var collector *analytics.Collector
	if len(cfg.Kafka.Brokers) > 0 {
		topic := cfg.Kafka.Topics.AnalyticsEvents
		producer := kafka.NewProducer(cfg.Kafka, topic)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 100, 2*time.Second)
		collector.Start(bgCtx)
		tracker = collector
		aggregator.AttachConsumer(kafka.NewConsumer(cfg.Kafka, topic, aggregator.HandleMessage))
		checker.RegisterPing("kafka", false, producer.Ping)
		slog.Info("analytics publishing enabled", "topic", topic, "brokers", cfg.Kafka.Brokers)
	}
	go func() {
		if err := aggregator.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("analytics aggregator error", "error", err)
		}
	}()

	var sessionJournal *journal.Journal
	var events admin.EventLister
	if cfg.Postgres.Host != "" {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, session journal disabled", "error", err)
		} else {
			defer db.Close()
			sessionJournal = journal.New(db)
			snapshots := analytics.NewSnapshotStore(db)
			if err := sessionJournal.EnsureSchema(ctx); err != nil {
				slog.Error("session journal schema", "error", err)
				os.Exit(1)
			}
			if err := snapshots.EnsureSchema(ctx); err != nil {
				slog.Error("analytics snapshot schema", "error", err)
				os.Exit(1)
			}
			snapshots.StartPeriodicSave(bgCtx, aggregator, snapshotInterval)
			events = sessionJournal
			checker.RegisterPing("postgres", false, db.Ping)
		}
	}

	rpcServer := rpc.NewServer(rpc.WithMaxConnections(cfg.RPC.MaxConnections))
	opts := service.Options{
		Shards:       cfg.Index.Shards,
		MaxResults:   cfg.Search.MaxResults,
		DefaultLimit: cfg.Search.DefaultLimit,
		Cache:        queryCache,
		Tracker:      tracker,
		Metrics:      m,
		OnShutdown: func(reason string) {
			slog.Warn("remote shutdown requested", "reason", reason)
			stop()
		},
	}
	if sessionJournal != nil {
		opts.Journal = sessionJournal
	}
	svc := service.New(opts)
	svc.RegisterHandlers(rpcServer)

	checker.Register("rpc", func(ctx context.Context) health.ComponentHealth {
		if rpcServer.Addr() == nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: "not listening"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d connections", rpcServer.ConnectionCount()),
		}
	})

	limiter := ratelimit.New(time.Minute)
	defer limiter.Stop()
	router := admin.NewRouter(admin.New(svc, events), analytics.NewHandler(aggregator), checker, m, admin.RouterConfig{
		Timeout:     cfg.Server.WriteTimeout,
		Limiter:     limiter,
		RateLimit:   cfg.Server.RateLimit,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 2)
	go func() {
		if err := rpcServer.Serve(cfg.RPC.Addr); err != nil {
			serveErr <- fmt.Errorf("rpc server: %w", err)
		}
	}()
	go func() {
		slog.Info("admin server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("admin server: %w", err)
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serveErr:
		slog.Error("server failed", "error", err)
		exitCode = 1
	}

	checker.SetDraining()
	graceCtx, cancel := context.WithTimeout(context.Background(), cfg.RPC.ShutdownGracePeriod)
	if err := rpcServer.Shutdown(graceCtx); err != nil {
		slog.Warn("rpc shutdown", "error", err)
	}
	cancel()

	httpCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("admin server shutdown error", "error", err)
	}
	if shutdownMetrics != nil {
		if err := shutdownMetrics(httpCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}
	cancel()

	cancelBg()
	if collector != nil {
		collector.Close()
	}

	stats := svc.Stats()
	slog.Info("retrieval server stopped",
		"documents", stats.Documents,
		"terms", stats.Terms,
		"postings", stats.Postings,
	)
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
