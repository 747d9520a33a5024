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

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/api"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/replication"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/search"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/telemetry"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.WithNode(cfg.Node.ID)
	slog.Info("starting search node",
		"port", cfg.Server.Port,
		"peers", len(cfg.Cluster.Peers),
		"store", cfg.Store.Driver,
		"cache", cfg.Cache.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker()

	// Document store
	var docs store.Store
	switch cfg.Store.Driver {
	case "postgres":
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := store.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare documents table", "error", err)
			os.Exit(1)
		}
		docs = pg
	default:
		docs = store.NewMemory()
	}
	checker.Register("store", health.PingCheck(docs.Ping))
	if cfg.Store.SeedFile != "" {
		if _, err := store.Seed(ctx, docs, cfg.Store.SeedFile); err != nil {
			slog.Warn("seeding skipped", "path", cfg.Store.SeedFile, "error", err)
		}
	}

	// Analyzer and index
	mode, err := analyzer.ParseMode(cfg.Analyzer.Mode)
	if err != nil {
		slog.Error("invalid analyzer mode", "error", err)
		os.Exit(1)
	}
	opts := []analyzer.Option{
		analyzer.WithMode(mode),
		analyzer.WithDiacriticFolding(cfg.Analyzer.FoldDiacritics),
	}
	if len(cfg.Analyzer.StopWords) > 0 {
		opts = append(opts, analyzer.WithStopWords(cfg.Analyzer.StopWords...))
	}
	an := analyzer.New(opts...)
	idx := index.New(an)
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		st := idx.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, %d terms", st.Documents, st.Terms),
		}
	})

	// Result cache
	var backend cache.Backend = cache.NewMemoryBackend(cfg.Cache.MaxEntries)
	var redisClient *pkgredis.Client
	if cfg.Cache.Backend == "redis" {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, using in-process cache", "error", err)
		} else {
			defer redisClient.Close()
			backend = cache.NewRedisBackend(redisClient, cache.Namespace(cfg.Node.ID))
			slog.Info("redis cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Cache.TTL)
		}
	}
	checker.Register("cache", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusUp, Message: "in-process"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	results := cache.New[[]search.Result](backend, cfg.Node.ID, cfg.Cache.TTL)

	// Replication
	peers := replication.PeersFromConfig(cfg.Cluster.Peers, cfg.Node.ID)
	replicator := replication.New(cfg.Node.ID, peers, replication.NewHTTPTransport(&http.Client{}),
		replication.WithTimeout(cfg.Cluster.ReplicationTimeout),
		replication.WithBreaker(cfg.Cluster.BreakerFailures, cfg.Cluster.BreakerReset),
		replication.WithMetrics(m),
	)
	dispatcher := replication.NewDispatcher(replicator, cfg.Cluster.Workers, cfg.Cluster.QueueSize, m)
	checker.Register("peers", func(ctx context.Context) health.ComponentHealth {
		var open []string
		for id, state := range replicator.PeerStates() {
			if state == resilience.StateOpen {
				open = append(open, id)
			}
		}
		if len(open) > 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: fmt.Sprintf("unreachable: %v", open)}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d peers", len(peers))}
	})
	slog.Info("replication configured", "peers", len(peers), "timeout", cfg.Cluster.ReplicationTimeout)

	// Telemetry
	var recorder telemetry.Recorder
	var analyticsH *telemetry.Handler
	if cfg.Telemetry.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.TelemetryTopic)
		defer producer.Close()
		collector := telemetry.NewCollector(producer, cfg.Telemetry.BufferSize, 100, time.Second, m)
		collector.Start()
		defer collector.Close()
		recorder = collector
		slog.Info("telemetry collector started", "topic", cfg.Kafka.TelemetryTopic)
	}
	if cfg.Telemetry.Aggregate {
		aggregator := telemetry.NewAggregator()
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.TelemetryTopic, aggregator.HandleMessage())
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("telemetry consumer error", "error", err)
			}
		}()
		analyticsH = telemetry.NewHandler(aggregator)
		slog.Info("telemetry aggregator started", "group", cfg.Kafka.ConsumerGroup)
	}

	svc := search.New(search.Deps{
		NodeID:     cfg.Node.ID,
		Analyzer:   an,
		Index:      idx,
		Store:      docs,
		Cache:      results,
		Dispatcher: dispatcher,
		Cluster:    replicator,
		Telemetry:  recorder,
		Metrics:    m,
		Limits:     cfg.Search,
	})

	routerCfg := api.RouterConfig{
		Health:  checker,
		Metrics: m,
		Timeout: cfg.Server.WriteTimeout,
		CORS:    middleware.DefaultCORSConfig(),
	}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)
		defer limiter.Close()
		routerCfg.Limiter = limiter
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(api.NewHandler(svc, analyticsH, cfg.Search), routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// The index is rebuilt in the background; readiness stays down until it
	// completes so the node is not put in rotation with an empty index.
	go func() {
		n, err := svc.Rebuild(ctx)
		if err != nil {
			slog.Error("startup index rebuild failed", "error", err)
			stop()
			return
		}
		checker.MarkReady(true)
		slog.Info("node ready", "documents", n)
	}()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		checker.MarkReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search node listening", "addr", server.Addr, "node_id", cfg.Node.ID)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := dispatcher.Close(drainCtx); err != nil {
		slog.Warn("replication queue not drained", "pending", dispatcher.Pending(), "error", err)
	}
	slog.Info("search node stopped")
}
