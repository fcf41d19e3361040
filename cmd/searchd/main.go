package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopscout/searchcore/internal/api"
	"github.com/shopscout/searchcore/internal/engine"
	"github.com/shopscout/searchcore/internal/history"
	"github.com/shopscout/searchcore/internal/ingest"
	"github.com/shopscout/searchcore/internal/lifecycle"
	"github.com/shopscout/searchcore/internal/search/cache"
	"github.com/shopscout/searchcore/internal/storage"
	"github.com/shopscout/searchcore/pkg/config"
	"github.com/shopscout/searchcore/pkg/health"
	"github.com/shopscout/searchcore/pkg/kafka"
	"github.com/shopscout/searchcore/pkg/logger"
	"github.com/shopscout/searchcore/pkg/metrics"
	"github.com/shopscout/searchcore/pkg/middleware"
	"github.com/shopscout/searchcore/pkg/postgres"
	pkgredis "github.com/shopscout/searchcore/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search engine", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, cache runs memory-only", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			slog.Info("redis cache tier enabled", "addr", cfg.Redis.Addr)
		}
	}

	var pgClient *postgres.Client
	var persist *storage.Store
	if cfg.Postgres.Enabled {
		pgClient, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, corpus will not survive restarts", "error", err)
		} else {
			defer pgClient.Close()
			persist, err = storage.New(ctx, pgClient)
			if err != nil {
				slog.Error("storage schema setup failed", "error", err)
				os.Exit(1)
			}
			slog.Info("durable storage enabled", "database", cfg.Postgres.Database)
		}
	}

	qcache := cache.New(cfg.Cache, redisClient)
	if persist != nil {
		qcache.SetDurable(persist.SaveCacheEntry, persist.ClearCache)
	}
	qcache.StartSweepLoop(ctx, cfg.Cache.SweepInterval)
	recorder := history.NewRecorder(nil)
	eng := engine.New(cfg, qcache, recorder, m)
	manager := lifecycle.New(eng, qcache, recorder, persist, cfg.Eviction, cfg.History, m)
	recorder.SetSink(manager.HistorySink())

	if err := manager.Restore(ctx); err != nil {
		slog.Error("startup restore failed", "error", err)
		os.Exit(1)
	}
	manager.Start(ctx)

	if cfg.Kafka.Enabled {
		consumer := ingest.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.RecordsTopic, ingest.HandleMessage(manager)))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("ingest consumer error", "error", err)
			}
		}()
		slog.Info("kafka ingest enabled", "topic", cfg.Kafka.RecordsTopic)
	}

	checker := health.NewChecker()
	checker.Register("engine", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents indexed", eng.DocumentCount()),
		}
	})
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if pgClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := pgClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := api.New(eng, manager)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search engine listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search engine stopped")
}
