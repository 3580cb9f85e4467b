package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/repo-research/internal/activities"
	"github.com/Kocoro-lab/repo-research/internal/capabilities"
	"github.com/Kocoro-lab/repo-research/internal/config"
	"github.com/Kocoro-lab/repo-research/internal/db"
	"github.com/Kocoro-lab/repo-research/internal/delivery"
	"github.com/Kocoro-lab/repo-research/internal/exploration"
	"github.com/Kocoro-lab/repo-research/internal/health"
	"github.com/Kocoro-lab/repo-research/internal/httpapi"
	"github.com/Kocoro-lab/repo-research/internal/readiness"
	"github.com/Kocoro-lab/repo-research/internal/server"
	"github.com/Kocoro-lab/repo-research/internal/temporal"
	"github.com/Kocoro-lab/repo-research/internal/tracing"
	"github.com/Kocoro-lab/repo-research/internal/transcript"
	"github.com/Kocoro-lab/repo-research/internal/workflows"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootstrap, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	loader, err := config.Load(config.Path(), bootstrap)
	if err != nil {
		bootstrap.Fatal("Failed to load configuration", zap.String("path", config.Path()), zap.Error(err))
	}
	cfg := loader.Config()

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		bootstrap.Fatal("Failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	shutdownTracing, err := tracing.Initialize(cfg.Tracing, logger)
	if err != nil {
		logger.Warn("Tracing unavailable, continuing without it", zap.Error(err))
	}

	// Health endpoints come up first so probes answer while dependencies connect
	hm := health.NewManager(logger)
	healthServer := health.StartHealthServer(hm, cfg.Service.HealthPort, logger)

	dbClient, err := db.NewClient(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database client", zap.Error(err))
	}
	defer dbClient.Close()
	if err := dbClient.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure database schema", zap.Error(err))
	}
	_ = hm.RegisterChecker(health.NewDatabaseHealthChecker(dbClient))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	transcripts := transcript.NewStore(rdb, cfg.Redis.TranscriptTTL, logger)
	_ = hm.RegisterChecker(health.NewRedisHealthChecker(transcripts))

	providers := capabilities.NewManager(cfg.Providers, logger)
	providers.Start(ctx)
	defer providers.Close()
	_ = hm.RegisterChecker(health.NewProviderHealthChecker(providers))

	gate := readiness.NewGate(providers)
	sink := delivery.NewSink(transcripts, providers, gate, logger)
	acts := activities.NewActivities(
		dbClient,
		gate,
		exploration.NewUnit(providers, logger),
		sink,
		loader.Tracker,
		logger,
	)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := ":" + strconv.Itoa(cfg.Service.MetricsPort)
		logger.Info("Metrics server listening", zap.String("address", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start metrics server", zap.Error(err))
		}
	}()

	tClient, err := dialTemporal(ctx, cfg.Temporal, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Temporal", zap.Error(err))
	}
	defer tClient.Close()

	w := worker.New(tClient, cfg.Temporal.TaskQueue, worker.Options{})
	workflows.Register(w, acts)
	if err := w.Start(); err != nil {
		logger.Fatal("Failed to start Temporal worker", zap.Error(err))
	}
	defer w.Stop()
	logger.Info("Temporal worker started", zap.String("queue", cfg.Temporal.TaskQueue))

	scheduler := workflows.NewScheduler(tClient, cfg.Temporal.TaskQueue, func() workflows.ResearchInput {
		return researchInput(loader.Engine())
	}, logger)
	service := server.NewResearchService(dbClient, scheduler, logger)

	apiMux := http.NewServeMux()
	httpapi.NewResearchHandler(service, logger).RegisterRoutes(apiMux)
	apiServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:      apiMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Research API listening", zap.Int("port", cfg.Service.HTTPPort))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Research API server failed", zap.Error(err))
			stop()
		}
	}()

	loader.OnReload(func(c *config.Config) {
		logger.Info("New research runs will use reloaded engine settings",
			zap.Duration("readiness_interval", c.Engine.ReadinessInterval),
			zap.Duration("completion_timeout", c.Engine.CompletionTimeout),
		)
	})
	loader.Watch()

	<-ctx.Done()
	logger.Info("Shutting down research service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down research API", zap.Error(err))
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down health server", zap.Error(err))
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("Failed to flush traces", zap.Error(err))
		}
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}
	return zc.Build()
}

// dialTemporal retries until the frontend answers or ctx is cancelled.
func dialTemporal(ctx context.Context, cfg config.TemporalConfig, logger *zap.Logger) (client.Client, error) {
	for attempt := 1; ; attempt++ {
		c, err := client.Dial(client.Options{
			HostPort:  cfg.HostPort,
			Namespace: cfg.Namespace,
			Logger:    temporal.NewZapAdapter(logger),
		})
		if err == nil {
			return c, nil
		}
		delay := time.Duration(attempt) * time.Second
		if delay > 15*time.Second {
			delay = 15 * time.Second
		}
		logger.Warn("Temporal not ready, retrying",
			zap.Int("attempt", attempt),
			zap.String("host", cfg.HostPort),
			zap.Duration("sleep", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func researchInput(e config.EngineConfig) workflows.ResearchInput {
	return workflows.ResearchInput{
		ReadinessAttempts: e.ReadinessAttempts,
		ReadinessInterval: e.ReadinessInterval,
		MinResultLength:   e.MinResultLength,
		MaxConcurrency:    e.MaxConcurrency,
		CompletionTimeout: e.CompletionTimeout,
		ExploreTimeout:    e.ExploreTimeout,
		TrackerTimeout:    e.TrackerTimeout,
	}
}
