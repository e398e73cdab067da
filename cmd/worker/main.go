// Package main provides the entrypoint for the KmerRoute worker, which keeps
// popular corridors warm in the result cache and consumes route events.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kmerroute/kmerroute/internal/api/middleware"
	"github.com/kmerroute/kmerroute/internal/api/response"
	"github.com/kmerroute/kmerroute/internal/cache"
	"github.com/kmerroute/kmerroute/internal/config"
	"github.com/kmerroute/kmerroute/internal/database"
	"github.com/kmerroute/kmerroute/internal/events"
	"github.com/kmerroute/kmerroute/internal/provider/resilience"
	"github.com/kmerroute/kmerroute/internal/routing"
	"github.com/kmerroute/kmerroute/internal/routing/osrm"
	"github.com/kmerroute/kmerroute/internal/routing/pgrouting"
	"github.com/kmerroute/kmerroute/internal/telemetry"
	"github.com/kmerroute/kmerroute/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "kmerroute-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting KmerRoute worker")

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.OTelEnabled,
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.OTLPEndpoint,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	routingMetrics, err := middleware.NewRoutingMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create routing metrics")
	}

	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	graph, err := pgrouting.New(pgrouting.Config{
		DB:        pool,
		Bounds:    cfg.Region,
		NodeTable: cfg.Graph.NodeTable,
		EdgeTable: cfg.Graph.EdgeTable,
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize graph provider")
	}

	store, err := newCacheStore(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create cache store")
	}
	resultCache := cache.New(ctx, cache.Config{Store: store, Logger: log, Metrics: routingMetrics})
	resultCache.StartProbing(ctx, cfg.Cache.ProbeInterval)
	defer func() {
		if err := resultCache.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close cache store")
		}
	}()

	routes := routing.NewService(routing.ServiceConfig{
		Graph: graph,
		External: osrm.NewClient(osrm.ClientConfig{
			BaseURL:  cfg.OSRM.BaseURL,
			Timeout:  cfg.OSRM.Timeout,
			Registry: resilience.NewRegistry(),
			Bounds:   cfg.Region,
			Logger:   log,
		}),
		Cache:   resultCache,
		Bounds:  cfg.Region,
		Metrics: routingMetrics,
		Logger:  log,
	})

	warmup := worker.NewWarmupJob(worker.WarmupJobConfig{
		Config: worker.DefaultWarmupConfig(),
		Router: routes,
		Logger: log,
	})
	go warmup.Schedule(ctx)

	handler := worker.NewEventHandler(worker.EventHandlerConfig{
		Warmup: warmup,
		Logger: log,
	})

	if cfg.PubSub.Enabled() {
		subscriber, err := events.NewSubscriber(ctx, events.SubscriberConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Handler:          handler,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub subscriber")
		}
		defer subscriber.Close()

		go func() {
			if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("pubsub subscriber stopped")
			}
		}()
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set, event consumption disabled")
	}

	// Worker also exposes health for Cloud Run
	mux := chi.NewRouter()
	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]any{
			"status":          "healthy",
			"version":         Version,
			"cache_available": resultCache.Available(),
		})
	})
	mux.Get("/warmup", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]any{
			"metrics":    warmup.MetricsSnapshot(),
			"top_routes": handler.TopRoutes(10),
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

func newCacheStore(cfg config.CacheConfig) (cache.Store, error) {
	if cfg.Backend == config.CacheBackendMemory {
		return cache.NewMemoryStore(cache.MemoryStoreConfig{Size: cfg.MemorySize})
	}
	return cache.NewRedisStore(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TLS:      cfg.RedisTLS,
	}), nil
}
