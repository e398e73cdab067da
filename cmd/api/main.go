// Package main provides the entrypoint for the KmerRoute API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmerroute/kmerroute/internal/api"
	"github.com/kmerroute/kmerroute/internal/api/middleware"
	"github.com/kmerroute/kmerroute/internal/cache"
	"github.com/kmerroute/kmerroute/internal/config"
	"github.com/kmerroute/kmerroute/internal/database"
	"github.com/kmerroute/kmerroute/internal/events"
	"github.com/kmerroute/kmerroute/internal/provider/resilience"
	"github.com/kmerroute/kmerroute/internal/routing"
	"github.com/kmerroute/kmerroute/internal/routing/osrm"
	"github.com/kmerroute/kmerroute/internal/routing/pgrouting"
	"github.com/kmerroute/kmerroute/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "kmerroute-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting KmerRoute API")

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize OpenTelemetry
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
		if shutdownErr := shutdownTelemetry(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Float64("sample_ratio", cfg.OTelSampleRatio).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	routingMetrics, err := middleware.NewRoutingMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize routing metrics")
	}

	// Connect to the road network database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

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

	// External routing with breaker health tracking
	providers := resilience.NewRegistry()
	external := osrm.NewClient(osrm.ClientConfig{
		BaseURL:  cfg.OSRM.BaseURL,
		Timeout:  cfg.OSRM.Timeout,
		Registry: providers,
		Bounds:   cfg.Region,
		Logger:   log,
	})
	log.Info().
		Str("base_url", cfg.OSRM.BaseURL).
		Msg("OSRM client initialized")

	// Result cache
	store, err := newCacheStore(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create cache store")
	}
	resultCache := cache.New(ctx, cache.Config{
		Store:   store,
		Logger:  log,
		Metrics: routingMetrics,
	})
	resultCache.StartProbing(ctx, cfg.Cache.ProbeInterval)
	log.Info().
		Str("backend", resultCache.Backend()).
		Bool("available", resultCache.Available()).
		Msg("result cache initialized")

	routes := routing.NewService(routing.ServiceConfig{
		Graph:          graph,
		External:       external,
		Cache:          resultCache,
		Bounds:         cfg.Region,
		Logger:         log,
		Metrics:        routingMetrics,
		CoalesceMisses: cfg.Routing.CoalesceMisses,
	})

	// Domain events; dropped when Pub/Sub is not configured
	var transport events.Transport
	if cfg.PubSub.Enabled() {
		pubsubTransport, err := events.NewPubSubTransport(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub client")
		}
		transport = pubsubTransport
		log.Info().
			Str("project_id", cfg.PubSub.ProjectID).
			Msg("event publishing enabled")
	}
	publisher := events.NewPublisher(events.PublisherConfig{
		Transport:  transport,
		RouteTopic: cfg.PubSub.RouteTopic,
		PlaceTopic: cfg.PubSub.PlaceTopic,
		Logger:     log,
	})

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        metrics,
		AllowedOrigins: cfg.AllowedOrigins,
		RequireTLS:     cfg.RequireTLS,
		Routes:         routes,
		Events:         publisher,
		Cache:          resultCache,
		Database:       pool,
		Providers:      providers,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event publisher")
	}
	if err := resultCache.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close cache store")
	}

	log.Info().Msg("server stopped")
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
