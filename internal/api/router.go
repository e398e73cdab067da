// Package api provides the HTTP API for the routing service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kmerroute/kmerroute/internal/api/handler"
	"github.com/kmerroute/kmerroute/internal/api/middleware"
	"github.com/kmerroute/kmerroute/internal/api/response"
	"github.com/kmerroute/kmerroute/internal/cache"
	"github.com/kmerroute/kmerroute/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// AllowedOrigins lists CORS origins (default: any).
	AllowedOrigins []string

	// RequireTLS rejects plain HTTP behind a proxy.
	RequireTLS bool

	// Routes computes routes.
	Routes handler.RouteService

	// Events receives route events (optional).
	Events handler.EventPublisher

	// Cache is the route cache. Cache endpoints are mounted only when set.
	Cache *cache.Cache

	// Database is checked by the readiness and status endpoints (optional).
	Database handler.Pinger

	// Providers exposes outbound circuit states on the status endpoint (optional).
	Providers *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "kmerroute-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.CORS(cfg.AllowedOrigins))   // Browser clients
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind the load balancer
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no such endpoint")
	})

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Database:  cfg.Database,
		Cache:     cacheStatus(cfg.Cache),
		Providers: cfg.Providers,
	})
	routeHandler := handler.NewRouteHandler(cfg.Routes, cfg.Events, cfg.Logger)

	routeLimit := middleware.RouteLimit.Handler()
	readLimit := middleware.ReadLimit.Handler()
	adminLimit := middleware.AdminLimit.Handler()

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(readLimit).Get("/status", opsHandler.SystemStatus)
		})

		// Route computation - misses hit the graph database and OSRM
		r.Route("/routes", func(r chi.Router) {
			r.Use(middleware.RequireJSON)
			r.Use(routeLimit)
			r.Post("/", routeHandler.ComputeRoute)
			r.Post("/with-detour", routeHandler.ComputeRouteWithDetour)
		})

		if cfg.Cache != nil {
			cacheHandler := handler.NewCacheHandler(cfg.Cache)
			r.Route("/cache", func(r chi.Router) {
				r.With(readLimit).Get("/health", cacheHandler.Health)
				r.With(readLimit).Get("/stats", cacheHandler.Stats)
				r.With(adminLimit).Post("/probe", cacheHandler.Probe)
			})
		}
	})

	return r
}

// cacheStatus avoids handing the ops handler a typed nil.
func cacheStatus(c *cache.Cache) handler.CacheStatus {
	if c == nil {
		return nil
	}
	return c
}
