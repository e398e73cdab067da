// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kmerroute/kmerroute/internal/routing"
)

// Cache backends.
const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// Config is the full service configuration.
type Config struct {
	Port        string
	Environment string

	OTelEnabled     bool
	OTLPEndpoint    string
	OTelSampleRatio float64

	// AllowedOrigins lists CORS origins. Empty allows any origin.
	AllowedOrigins []string

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool

	Region routing.Bounds

	OSRM    OSRMConfig
	Graph   GraphConfig
	Cache   CacheConfig
	Routing RoutingConfig
	PubSub  PubSubConfig
}

// OSRMConfig configures the external routing service.
type OSRMConfig struct {
	BaseURL string
	Timeout time.Duration
}

// GraphConfig names the road network tables.
type GraphConfig struct {
	NodeTable string
	EdgeTable string
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	Backend       string
	MemorySize    int
	ProbeInterval time.Duration

	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool
}

// RoutingConfig configures the orchestrator.
type RoutingConfig struct {
	CoalesceMisses bool
}

// PubSubConfig configures event publishing. Publishing is disabled without a project.
type PubSubConfig struct {
	ProjectID    string
	RouteTopic   string
	PlaceTopic   string
	Subscription string
}

// Enabled reports whether a Pub/Sub project is configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != ""
}

// FromEnv reads the configuration from environment variables.
func FromEnv() (Config, error) {
	var errs []error

	cfg := Config{
		Port:            getEnvOrDefault("APP_PORT", "8080"),
		Environment:     getEnvOrDefault("APP_ENV", "development"),
		OTelEnabled:     getBool("OTEL_ENABLED", false, &errs),
		OTLPEndpoint:    getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getFloat("OTEL_SAMPLE_RATIO", 1, &errs),
		AllowedOrigins:  getList("CORS_ALLOWED_ORIGINS"),
		RequireTLS:      getBool("REQUIRE_TLS", false, &errs),
		Region: routing.Bounds{
			MinLat: getFloat("REGION_MIN_LAT", routing.DefaultBounds.MinLat, &errs),
			MaxLat: getFloat("REGION_MAX_LAT", routing.DefaultBounds.MaxLat, &errs),
			MinLng: getFloat("REGION_MIN_LNG", routing.DefaultBounds.MinLng, &errs),
			MaxLng: getFloat("REGION_MAX_LNG", routing.DefaultBounds.MaxLng, &errs),
		},
		OSRM: OSRMConfig{
			BaseURL: getEnvOrDefault("OSRM_BASE_URL", "https://router.project-osrm.org"),
			Timeout: getDuration("OSRM_TIMEOUT", 10*time.Second, &errs),
		},
		Graph: GraphConfig{
			NodeTable: getEnvOrDefault("GRAPH_NODE_TABLE", "lieux"),
			EdgeTable: getEnvOrDefault("GRAPH_EDGE_TABLE", "routes"),
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(getEnvOrDefault("CACHE_BACKEND", CacheBackendRedis)),
			MemorySize:    getInt("CACHE_MEMORY_SIZE", 10000, &errs),
			ProbeInterval: getDuration("CACHE_PROBE_INTERVAL", 30*time.Second, &errs),
			RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			RedisUsername: os.Getenv("REDIS_USERNAME"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       getInt("REDIS_DB", 0, &errs),
			RedisTLS:      getBool("REDIS_TLS", false, &errs),
		},
		Routing: RoutingConfig{
			CoalesceMisses: getBool("ROUTING_COALESCE_MISSES", false, &errs),
		},
		PubSub: PubSubConfig{
			ProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
			RouteTopic:   getEnvOrDefault("PUBSUB_ROUTE_TOPIC", "route-calculated"),
			PlaceTopic:   getEnvOrDefault("PUBSUB_PLACE_TOPIC", "place-searched"),
			Subscription: getEnvOrDefault("PUBSUB_SUBSCRIPTION", "kmerroute-worker"),
		},
	}

	if err := cfg.Region.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("region: %w", err))
	}
	switch cfg.Cache.Backend {
	case CacheBackendRedis, CacheBackendMemory:
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND: unknown backend %q", cfg.Cache.Backend))
	}

	return cfg, errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getList splits a comma-separated value, dropping blanks.
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getInt(key string, defaultValue int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64, errs *[]error) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool, errs *[]error) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}
