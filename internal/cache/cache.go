package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// probeKey is written and read back by connectivity probes.
const probeKey = "health:probe"

// Recorder receives cache hit and miss events. Satisfied by middleware.RoutingMetrics.
type Recorder interface {
	RecordCacheHit(store, kind string)
	RecordCacheMiss(store, kind string)
}

// Emptier is implemented by values that may carry nothing worth caching.
type Emptier interface {
	Empty() bool
}

// Distancer is implemented by values whose size drives the route TTL tiers.
type Distancer interface {
	CacheDistance() float64
}

// Config holds configuration for the adaptive cache.
type Config struct {
	// Store is the backing key-value store.
	Store Store

	// Logger for cache operations.
	Logger zerolog.Logger

	// Usage counts hits per key (default: a fresh MemoryUsageCounter).
	Usage UsageCounter

	// Policy decides entry lifetimes (default: DefaultTTLPolicy).
	Policy *TTLPolicy

	// Metrics records hits and misses (optional).
	Metrics Recorder

	// ProbeTimeout bounds a connectivity probe (default: 3 seconds).
	ProbeTimeout time.Duration
}

// Cache memoizes results in a Store with usage-sensitive TTLs.
// When the store fails the cache degrades to a pass-through: reads miss and writes report false.
type Cache struct {
	store        Store
	logger       zerolog.Logger
	usage        UsageCounter
	policy       *TTLPolicy
	metrics      Recorder
	probeTimeout time.Duration

	available atomic.Bool
	hits      atomic.Int64
	misses    atomic.Int64
}

// envelope tags a stored value with its Go type so reads of a different type miss.
type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// New creates a cache and probes the store once.
func New(ctx context.Context, cfg Config) *Cache {
	usage := cfg.Usage
	if usage == nil {
		usage = NewMemoryUsageCounter()
	}

	policy := cfg.Policy
	if policy == nil {
		policy = DefaultTTLPolicy()
	}

	probeTimeout := cfg.ProbeTimeout
	if probeTimeout == 0 {
		probeTimeout = 3 * time.Second
	}

	c := &Cache{
		store:        cfg.Store,
		logger:       cfg.Logger,
		usage:        usage,
		policy:       policy,
		metrics:      cfg.Metrics,
		probeTimeout: probeTimeout,
	}

	if err := c.Probe(ctx); err != nil {
		c.logger.Warn().Err(err).
			Str("store", c.storeName()).
			Msg("cache store unavailable at startup, running without cache")
	}

	return c
}

// Available reports whether the store is currently usable.
func (c *Cache) Available() bool {
	return c != nil && c.store != nil && c.available.Load()
}

// Backend names the backing store.
func (c *Cache) Backend() string {
	return c.storeName()
}

// Probe writes and reads back a marker value and updates availability accordingly.
func (c *Cache) Probe(ctx context.Context) error {
	if c.store == nil {
		c.available.Store(false)
		return ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	err := c.roundTrip(ctx)
	wasAvailable := c.available.Swap(err == nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !wasAvailable {
		c.logger.Info().
			Str("store", c.storeName()).
			Msg("cache store available")
	}
	return nil
}

func (c *Cache) roundTrip(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return err
	}

	marker := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	if err := c.store.Set(ctx, probeKey, marker, time.Minute); err != nil {
		return err
	}

	got, err := c.store.Get(ctx, probeKey)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, marker) {
		return errors.New("probe value mismatch")
	}
	return nil
}

// StartProbing re-probes the store every interval until ctx is done.
func (c *Cache) StartProbing(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Probe(ctx); err != nil && ctx.Err() == nil {
					c.logger.Debug().Err(err).
						Str("store", c.storeName()).
						Msg("cache probe failed")
				}
			}
		}
	}()
}

// Get reads key as a T. Absent, expired, mistyped and undecodable entries all miss.
// A hit increments the key's usage count.
func Get[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	if !c.Available() {
		return zero, false
	}

	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		c.recordMiss(key)
		return zero, false
	}
	if err != nil {
		c.storeFailed(ctx, err, "get", key)
		return zero, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn().Err(err).Str("cache_key", key).Msg("discarding undecodable cache entry")
		c.recordMiss(key)
		return zero, false
	}

	want := kindOf(reflect.TypeFor[T]())
	if env.Kind != want {
		c.logger.Debug().
			Str("cache_key", key).
			Str("stored_kind", env.Kind).
			Str("wanted_kind", want).
			Msg("cache entry type mismatch")
		c.recordMiss(key)
		return zero, false
	}

	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		c.logger.Warn().Err(err).Str("cache_key", key).Msg("discarding undecodable cache entry")
		c.recordMiss(key)
		return zero, false
	}

	usage := c.usage.Increment(key)
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.RecordCacheHit(c.storeName(), keyKind(key))
	}

	c.logger.Debug().
		Str("cache_key", key).
		Int64("usage", usage).
		Msg("cache hit")

	return v, true
}

// Set stores value under key with a TTL derived from the key's usage so far.
// Returns false when the cache is unavailable, the value is empty, or the write fails.
func (c *Cache) Set(ctx context.Context, key string, value any) bool {
	if !c.Available() {
		return false
	}
	if e, ok := value.(Emptier); ok && e.Empty() {
		c.logger.Debug().Str("cache_key", key).Msg("refusing to cache empty value")
		return false
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error().Err(err).Str("cache_key", key).Msg("failed to encode cache value")
		return false
	}

	raw, err := json.Marshal(envelope{Kind: kindOf(reflect.TypeOf(value)), Data: data})
	if err != nil {
		c.logger.Error().Err(err).Str("cache_key", key).Msg("failed to encode cache value")
		return false
	}

	var distance float64
	if d, ok := value.(Distancer); ok {
		distance = d.CacheDistance()
	}
	usage := c.usage.Count(key)
	ttl := c.policy.TTL(key, usage, distance)

	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.storeFailed(ctx, err, "set", key)
		return false
	}

	c.logger.Debug().
		Str("cache_key", key).
		Int64("usage", usage).
		Dur("ttl", ttl).
		Msg("cache set")

	return true
}

// TTLFor returns the lifetime a write of value under key would get now.
func (c *Cache) TTLFor(key string, value any) time.Duration {
	var distance float64
	if d, ok := value.(Distancer); ok {
		distance = d.CacheDistance()
	}
	return c.policy.TTL(key, c.usage.Count(key), distance)
}

// Usage returns the recorded hit count for key.
func (c *Cache) Usage(key string) int64 {
	return c.usage.Count(key)
}

// Close closes the backing store.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func (c *Cache) recordMiss(key string) {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(c.storeName(), keyKind(key))
	}
	c.logger.Debug().Str("cache_key", key).Msg("cache miss")
}

// storeFailed disables the cache unless the failure came from the caller's own
// context ending, which says nothing about the store.
func (c *Cache) storeFailed(ctx context.Context, err error, op, key string) {
	if ctx.Err() != nil {
		c.logger.Debug().Err(err).
			Str("cache_key", key).
			Str("operation", op).
			Msg("cache operation abandoned by caller")
		return
	}
	c.markUnavailable(err, op)
}

func (c *Cache) markUnavailable(err error, op string) {
	if c.available.Swap(false) {
		c.logger.Warn().Err(err).
			Str("store", c.storeName()).
			Str("operation", op).
			Msg("cache store failed, disabling cache until next successful probe")
	}
}

func (c *Cache) storeName() string {
	if c.store == nil {
		return "none"
	}
	return c.store.Name()
}

func keyKind(key string) string {
	switch {
	case strings.HasPrefix(key, RoutePrefix):
		return "route"
	case strings.HasPrefix(key, PlacePrefix):
		return "place"
	default:
		return "other"
	}
}

// kindOf names a type for the envelope. Pointers are dereferenced so *T and T agree.
func kindOf(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}
