// Package cache provides the adaptive result cache in front of route computation.
package cache

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for cache operations.
var (
	// ErrNotFound indicates the key is absent or expired.
	ErrNotFound = errors.New("cache key not found")
	// ErrUnavailable indicates the backing store cannot be reached.
	ErrUnavailable = errors.New("cache store unavailable")
)

// Store is a key-value store with per-entry expiry.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Keys returns the live keys matching a glob pattern such as "r:*".
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Close releases the store's resources.
	Close() error
	// Name identifies the backend in logs and stats.
	Name() string
}
