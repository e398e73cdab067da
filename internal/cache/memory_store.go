package cache

import (
	"context"
	"fmt"
	"path"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryStoreConfig holds configuration for the in-process store.
type MemoryStoreConfig struct {
	// Size is the maximum number of entries (default: 10000).
	// The least recently used entry is evicted when full.
	Size int

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// MemoryStore is a bounded in-process Store. Used when no Redis is configured and in tests.
type MemoryStore struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates a new in-process store.
func NewMemoryStore(cfg MemoryStoreConfig) (*MemoryStore, error) {
	size := cfg.Size
	if size <= 0 {
		size = 10000
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}

	return &MemoryStore{entries: entries, now: now}, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := s.entries.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		s.entries.Remove(key)
		return nil, ErrNotFound
	}
	return entry.value, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("invalid ttl %s for key %q", ttl, key)
	}
	s.entries.Add(key, memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: s.now().Add(ttl),
	})
	return nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Keys implements Store. Expired entries are skipped.
func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	now := s.now()
	var keys []string
	for _, key := range s.entries.Keys() {
		entry, ok := s.entries.Peek(key)
		if !ok || !now.Before(entry.expiresAt) {
			continue
		}
		matched, err := path.Match(pattern, key)
		if err != nil {
			return nil, fmt.Errorf("match pattern %q: %w", pattern, err)
		}
		if matched {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.entries.Purge()
	return nil
}

// Name implements Store.
func (s *MemoryStore) Name() string {
	return "memory"
}
