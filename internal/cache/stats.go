package cache

import (
	"context"
	"fmt"
	"slices"
)

// Stats is a snapshot of cache counters.
type Stats struct {
	Backend       string `json:"backend"`
	Available     bool   `json:"redis_available"`
	TotalKeys     int    `json:"total_keys"`
	CachedRoutes  int    `json:"cached_routes"`
	CachedPlaces  int    `json:"cached_places"`
	Hits          int64  `json:"cache_hits"`
	Misses        int64  `json:"cache_misses"`
	HitRatio      string `json:"hit_ratio"`
	TrackedKeys   int    `json:"tracked_keys"`
	KeyScanFailed bool   `json:"key_scan_failed,omitempty"`
}

// Stats returns aggregate counters. Key counts are zero while the store is unavailable
// and never include the probe marker.
func (c *Cache) Stats(ctx context.Context) Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	s := Stats{
		Backend:     c.storeName(),
		Available:   c.Available(),
		Hits:        hits,
		Misses:      misses,
		HitRatio:    hitRatio(hits, misses),
		TrackedKeys: c.usage.Len(),
	}
	if !s.Available {
		return s
	}

	counts := make(map[string]int, 3)
	for _, pattern := range []string{"*", RoutePrefix + "*", PlacePrefix + "*"} {
		keys, err := c.store.Keys(ctx, pattern)
		if err != nil {
			c.logger.Warn().Err(err).Str("pattern", pattern).Msg("cache key scan failed")
			s.KeyScanFailed = true
			return s
		}
		if pattern == "*" {
			keys = slices.DeleteFunc(keys, func(k string) bool { return k == probeKey })
		}
		counts[pattern] = len(keys)
	}

	s.TotalKeys = counts["*"]
	s.CachedRoutes = counts[RoutePrefix+"*"]
	s.CachedPlaces = counts[PlacePrefix+"*"]
	return s
}

func hitRatio(hits, misses int64) string {
	total := hits + misses
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(hits)*100/float64(total))
}
