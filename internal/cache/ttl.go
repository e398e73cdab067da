package cache

import (
	"strings"
	"time"
)

// Rule is one row of a TTL policy. The first rule whose prefix and predicate match wins.
type Rule struct {
	Prefix string
	// Match receives the key's usage count and the value's distance. Nil matches everything.
	Match func(usage int64, distance float64) bool
	TTL   time.Duration
}

// TTLPolicy decides how long an entry lives, evaluated when it is written.
type TTLPolicy struct {
	rules    []Rule
	fallback time.Duration
}

// NewTTLPolicy creates a policy from ordered rules and a fallback for unmatched keys.
func NewTTLPolicy(rules []Rule, fallback time.Duration) *TTLPolicy {
	return &TTLPolicy{rules: rules, fallback: fallback}
}

func usageAbove(n int64) func(int64, float64) bool {
	return func(usage int64, _ float64) bool { return usage > n }
}

func distanceAbove(d float64) func(int64, float64) bool {
	return func(_ int64, distance float64) bool { return distance > d }
}

// DefaultTTLPolicy returns the place and route tiers.
func DefaultTTLPolicy() *TTLPolicy {
	return NewTTLPolicy([]Rule{
		{Prefix: PlacePrefix, Match: usageAbove(10), TTL: 24 * time.Hour},
		{Prefix: PlacePrefix, Match: usageAbove(5), TTL: 12 * time.Hour},
		{Prefix: PlacePrefix, Match: usageAbove(2), TTL: 6 * time.Hour},
		{Prefix: PlacePrefix, TTL: 2 * time.Hour},

		{Prefix: RoutePrefix, Match: usageAbove(15), TTL: 72 * time.Hour},
		{Prefix: RoutePrefix, Match: usageAbove(8), TTL: 48 * time.Hour},
		{Prefix: RoutePrefix, Match: distanceAbove(100), TTL: 48 * time.Hour},
		{Prefix: RoutePrefix, Match: distanceAbove(50), TTL: 24 * time.Hour},
		{Prefix: RoutePrefix, Match: distanceAbove(20), TTL: 12 * time.Hour},
		{Prefix: RoutePrefix, TTL: 6 * time.Hour},
	}, time.Hour)
}

// TTL returns the lifetime for key given its usage count and the value's distance.
func (p *TTLPolicy) TTL(key string, usage int64, distance float64) time.Duration {
	for _, rule := range p.rules {
		if !strings.HasPrefix(key, rule.Prefix) {
			continue
		}
		if rule.Match == nil || rule.Match(usage, distance) {
			return rule.TTL
		}
	}
	return p.fallback
}
