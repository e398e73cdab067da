package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kmerroute/kmerroute/internal/cache"
)

func TestDefaultTTLPolicy(t *testing.T) {
	policy := cache.DefaultTTLPolicy()

	tests := []struct {
		name     string
		key      string
		usage    int64
		distance float64
		want     time.Duration
	}{
		{"place cold", "p:douala", 0, 0, 2 * time.Hour},
		{"place warm", "p:douala", 3, 0, 6 * time.Hour},
		{"place busy", "p:douala", 6, 0, 12 * time.Hour},
		{"place hot", "p:douala", 11, 0, 24 * time.Hour},
		{"place boundary", "p:douala", 10, 0, 12 * time.Hour},
		{"route short", "r:k", 0, 5, 6 * time.Hour},
		{"route medium", "r:k", 0, 21, 12 * time.Hour},
		{"route long", "r:k", 0, 51, 24 * time.Hour},
		{"route very long", "r:k", 0, 101, 48 * time.Hour},
		{"route popular", "r:k", 9, 1, 48 * time.Hour},
		{"route hot", "r:k", 16, 1, 72 * time.Hour},
		{"route usage boundary", "r:k", 15, 1, 48 * time.Hour},
		{"other", "x:k", 100, 1000, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.TTL(tt.key, tt.usage, tt.distance))
		})
	}
}

func TestDefaultTTLPolicy_RouteMonotonic(t *testing.T) {
	policy := cache.DefaultTTLPolicy()

	for _, distance := range []float64{0, 10, 30, 60, 150} {
		prev := time.Duration(0)
		for usage := int64(0); usage <= 30; usage++ {
			ttl := policy.TTL("r:k", usage, distance)
			assert.GreaterOrEqual(t, ttl, prev, "usage %d distance %.0f", usage, distance)
			prev = ttl
		}
	}

	prev := time.Duration(0)
	for distance := 0.0; distance <= 200; distance += 0.5 {
		ttl := policy.TTL("r:k", 0, distance)
		assert.GreaterOrEqual(t, ttl, prev, "distance %.1f", distance)
		prev = ttl
	}
}

func TestTTLPolicy_FirstMatchWins(t *testing.T) {
	policy := cache.NewTTLPolicy([]cache.Rule{
		{Prefix: "a:", TTL: time.Minute},
		{Prefix: "a:", TTL: time.Hour},
	}, time.Second)

	assert.Equal(t, time.Minute, policy.TTL("a:1", 0, 0))
	assert.Equal(t, time.Second, policy.TTL("b:1", 0, 0))
}
