// Package worker runs background jobs for the routing service: cache warm-up
// of popular corridors and consumption of route events.
package worker

import (
	"sort"
	"time"

	"github.com/kmerroute/kmerroute/internal/routing"
)

// WarmupTarget is a corridor whose route is kept in the cache.
type WarmupTarget struct {
	// Name is the human-readable name of the corridor.
	Name string

	Start routing.Point
	End   routing.Point

	// Modes to warm. Defaults to driving only.
	Modes []routing.Mode

	// Priority determines warm-up order (lower = higher priority).
	Priority int
}

// WarmupConfig holds configuration for the cache warm-up job.
type WarmupConfig struct {
	// Targets are the corridors to warm.
	// If empty, uses DefaultWarmupTargets.
	Targets []WarmupTarget

	// Concurrency is the number of concurrent route computations.
	// Default: 3
	Concurrency int

	// Timeout is the timeout for each route computation.
	// Default: 30 seconds
	Timeout time.Duration

	// Interval between scheduled runs.
	// Default: 6 hours, the shortest route TTL tier.
	Interval time.Duration
}

// DefaultWarmupConfig returns the default warm-up configuration.
func DefaultWarmupConfig() WarmupConfig {
	return WarmupConfig{
		Targets:     DefaultWarmupTargets(),
		Concurrency: 3,
		Timeout:     30 * time.Second,
		Interval:    6 * time.Hour,
	}
}

// DefaultWarmupTargets returns busy corridors in Douala, Yaoundé and between
// the major cities.
func DefaultWarmupTargets() []WarmupTarget {
	return []WarmupTarget{
		{
			Name:     "Akwa - Bonanjo",
			Priority: 1,
			Start:    routing.Point{Lat: 4.0511, Lng: 9.7679},
			End:      routing.Point{Lat: 4.0423, Lng: 9.6920},
			Modes:    []routing.Mode{routing.ModeDriving, routing.ModeWalking},
		},
		{
			Name:     "Poste Centrale - Mvan",
			Priority: 1,
			Start:    routing.Point{Lat: 3.8667, Lng: 11.5167},
			End:      routing.Point{Lat: 3.8290, Lng: 11.5190},
			Modes:    []routing.Mode{routing.ModeDriving, routing.ModeWalking},
		},
		{
			Name:     "Douala - Yaoundé",
			Priority: 1,
			Start:    routing.Point{Lat: 4.0511, Lng: 9.7679},
			End:      routing.Point{Lat: 3.8480, Lng: 11.5021},
		},
		{
			Name:     "Douala - Bafoussam",
			Priority: 2,
			Start:    routing.Point{Lat: 4.0511, Lng: 9.7679},
			End:      routing.Point{Lat: 5.4781, Lng: 10.4176},
		},
		{
			Name:     "Yaoundé - Bertoua",
			Priority: 3,
			Start:    routing.Point{Lat: 3.8480, Lng: 11.5021},
			End:      routing.Point{Lat: 4.5774, Lng: 13.6846},
		},
		{
			Name:     "Garoua - Maroua",
			Priority: 3,
			Start:    routing.Point{Lat: 9.3017, Lng: 13.3921},
			End:      routing.Point{Lat: 10.5956, Lng: 14.3247},
		},
	}
}

// warmupItem is one corridor in one mode.
type warmupItem struct {
	target string
	req    routing.DirectRequest
}

// items expands targets into per-mode requests, ordered by priority.
func (c WarmupConfig) items() []warmupItem {
	targets := append([]WarmupTarget(nil), c.Targets...)
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].Priority < targets[j].Priority })

	var items []warmupItem
	for _, t := range targets {
		modes := t.Modes
		if len(modes) == 0 {
			modes = []routing.Mode{routing.ModeDriving}
		}
		for _, m := range modes {
			items = append(items, warmupItem{
				target: t.Name,
				req: routing.DirectRequest{
					Points: []routing.Point{t.Start, t.End},
					Mode:   m,
				},
			})
		}
	}
	return items
}

// TotalRoutes returns the number of corridor and mode combinations to warm.
func (c WarmupConfig) TotalRoutes() int {
	total := 0
	for _, t := range c.Targets {
		if len(t.Modes) == 0 {
			total++
			continue
		}
		total += len(t.Modes)
	}
	return total
}
