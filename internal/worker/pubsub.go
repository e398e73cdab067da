package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmerroute/kmerroute/internal/events"
)

// EventHandler consumes route and place events from Pub/Sub.
// It implements events.MessageHandler.
type EventHandler struct {
	warmup *WarmupJob
	logger zerolog.Logger

	mu      sync.Mutex
	popular map[string]int64
}

// EventHandlerConfig holds configuration for the event handler.
type EventHandlerConfig struct {
	// Warmup runs on cache_warmup messages (optional).
	Warmup *WarmupJob
	Logger zerolog.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(cfg EventHandlerConfig) *EventHandler {
	return &EventHandler{
		warmup:  cfg.Warmup,
		logger:  cfg.Logger,
		popular: make(map[string]int64),
	}
}

// HandleMessage processes one message. Malformed and unknown messages are
// acked and dropped so they are not redelivered.
func (h *EventHandler) HandleMessage(ctx context.Context, msg events.Message) bool {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("event_type", msg.Type()).
		Logger()

	logger.Debug().Msg("received pubsub message")

	decoded, err := events.Decode(msg)
	if err != nil {
		logger.Warn().Err(err).Msg("dropping undecodable message")
		return true
	}

	switch evt := decoded.(type) {
	case events.RouteCalculated:
		h.handleRouteCalculated(logger, evt)
	case events.PlaceSearched:
		logger.Info().
			Str("query", evt.Query).
			Int("results_count", evt.ResultsCount).
			Msg("place searched")
	case events.CacheWarmup:
		if !h.handleWarmup(ctx, logger) {
			return false
		}
	}

	logger.Debug().
		Dur("duration", time.Since(startTime)).
		Msg("message processed")

	return true
}

func (h *EventHandler) handleRouteCalculated(logger zerolog.Logger, evt events.RouteCalculated) {
	h.mu.Lock()
	h.popular[evt.Key()]++
	count := h.popular[evt.Key()]
	h.mu.Unlock()

	logger.Info().
		Str("start_place", evt.StartPlace).
		Str("end_place", evt.EndPlace).
		Str("mode", evt.Mode).
		Float64("distance", evt.Distance).
		Float64("duration", evt.Duration).
		Int64("seen", count).
		Msg("route calculated")
}

// handleWarmup reports whether the message should be acked.
func (h *EventHandler) handleWarmup(ctx context.Context, logger zerolog.Logger) bool {
	if h.warmup == nil {
		logger.Warn().Msg("cache warm-up requested but not configured")
		return true
	}

	result := h.warmup.Run(ctx)

	// Retry the run if more than half the corridors failed.
	if result.Failed > result.Warmed {
		logger.Error().
			Int("failed", result.Failed).
			Int("total_routes", result.TotalRoutes).
			Msg("cache warm-up failed")
		return false
	}
	return true
}

// RouteCount is a start-end pair and how often it was calculated.
type RouteCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// TopRoutes returns the n most calculated start-end pairs, most frequent first.
func (h *EventHandler) TopRoutes(n int) []RouteCount {
	h.mu.Lock()
	counts := make([]RouteCount, 0, len(h.popular))
	for k, c := range h.popular {
		counts = append(counts, RouteCount{Key: k, Count: c})
	}
	h.mu.Unlock()

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Key < counts[j].Key
	})

	if n >= 0 && len(counts) > n {
		counts = counts[:n]
	}
	return counts
}
