// Package resilience guards outbound routing provider calls with circuit
// breakers and tracks provider health for the ops endpoints.
package resilience

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the circuit breaker in front of one provider.
type BreakerSettings struct {
	// HalfOpenProbes is the number of requests let through while half-open.
	HalfOpenProbes uint32

	// ResetInterval clears the closed-state counts periodically.
	ResetInterval time.Duration

	// OpenFor is how long the breaker stays open before probing.
	OpenFor time.Duration

	// Trip decides when a closed breaker opens.
	Trip func(counts gobreaker.Counts) bool

	// OnStateChange observes transitions (optional).
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerSettings returns the settings used for routing providers.
// A failed external lookup only costs the alternatives it would have added,
// so the breaker opens early and probes again after a short pause.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		HalfOpenProbes: 1,
		ResetInterval:  2 * time.Minute,
		OpenFor:        30 * time.Second,
		Trip:           TripPolicy(5, 10, 0.5),
	}
}

// TripPolicy opens the breaker after consecutive failures, or once at least
// minRequests have been seen and the failure ratio reaches ratio.
func TripPolicy(consecutive, minRequests uint32, ratio float64) func(gobreaker.Counts) bool {
	return func(c gobreaker.Counts) bool {
		if c.ConsecutiveFailures >= consecutive {
			return true
		}
		if c.Requests < minRequests || c.Requests == 0 {
			return false
		}
		return float64(c.TotalFailures)/float64(c.Requests) >= ratio
	}
}

// LogStateChanges returns an OnStateChange hook. Opening logs at warn.
func LogStateChanges(logger zerolog.Logger) func(name string, from, to gobreaker.State) {
	return func(name string, from, to gobreaker.State) {
		event := logger.Info()
		if to == gobreaker.StateOpen {
			event = logger.Warn()
		}
		event.
			Str("provider", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit breaker state changed")
	}
}

func newBreaker[T any](name string, s BreakerSettings) *gobreaker.CircuitBreaker[T] {
	trip := s.Trip
	if trip == nil {
		trip = DefaultBreakerSettings().Trip
	}
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          name,
		MaxRequests:   s.HalfOpenProbes,
		Interval:      s.ResetInterval,
		Timeout:       s.OpenFor,
		ReadyToTrip:   trip,
		OnStateChange: s.OnStateChange,
	})
}
