package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Default topic names.
const (
	DefaultRouteTopic = "route-calculated"
	DefaultPlaceTopic = "place-searched"
)

// Transport delivers encoded messages to a topic.
type Transport interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Close() error
}

// PublisherConfig holds configuration for the event publisher.
type PublisherConfig struct {
	// Transport delivers messages. If nil, events are dropped.
	Transport Transport

	// RouteTopic receives RouteCalculated events (default: route-calculated).
	RouteTopic string

	// PlaceTopic receives PlaceSearched events (default: place-searched).
	PlaceTopic string

	// Timeout bounds each publish (default: 5s).
	Timeout time.Duration

	Logger zerolog.Logger
	Now    func() time.Time
}

// Publisher emits domain events in the background. Publishing never blocks or
// fails the caller; failures are logged.
type Publisher struct {
	transport  Transport
	routeTopic string
	placeTopic string
	timeout    time.Duration
	logger     zerolog.Logger
	now        func() time.Time

	wg sync.WaitGroup
}

// NewPublisher creates a new event publisher.
func NewPublisher(cfg PublisherConfig) *Publisher {
	if cfg.RouteTopic == "" {
		cfg.RouteTopic = DefaultRouteTopic
	}
	if cfg.PlaceTopic == "" {
		cfg.PlaceTopic = DefaultPlaceTopic
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Publisher{
		transport:  cfg.Transport,
		routeTopic: cfg.RouteTopic,
		placeTopic: cfg.PlaceTopic,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
}

// RouteCalculated publishes a RouteCalculated event for a computed route.
func (p *Publisher) RouteCalculated(ctx context.Context, startPlace, endPlace string, distance, duration float64, mode string) {
	evt := NewRouteCalculated(startPlace, endPlace, distance, duration, mode, p.now())
	p.publish(ctx, p.routeTopic, TypeRouteCalculated, evt.Key(), evt)
}

// PlaceSearched publishes a PlaceSearched event.
func (p *Publisher) PlaceSearched(ctx context.Context, query string, resultsCount int) {
	evt := NewPlaceSearched(query, resultsCount, p.now())
	p.publish(ctx, p.placeTopic, TypePlaceSearched, evt.Key(), evt)
}

func (p *Publisher) publish(ctx context.Context, topic, eventType, key string, event any) {
	if p.transport == nil {
		p.logger.Debug().Str("event_type", eventType).Msg("event publishing disabled")
		return
	}

	msg, err := Encode(eventType, key, event)
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to encode event")
		return
	}

	// The request may finish before the publish does.
	ctx = context.WithoutCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		if err := p.transport.Publish(pubCtx, topic, msg); err != nil {
			p.logger.Warn().Err(err).
				Str("topic", topic).
				Str("event_type", eventType).
				Str("key", key).
				Msg("failed to publish event")
			return
		}

		p.logger.Debug().
			Str("topic", topic).
			Str("event_type", eventType).
			Str("key", key).
			Msg("event published")
	}()
}

// Flush waits for in-flight publishes.
func (p *Publisher) Flush() {
	p.wg.Wait()
}

// Close flushes pending events and closes the transport.
func (p *Publisher) Close() error {
	p.Flush()
	if p.transport == nil {
		return nil
	}
	return p.transport.Close()
}
