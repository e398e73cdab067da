// Package events defines the route and place events emitted by the API and
// consumed by the worker, and publishes them over Cloud Pub/Sub.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event types carried in the event_type message attribute.
const (
	TypeRouteCalculated = "route_calculated"
	TypePlaceSearched   = "place_searched"
	TypeCacheWarmup     = "cache_warmup"
)

// Message attribute names.
const (
	AttrEventType = "event_type"
	AttrKey       = "key"
)

// ErrUnknownEventType is returned when decoding a message with an unrecognised event type.
var ErrUnknownEventType = errors.New("unknown event type")

// RouteCalculated is emitted after a route was computed successfully.
type RouteCalculated struct {
	StartPlace string  `json:"startPlace"`
	EndPlace   string  `json:"endPlace"`
	Distance   float64 `json:"distance"`
	Duration   float64 `json:"duration"`
	Mode       string  `json:"mode"`
	// Timestamp is in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// NewRouteCalculated builds a RouteCalculated event stamped with now.
func NewRouteCalculated(startPlace, endPlace string, distance, duration float64, mode string, now time.Time) RouteCalculated {
	return RouteCalculated{
		StartPlace: startPlace,
		EndPlace:   endPlace,
		Distance:   distance,
		Duration:   duration,
		Mode:       mode,
		Timestamp:  now.UnixMilli(),
	}
}

// Key is the message key, "start-end".
func (e RouteCalculated) Key() string {
	return e.StartPlace + "-" + e.EndPlace
}

// PlaceSearched is emitted after a place lookup.
type PlaceSearched struct {
	Query        string `json:"query"`
	ResultsCount int    `json:"resultsCount"`
	Timestamp    int64  `json:"timestamp"`
}

// NewPlaceSearched builds a PlaceSearched event stamped with now.
func NewPlaceSearched(query string, resultsCount int, now time.Time) PlaceSearched {
	return PlaceSearched{Query: query, ResultsCount: resultsCount, Timestamp: now.UnixMilli()}
}

// Key is the message key, the query text.
func (e PlaceSearched) Key() string {
	return e.Query
}

// CacheWarmup asks the worker to pre-compute its configured corridors.
type CacheWarmup struct {
	Requested int64 `json:"requested"`
}

// Message is a transport-neutral event message.
type Message struct {
	ID          string
	Data        []byte
	Attributes  map[string]string
	PublishTime time.Time
}

// Type returns the message's event type attribute.
func (m Message) Type() string {
	return m.Attributes[AttrEventType]
}

// Encode wraps an event in a Message.
func Encode(eventType, key string, event any) (Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return Message{}, fmt.Errorf("encoding %s event: %w", eventType, err)
	}
	return Message{
		Data: data,
		Attributes: map[string]string{
			AttrEventType: eventType,
			AttrKey:       key,
		},
	}, nil
}

// Decode parses a message into one of RouteCalculated, PlaceSearched or CacheWarmup.
func Decode(msg Message) (any, error) {
	switch msg.Type() {
	case TypeRouteCalculated:
		var e RouteCalculated
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", TypeRouteCalculated, err)
		}
		return e, nil
	case TypePlaceSearched:
		var e PlaceSearched
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", TypePlaceSearched, err)
		}
		return e, nil
	case TypeCacheWarmup:
		var e CacheWarmup
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &e); err != nil {
				return nil, fmt.Errorf("decoding %s: %w", TypeCacheWarmup, err)
			}
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, msg.Type())
	}
}
