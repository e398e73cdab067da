package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmerroute/kmerroute/internal/events"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type published struct {
	topic string
	msg   events.Message
}

type recordingTransport struct {
	mu     sync.Mutex
	sent   []published
	err    error
	closed bool
}

func (t *recordingTransport) Publish(_ context.Context, topic string, msg events.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, published{topic: topic, msg: msg})
	return nil
}

func (t *recordingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *recordingTransport) messages() []published {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]published(nil), t.sent...)
}

func TestRouteCalculated_Key(t *testing.T) {
	evt := events.NewRouteCalculated("Akwa", "Bonanjo", 5.2, 0.3, "driving", fixedNow)

	assert.Equal(t, "Akwa-Bonanjo", evt.Key())
	assert.Equal(t, fixedNow.UnixMilli(), evt.Timestamp)
}

func TestEncode_UsesWireFieldNames(t *testing.T) {
	evt := events.NewRouteCalculated("Akwa", "Bonanjo", 5.2, 0.3, "driving", fixedNow)

	msg, err := events.Encode(events.TypeRouteCalculated, evt.Key(), evt)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &raw))
	assert.Equal(t, "Akwa", raw["startPlace"])
	assert.Equal(t, "Bonanjo", raw["endPlace"])
	assert.Equal(t, "driving", raw["mode"])
	assert.Contains(t, raw, "timestamp")

	assert.Equal(t, events.TypeRouteCalculated, msg.Type())
	assert.Equal(t, "Akwa-Bonanjo", msg.Attributes[events.AttrKey])
}

func TestDecode(t *testing.T) {
	route := events.NewRouteCalculated("Mvan", "Poste Centrale", 12, 0.5, "taxi", fixedNow)
	routeMsg, err := events.Encode(events.TypeRouteCalculated, route.Key(), route)
	require.NoError(t, err)

	decoded, err := events.Decode(routeMsg)
	require.NoError(t, err)
	assert.Equal(t, route, decoded)

	place := events.NewPlaceSearched("marché central", 4, fixedNow)
	placeMsg, err := events.Encode(events.TypePlaceSearched, place.Key(), place)
	require.NoError(t, err)

	decoded, err = events.Decode(placeMsg)
	require.NoError(t, err)
	assert.Equal(t, place, decoded)

	decoded, err = events.Decode(events.Message{Attributes: map[string]string{events.AttrEventType: events.TypeCacheWarmup}})
	require.NoError(t, err)
	assert.Equal(t, events.CacheWarmup{}, decoded)
}

func TestDecode_Errors(t *testing.T) {
	_, err := events.Decode(events.Message{Attributes: map[string]string{events.AttrEventType: "refresh"}})
	assert.ErrorIs(t, err, events.ErrUnknownEventType)

	_, err = events.Decode(events.Message{})
	assert.ErrorIs(t, err, events.ErrUnknownEventType)

	_, err = events.Decode(events.Message{
		Data:       []byte(`{"startPlace":`),
		Attributes: map[string]string{events.AttrEventType: events.TypeRouteCalculated},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, events.ErrUnknownEventType)
}

func TestPublisher_RouteCalculated(t *testing.T) {
	transport := &recordingTransport{}
	pub := events.NewPublisher(events.PublisherConfig{
		Transport: transport,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return fixedNow },
	})

	pub.RouteCalculated(context.Background(), "Akwa", "Bonanjo", 5.2, 0.3, "driving")
	pub.Flush()

	sent := transport.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, events.DefaultRouteTopic, sent[0].topic)
	assert.Equal(t, "Akwa-Bonanjo", sent[0].msg.Attributes[events.AttrKey])

	decoded, err := events.Decode(sent[0].msg)
	require.NoError(t, err)
	assert.Equal(t, events.RouteCalculated{
		StartPlace: "Akwa",
		EndPlace:   "Bonanjo",
		Distance:   5.2,
		Duration:   0.3,
		Mode:       "driving",
		Timestamp:  fixedNow.UnixMilli(),
	}, decoded)
}

func TestPublisher_PlaceSearchedCustomTopic(t *testing.T) {
	transport := &recordingTransport{}
	pub := events.NewPublisher(events.PublisherConfig{
		Transport:  transport,
		PlaceTopic: "places",
		Logger:     zerolog.Nop(),
	})

	pub.PlaceSearched(context.Background(), "bastos", 2)
	pub.Flush()

	sent := transport.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "places", sent[0].topic)
	assert.Equal(t, events.TypePlaceSearched, sent[0].msg.Type())
}

func TestPublisher_CancelledRequestStillPublishes(t *testing.T) {
	transport := &recordingTransport{}
	pub := events.NewPublisher(events.PublisherConfig{Transport: transport, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	pub.RouteCalculated(ctx, "A", "B", 1, 1, "walking")
	cancel()
	pub.Flush()

	assert.Len(t, transport.messages(), 1)
}

func TestPublisher_FailureIsLoggedNotReturned(t *testing.T) {
	var buf bytes.Buffer
	transport := &recordingTransport{err: errors.New("topic not found")}
	pub := events.NewPublisher(events.PublisherConfig{
		Transport: transport,
		Logger:    zerolog.New(&buf),
	})

	pub.RouteCalculated(context.Background(), "A", "B", 1, 1, "driving")
	pub.Flush()

	assert.Contains(t, buf.String(), "failed to publish event")
	assert.Contains(t, buf.String(), "topic not found")
}

func TestPublisher_NoTransport(t *testing.T) {
	pub := events.NewPublisher(events.PublisherConfig{Logger: zerolog.Nop()})

	pub.RouteCalculated(context.Background(), "A", "B", 1, 1, "driving")
	pub.PlaceSearched(context.Background(), "q", 0)

	assert.NoError(t, pub.Close())
}

func TestPublisher_CloseClosesTransport(t *testing.T) {
	transport := &recordingTransport{}
	pub := events.NewPublisher(events.PublisherConfig{Transport: transport, Logger: zerolog.Nop()})

	pub.RouteCalculated(context.Background(), "A", "B", 1, 1, "driving")
	require.NoError(t, pub.Close())

	assert.Len(t, transport.messages(), 1)
	assert.True(t, transport.closed)
}
