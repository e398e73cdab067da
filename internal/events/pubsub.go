package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubTransport publishes messages to Cloud Pub/Sub topics.
type PubSubTransport struct {
	client     *pubsub.Client
	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewPubSubTransport creates a Pub/Sub client for the project.
func NewPubSubTransport(ctx context.Context, projectID string) (*PubSubTransport, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return NewPubSubTransportFromClient(client), nil
}

// NewPubSubTransportFromClient wraps an existing Pub/Sub client.
func NewPubSubTransportFromClient(client *pubsub.Client) *PubSubTransport {
	return &PubSubTransport{
		client:     client,
		publishers: make(map[string]*pubsub.Publisher),
	}
}

// Publish sends msg to topic and waits for the server acknowledgement.
func (t *PubSubTransport) Publish(ctx context.Context, topic string, msg Message) error {
	result := t.publisher(topic).Publish(ctx, &pubsub.Message{
		Data:       msg.Data,
		Attributes: msg.Attributes,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

func (t *PubSubTransport) publisher(topic string) *pubsub.Publisher {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.publishers[topic]
	if !ok {
		p = t.client.Publisher(topic)
		t.publishers[topic] = p
	}
	return p
}

// Close stops all publishers and closes the client.
func (t *PubSubTransport) Close() error {
	t.mu.Lock()
	for _, p := range t.publishers {
		p.Stop()
	}
	t.publishers = map[string]*pubsub.Publisher{}
	t.mu.Unlock()

	return t.client.Close()
}

// MessageHandler processes a message and reports whether it should be acked.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg Message) bool
}

// SubscriberConfig holds configuration for the Pub/Sub subscriber.
type SubscriberConfig struct {
	ProjectID        string
	SubscriptionName string
	Handler          MessageHandler
	Logger           zerolog.Logger
}

// Subscriber receives messages from a Pub/Sub subscription.
type Subscriber struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	handler          MessageHandler
	logger           zerolog.Logger
}

// NewSubscriber creates a new Pub/Sub subscriber.
func NewSubscriber(ctx context.Context, cfg SubscriberConfig) (*Subscriber, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &Subscriber{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		handler:          cfg.Handler,
		logger:           cfg.Logger,
	}, nil
}

// Start blocks receiving messages until ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	s.logger.Info().
		Str("subscription", s.subscriptionName).
		Msg("starting pubsub subscriber")

	return s.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		ack := s.handler.HandleMessage(ctx, Message{
			ID:          msg.ID,
			Data:        msg.Data,
			Attributes:  msg.Attributes,
			PublishTime: msg.PublishTime,
		})
		if ack {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}

// Close closes the Pub/Sub client.
func (s *Subscriber) Close() error {
	return s.client.Close()
}
