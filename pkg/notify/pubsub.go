package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/marketops/delivery-engine/pkg/store"
	"github.com/marketops/delivery-engine/pkg/types"
)

// PubSubNotifier persists each notification document and publishes it to a
// Pub/Sub topic for online consumers (console websocket fan-out, email
// digests).
type PubSubNotifier struct {
	client *pubsub.Client
	topic  string
	store  store.Store
}

// NewPubSubNotifier creates a notifier publishing to the named topic.
func NewPubSubNotifier(ctx context.Context, projectID, topic string, st store.Store, opts ...option.ClientOption) (*PubSubNotifier, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSubNotifier{client: client, topic: topic, store: st}, nil
}

// Close closes the underlying client.
func (p *PubSubNotifier) Close() error {
	return p.client.Close()
}

// Notify implements Notifier. The document write happens first; a publish
// failure after a successful write is returned so the caller can log it, but
// the notification is already durable.
func (p *PubSubNotifier) Notify(ctx context.Context, n types.Notification) error {
	if err := p.store.CreateNotification(ctx, &n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	topic := p.client.Topic(p.topic)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check topic existence: %w", err)
	}
	if !exists {
		if _, err := p.client.CreateTopic(ctx, p.topic); err != nil {
			return fmt.Errorf("create topic: %w", err)
		}
	}

	result := topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"severity": string(n.Severity),
			"username": n.Username,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
