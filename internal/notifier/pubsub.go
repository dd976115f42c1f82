package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/cantikdist/edge-intake/internal/pipeline"
)

// PubSub publishes lead records to a Cloud Pub/Sub topic.
type PubSub struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSub connects to the project and binds the topic.
func NewPubSub(ctx context.Context, projectID, topicName string) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSub{
		client: client,
		topic:  client.Topic(topicName),
	}, nil
}

// Notify publishes one record and waits for the server ack.
func (p *PubSub) Notify(ctx context.Context, rec pipeline.Record) error {
	if p == nil || p.topic == nil {
		return fmt.Errorf("pubsub notifier is not configured")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"idempotency_key": rec.IdempotencyKey,
		},
	}
	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}

// Provider names the transport for metrics and logs.
func (*PubSub) Provider() string {
	return "pubsub"
}

// Close releases the topic and client.
func (p *PubSub) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
