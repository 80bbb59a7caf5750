package queue

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSub is a Source backed by a Google Pub/Sub subscription.
type PubSub struct {
	sub *pubsub.Subscription
}

// NewPubSub connects to the named subscription in project. Flow
// control is pinned to one outstanding message: the pipeline uses
// shared per-process resources and relies on this for mutual
// exclusion.
func NewPubSub(ctx context.Context, project, subscription string) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	sub := client.Subscription(subscription)
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	sub.ReceiveSettings.NumGoroutines = 1
	return &PubSub{sub: sub}, nil
}

type pubsubMessage struct {
	m *pubsub.Message
}

func (p pubsubMessage) Attributes() map[string]string { return p.m.Attributes }
func (p pubsubMessage) Ack()                          { p.m.Ack() }

// Receive blocks delivering messages until ctx is cancelled.
func (p *PubSub) Receive(ctx context.Context, h Handler) error {
	return p.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		h(ctx, pubsubMessage{m: m})
	})
}
