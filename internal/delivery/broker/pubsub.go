package broker

import (
	"context"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/apiv1"
	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
)

// PubSubTransport pulls messages from a Pub/Sub subscription one at a time
// using the low-level subscriber API, which exposes explicit ack deadline
// control. The high-level client manages deadlines internally and hides the
// extension knob this adapter needs.
type PubSubTransport struct {
	client       *pubsub.SubscriberClient
	subscription string
}

// NewPubSubTransport connects to the given subscription. Credentials come
// from the ambient environment (application default credentials).
func NewPubSubTransport(ctx context.Context, project, subscriptionID string) (*PubSubTransport, error) {
	client, err := pubsub.NewSubscriberClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create subscriber client: %w", err)
	}
	return &PubSubTransport{
		client:       client,
		subscription: fmt.Sprintf("projects/%s/subscriptions/%s", project, subscriptionID),
	}, nil
}

// Receive blocks until one message is available. MaxMessages of 1 is the flow
// control: the broker never hands this process a second message before the
// first settles.
func (t *PubSubTransport) Receive(ctx context.Context) (*Message, error) {
	for {
		resp, err := t.client.Pull(ctx, &pubsubpb.PullRequest{
			Subscription: t.subscription,
			MaxMessages:  1,
		})
		if err != nil {
			return nil, fmt.Errorf("pull from %s: %w", t.subscription, err)
		}
		if len(resp.ReceivedMessages) == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		received := resp.ReceivedMessages[0]
		return &Message{Body: received.GetMessage().GetData(), handle: received.GetAckId()}, nil
	}
}

func (t *PubSubTransport) Ack(ctx context.Context, msg *Message) error {
	ackID, err := t.ackID(msg)
	if err != nil {
		return err
	}
	return t.client.Acknowledge(ctx, &pubsubpb.AcknowledgeRequest{
		Subscription: t.subscription,
		AckIds:       []string{ackID},
	})
}

// Nack sets the ack deadline to zero, making the message immediately eligible
// for redelivery.
func (t *PubSubTransport) Nack(ctx context.Context, msg *Message) error {
	return t.modifyDeadline(ctx, msg, 0)
}

func (t *PubSubTransport) ExtendDeadline(ctx context.Context, msg *Message, d time.Duration) error {
	seconds := int32(d / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	// Pub/Sub caps ack deadlines at ten minutes per extension.
	if seconds > 600 {
		seconds = 600
	}
	return t.modifyDeadline(ctx, msg, seconds)
}

func (t *PubSubTransport) modifyDeadline(ctx context.Context, msg *Message, seconds int32) error {
	ackID, err := t.ackID(msg)
	if err != nil {
		return err
	}
	return t.client.ModifyAckDeadline(ctx, &pubsubpb.ModifyAckDeadlineRequest{
		Subscription:       t.subscription,
		AckIds:             []string{ackID},
		AckDeadlineSeconds: seconds,
	})
}

func (t *PubSubTransport) ackID(msg *Message) (string, error) {
	ackID, ok := msg.handle.(string)
	if !ok || ackID == "" {
		return "", fmt.Errorf("message has no pubsub ack id")
	}
	return ackID, nil
}

func (t *PubSubTransport) Close() error {
	return t.client.Close()
}
