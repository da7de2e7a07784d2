package notifier

import (
	"context"
)

// Event is a named message delivered to a subscription
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

type CreateSubscription func(ctx context.Context, id string) Subscription

// Topic is the registry of active subscriptions
type Topic interface {
	// Subscribe creates and registers a subscription.
	// The subscription is removed once ctx is done or the subscription is closed.
	Subscribe(ctx context.Context, fn CreateSubscription) (Subscription, error)
	GetSubscription(id string) (Subscription, error)

	// RemoveSubscription is idempotent
	RemoveSubscription(id string)

	// Subscriptions returns a point-in-time copy of the registered subscriptions
	Subscriptions() []Subscription
}

type Broadcaster interface {
	Broadcast(ctx context.Context, event Event) (delivered int)
}

// Subscription is the per-connection handle. It is also the sink the
// broadcaster delivers into.
type Subscription interface {
	Listener

	// Publish to this single subscription. Never blocks on the consumer.
	Publish(ctx context.Context, event Event) error

	// Close the subscription; the listen channel gets closed. Idempotent.
	Close(cause error)
}

type Listener interface {
	// ID is the listener ID for a given topic
	ID() string

	Listen() <-chan Event

	// Done is closed once the subscription is closed
	Done() <-chan struct{}
}

type Metric interface {
	GetMetric() any
}
