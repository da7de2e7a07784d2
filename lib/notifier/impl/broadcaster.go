package impl

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/desain-gratis/congestion/lib/notifier"
)

var _ notifier.Broadcaster = &broadcaster{}

type broadcaster struct {
	topic notifier.Topic
}

// NewBroadcaster delivers events to every subscription registered in topic
func NewBroadcaster(topic notifier.Topic) *broadcaster {
	return &broadcaster{topic: topic}
}

// Broadcast publishes event to a snapshot of the topic. A subscription that
// fails to receive is removed; the remaining ones are still delivered to.
func (b *broadcaster) Broadcast(ctx context.Context, event notifier.Event) (delivered int) {
	for _, subs := range b.topic.Subscriptions() {
		err := subs.Publish(ctx, event)
		if err != nil {
			log.Warn().Err(err).Msgf("broadcast %v: removing subscription %v", event.Name, subs.ID())
			b.topic.RemoveSubscription(subs.ID())
			continue
		}
		delivered++
	}

	return delivered
}
