package congestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/desain-gratis/congestion/lib/notifier"
	"github.com/desain-gratis/congestion/types/entity"
)

var _ Subscriber = &subscriber{}

var ErrSubscriptionDiscarded = errors.New("subscription discarded")

type subscriber struct {
	topic notifier.Topic
	cache *StateCache
	csf   notifier.CreateSubscription
}

// NewSubscriber registers subscriptions created by csf into topic and seeds
// them from cache. It never triggers an upstream fetch.
func NewSubscriber(topic notifier.Topic, cache *StateCache, csf notifier.CreateSubscription) *subscriber {
	return &subscriber{
		topic: topic,
		cache: cache,
		csf:   csf,
	}
}

// Subscribe sends the current state and the alerts a newcomer should see to
// the new subscription only. Every area is treated as first seen for it; the
// shared cache is left as is.
//
// The catch-up is queued under the cache read lock: a cycle updating the cache
// meanwhile broadcasts after it, never before.
func (s *subscriber) Subscribe(ctx context.Context) (notifier.Subscription, error) {
	subs, err := s.topic.Subscribe(ctx, s.csf)
	if err != nil {
		return nil, err
	}

	var areas, nAlerts int
	err = s.cache.withSnapshot(func(snapshot entity.Snapshot) error {
		areas = len(snapshot)

		err := subs.Publish(ctx, notifier.Event{Name: EventUpdate, Data: snapshot})
		if err != nil {
			return err
		}

		alerts := snapshot.FirstSeenAlerts()
		nAlerts = len(alerts)
		if len(alerts) == 0 {
			return nil
		}

		return subs.Publish(ctx, notifier.Event{Name: EventAlert, Data: alerts})
	})
	if err != nil {
		return nil, s.discard(subs, err)
	}

	log.Info().Msgf("congestion: subscribed %v (areas=%v alerts=%v)", subs.ID(), areas, nAlerts)

	return subs, nil
}

func (s *subscriber) discard(subs notifier.Subscription, cause error) error {
	s.topic.RemoveSubscription(subs.ID())
	log.Warn().Err(cause).Msgf("congestion: catch-up delivery failed, discarded %v", subs.ID())
	return fmt.Errorf("%w: %w", ErrSubscriptionDiscarded, cause)
}
