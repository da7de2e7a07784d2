package impl

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/desain-gratis/congestion/lib/notifier"
)

var _ notifier.Topic = &topic{}
var _ notifier.Metric = &topic{}

// topic
type topic struct {
	listener map[string]notifier.Subscription
	lock     *sync.RWMutex
}

var (
	ErrNotFound = errors.New("not found")
)

// NewTopic create a new, empty subscription registry
func NewTopic() *topic {
	return &topic{
		listener: make(map[string]notifier.Subscription),
		lock:     &sync.RWMutex{},
	}
}

func (s *topic) Subscribe(ctx context.Context, csf notifier.CreateSubscription) (notifier.Subscription, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	id := uuid.NewString()

	subs := csf(ctx, id)

	s.lock.Lock()
	s.listener[id] = subs
	s.lock.Unlock()

	log.Debug().Msgf("topic: subscribed %v", id)

	// unregister once the ctx has done or the subscription closed itself
	go func() {
		select {
		case <-ctx.Done():
		case <-subs.Done():
		}
		s.RemoveSubscription(id)
	}()

	return subs, nil
}

func (s *topic) GetSubscription(id string) (notifier.Subscription, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	l, ok := s.listener[id]
	if !ok {
		return nil, ErrNotFound
	}

	return l, nil
}

func (s *topic) RemoveSubscription(id string) {
	s.lock.Lock()
	l, ok := s.listener[id]
	delete(s.listener, id)
	s.lock.Unlock()

	if !ok {
		return
	}

	l.Close(ErrRemoved)
	log.Debug().Msgf("topic: removed %v", id)
}

func (s *topic) Subscriptions() []notifier.Subscription {
	s.lock.RLock()
	defer s.lock.RUnlock()

	result := make([]notifier.Subscription, 0, len(s.listener))
	for _, l := range s.listener {
		result = append(result, l)
	}

	return result
}

// GetMetric to support metrics query
func (s *topic) GetMetric() any {
	var subscriberCount int
	func() {
		s.lock.RLock()
		defer s.lock.RUnlock()
		subscriberCount = len(s.listener)
	}()

	return map[string]any{
		"n_subscription": subscriberCount,
		"type":           "standard_topic",
	}
}
