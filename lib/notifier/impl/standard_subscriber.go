package impl

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/desain-gratis/congestion/lib/notifier"
)

const (
	DefaultListenQueueSize = 64
)

var _ notifier.Subscription = &standardSubscriber{}

var (
	ErrClosed    = errors.New("closed")
	ErrQueueFull = errors.New("listen queue full")
	ErrRemoved   = errors.New("removed from topic")
)

type standardSubscriber struct {
	id       string
	listenCh chan notifier.Event
	done     chan struct{}

	// guards listenCh against send after close
	lock      sync.RWMutex
	closed    bool
	cause     error
	closeOnce sync.Once
}

// NewStandardSubscriber creates subscriptions with a bounded listen queue.
// A publish into a full queue fails instead of waiting for the consumer.
func NewStandardSubscriber(queueSize int) notifier.CreateSubscription {
	if queueSize <= 0 {
		queueSize = DefaultListenQueueSize
	}

	return func(ctx context.Context, id string) notifier.Subscription {
		c := &standardSubscriber{
			id:       id,
			listenCh: make(chan notifier.Event, queueSize),
			done:     make(chan struct{}),
		}

		log.Debug().Msgf("subscription member: created %v", id)

		go func() {
			select {
			case <-ctx.Done():
				c.Close(context.Cause(ctx))
			case <-c.done:
			}
		}()

		return c
	}
}

func (c *standardSubscriber) ID() string {
	return c.id
}

func (c *standardSubscriber) Listen() <-chan notifier.Event {
	return c.listenCh
}

func (c *standardSubscriber) Done() <-chan struct{} {
	return c.done
}

// Err returns the close cause, nil while open
func (c *standardSubscriber) Err() error {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.cause
}

func (c *standardSubscriber) Publish(_ context.Context, event notifier.Event) error {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.closed {
		return ErrClosed
	}

	select {
	case c.listenCh <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

func (c *standardSubscriber) Close(cause error) {
	c.closeOnce.Do(func() {
		if cause == nil {
			cause = ErrClosed
		}

		c.lock.Lock()
		c.closed = true
		c.cause = cause
		close(c.listenCh)
		close(c.done)
		c.lock.Unlock()

		log.Debug().Msgf("subscription member: closed %v cause: %v", c.id, cause)
	})
}
