package congestion

import (
	"context"
	"time"

	"github.com/desain-gratis/congestion/lib/notifier"
	"github.com/desain-gratis/congestion/types/entity"
)

// Event names pushed to subscribers
const (
	EventUpdate = "congestion-update"
	EventAlert  = "congestion-alert"
)

// Subscriber handles new subscriptions
type Subscriber interface {
	// Subscribe registers a subscription that lives until ctx is done and
	// queues the catch-up events for it.
	Subscribe(ctx context.Context) (notifier.Subscription, error)
}

// Reader exposes the current state for request/response queries
type Reader interface {
	CurrentSnapshot() entity.Snapshot
}

// CycleResult describes one polling cycle
type CycleResult struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Areas     int           `json:"areas"`
	Alerts    int           `json:"alerts"`
	Delivered int           `json:"delivered"`
	Pruned    int           `json:"pruned,omitempty"`
	Err       error         `json:"-"`
}
