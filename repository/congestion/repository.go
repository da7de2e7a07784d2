package congestion

import (
	"context"
	"time"

	"github.com/desain-gratis/congestion/types/entity"
)

// Fetcher returns one normalized snapshot per call.
// Label mapping failures are reported as errors, never as a partial snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) (entity.Snapshot, error)
}

// StateStore persists the last observed levels across restarts
type StateStore interface {
	Load(ctx context.Context) (entity.Snapshot, error)
	Save(ctx context.Context, snapshot entity.Snapshot) error
}

// AlertJournal keeps a history of emitted alerts for operators
type AlertJournal interface {
	Record(ctx context.Context, observedAt time.Time, alerts entity.AlertSet) error
	Recent(ctx context.Context, limit int) ([]AlertRecord, error)
}

type AlertRecord struct {
	AreaName   string    `json:"area_nm" db:"area_nm"`
	Level      string    `json:"area_congest_lvl" db:"level"`
	ObservedAt time.Time `json:"observed_at" db:"observed_at"`
}

type noopStore struct{}

// NewNoopStore is used when no persistence is configured
func NewNoopStore() *noopStore {
	return &noopStore{}
}

func (n *noopStore) Load(context.Context) (entity.Snapshot, error) {
	return entity.Snapshot{}, nil
}

func (n *noopStore) Save(context.Context, entity.Snapshot) error {
	return nil
}
