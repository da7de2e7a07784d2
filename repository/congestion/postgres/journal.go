package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/desain-gratis/congestion/repository/congestion"
	"github.com/desain-gratis/congestion/types/entity"
)

const (
	DefaultRecentLimit = 100
	maxRecentLimit     = 1000
)

var _ congestion.AlertJournal = &handler{}

type handler struct {
	db        *sqlx.DB
	tableName string
}

func New(db *sqlx.DB, tableName string) *handler {
	if tableName == "" {
		tableName = "congestion_alert"
	}

	return &handler{
		db:        db,
		tableName: tableName,
	}
}

// Init creates the journal table if it does not exist yet
func (h *handler) Init(ctx context.Context) error {
	_, err := h.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+h.tableName+` (
		id          BIGSERIAL PRIMARY KEY,
		area_nm     TEXT NOT NULL,
		level       TEXT NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL
	)`)
	return err
}

// Record appends one row per alerted area in a single transaction
func (h *handler) Record(ctx context.Context, observedAt time.Time, alerts entity.AlertSet) error {
	if len(alerts) == 0 {
		return nil
	}

	rows := make([]congestion.AlertRecord, 0, len(alerts))
	for _, area := range alerts {
		rows = append(rows, congestion.AlertRecord{
			AreaName:   area.Name,
			Level:      area.Level.Label(),
			ObservedAt: observedAt,
		})
	}

	tx, err := h.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO `+h.tableName+` (area_nm, level, observed_at) VALUES (:area_nm, :level, :observed_at)`,
		rows,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (h *handler) Recent(ctx context.Context, limit int) ([]congestion.AlertRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	result := make([]congestion.AlertRecord, 0)
	err := h.db.SelectContext(ctx, &result,
		`SELECT area_nm, level, observed_at FROM `+h.tableName+` ORDER BY observed_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}

	return result, nil
}
