package quota

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repository is the durable ledger: one row per UTC calendar day
type Repository interface {
	GetByDate(ctx context.Context, date time.Time) (*Usage, error)
	RecordCall(ctx context.Context, date time.Time, op Operation, totalUnits int64) error
	SetCircuitBreakerTripped(ctx context.Context, date time.Time, totalUnits int64) error
	Reset(ctx context.Context, date time.Time) error
}

// Per-operation call-count columns. Serves as a whitelist for the upsert below.
var callColumns = map[Operation]string{
	OpVideosList:   "video_list_calls",
	OpVideosUpdate: "video_update_calls",
	OpSearchList:   "search_list_calls",
	OpChannelsList: "channel_list_calls",
}

type pgRepository struct {
	db *sqlx.DB
}

// NewRepository creates a Postgres-backed quota repository
func NewRepository(db *sqlx.DB) Repository {
	return &pgRepository{db: db}
}

// GetByDate returns the ledger row for a day, or nil when none exists yet
func (r *pgRepository) GetByDate(ctx context.Context, date time.Time) (*Usage, error) {
	var u Usage
	err := r.db.GetContext(ctx, &u, `
		SELECT date, total_units_used, video_list_calls, video_update_calls,
			search_list_calls, channel_list_calls, circuit_breaker_tripped,
			created_at, updated_at
		FROM quota_usage
		WHERE date = $1
	`, dateOnly(date))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// RecordCall upserts the daily row: mirrors the cache total and bumps the
// per-operation call counter
func (r *pgRepository) RecordCall(ctx context.Context, date time.Time, op Operation, totalUnits int64) error {
	column, ok := callColumns[op]
	if !ok {
		column = "video_list_calls"
	}

	query := fmt.Sprintf(`
		INSERT INTO quota_usage (date, total_units_used, %s, created_at, updated_at)
		VALUES ($1, $2, 1, NOW(), NOW())
		ON CONFLICT (date) DO UPDATE
		SET total_units_used = $2, %s = quota_usage.%s + 1, updated_at = NOW()
	`, column, column, column)

	_, err := r.db.ExecContext(ctx, query, dateOnly(date), totalUnits)
	return err
}

// SetCircuitBreakerTripped durably marks the day's row once the breaker trips
func (r *pgRepository) SetCircuitBreakerTripped(ctx context.Context, date time.Time, totalUnits int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quota_usage (date, total_units_used, circuit_breaker_tripped, created_at, updated_at)
		VALUES ($1, $2, TRUE, NOW(), NOW())
		ON CONFLICT (date) DO UPDATE
		SET circuit_breaker_tripped = TRUE, updated_at = NOW()
	`, dateOnly(date), totalUnits)
	return err
}

// Reset zeroes the day's counters (operational/testing utility)
func (r *pgRepository) Reset(ctx context.Context, date time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quota_usage (date, total_units_used, created_at, updated_at)
		VALUES ($1, 0, NOW(), NOW())
		ON CONFLICT (date) DO UPDATE
		SET total_units_used = 0, video_list_calls = 0, video_update_calls = 0,
			search_list_calls = 0, channel_list_calls = 0,
			circuit_breaker_tripped = FALSE, updated_at = NOW()
	`, dateOnly(date))
	return err
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
