package account

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository handles account database operations
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	UpdateAccessToken(ctx context.Context, id uuid.UUID, encryptedToken string, expiry time.Time) error
	MarkConnectionInvalid(ctx context.Context, id uuid.UUID) error
	IncrementDailyUsage(ctx context.Context, id uuid.UUID, titleChanges int, apiUnits int64) error
	ResetDailyCounters(ctx context.Context, id uuid.UUID) error
}

type pgRepository struct {
	db *sqlx.DB
}

// NewRepository creates a new account repository
func NewRepository(db *sqlx.DB) Repository {
	return &pgRepository{db: db}
}

func (r *pgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	var a Account
	err := r.db.GetContext(ctx, &a, `
		SELECT id, email, channel_id, channel_title, access_token, refresh_token,
			token_expiry, connection_valid, daily_title_changes, daily_api_units_used,
			last_quota_reset, max_active_campaigns, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAccessToken persists a freshly refreshed (already encrypted) token
func (r *pgRepository) UpdateAccessToken(ctx context.Context, id uuid.UUID, encryptedToken string, expiry time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET access_token = $2, token_expiry = $3, connection_valid = TRUE, updated_at = NOW()
		WHERE id = $1
	`, id, encryptedToken, expiry)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// MarkConnectionInvalid short-circuits future calls after a failed refresh
func (r *pgRepository) MarkConnectionInvalid(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET connection_valid = FALSE, updated_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

// IncrementDailyUsage bumps the audit counters after a successful rotation
func (r *pgRepository) IncrementDailyUsage(ctx context.Context, id uuid.UUID, titleChanges int, apiUnits int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET daily_title_changes = daily_title_changes + $2,
			daily_api_units_used = daily_api_units_used + $3,
			updated_at = NOW()
		WHERE id = $1
	`, id, titleChanges, apiUnits)
	return err
}

// ResetDailyCounters zeroes the per-day counters on day rollover
func (r *pgRepository) ResetDailyCounters(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET daily_title_changes = 0, daily_api_units_used = 0,
			last_quota_reset = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id)
	return err
}
