package campaign

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Repository handles campaign database operations
type Repository interface {
	Create(ctx context.Context, c *Campaign) error
	GetByID(ctx context.Context, id uuid.UUID) (*Campaign, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Campaign, error)
	CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Scheduler-facing operations. All mutations are conditional on the
	// campaign still being in the expected status, so a concurrent
	// administrative action cannot be silently overwritten.
	FindDue(ctx context.Context, now time.Time) ([]Campaign, error)
	ApplyRotation(ctx context.Context, id uuid.UUID, titleIndex int, title string, nextRotationAt sql.NullTime) error
	RecordRotationFailure(ctx context.Context, id uuid.UUID, lastError string, autoPause bool) error
	MarkQuotaExceeded(ctx context.Context, id uuid.UUID, lastError string) error

	// Lifecycle transitions
	Pause(ctx context.Context, id uuid.UUID) error
	Resume(ctx context.Context, id uuid.UUID, nextRotationAt sql.NullTime) error
	Cancel(ctx context.Context, id uuid.UUID) error

	// Finalization
	CompleteWithResults(ctx context.Context, id uuid.UUID, r *FinalResults) error
	CompleteInsufficientData(ctx context.Context, id uuid.UUID) error
}

// FinalResults carries the finalizer's winner summary into the campaign row
type FinalResults struct {
	WinningTitle        string
	WinningTitleIndex   int
	WinningViewsPerHour float64
	ImprovementPercent  float64
	ConfidenceLevel     int
	TotalViewsGained    int64
}

const campaignColumns = `
	id, user_id, video_id, video_title, original_title, thumbnail_url, channel_id,
	title_variants, rotation_hours, total_duration_hours, status,
	current_title_index, current_title, next_rotation_at, starts_at, ends_at,
	paused_at, completed_at, error_count, consecutive_errors, last_error,
	winning_title, winning_title_index, winning_views_per_hour,
	improvement_percent, confidence_level, total_views_gained,
	created_at, updated_at`

type pgRepository struct {
	db *sqlx.DB
}

// NewRepository creates a new campaign repository
func NewRepository(db *sqlx.DB) Repository {
	return &pgRepository{db: db}
}

func (r *pgRepository) Create(ctx context.Context, c *Campaign) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns (
			id, user_id, video_id, video_title, original_title, thumbnail_url,
			channel_id, title_variants, rotation_hours, total_duration_hours,
			status, current_title_index, current_title, next_rotation_at,
			starts_at, ends_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
	`,
		c.ID, c.UserID, c.VideoID, c.VideoTitle, c.OriginalTitle, c.ThumbnailURL,
		c.ChannelID, pq.Array(c.TitleVariants), c.RotationHours, c.TotalDurationHours,
		c.Status, c.CurrentTitleIndex, c.CurrentTitle, c.NextRotationAt,
		c.StartsAt, c.EndsAt, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *pgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)

	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *pgRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectCampaigns(rows)
}

func (r *pgRepository) CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM campaigns
		WHERE user_id = $1 AND status IN ('ACTIVE', 'PENDING')
	`, userID)
	return count, err
}

func (r *pgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// FindDue returns active campaigns whose next rotation is at or before now
func (r *pgRepository) FindDue(ctx context.Context, now time.Time) ([]Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status = 'ACTIVE' AND next_rotation_at IS NOT NULL AND next_rotation_at <= $1
		ORDER BY next_rotation_at ASC
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectCampaigns(rows)
}

// ApplyRotation persists the new current variant and schedule after a
// successful title update, and resets the consecutive-error streak
func (r *pgRepository) ApplyRotation(ctx context.Context, id uuid.UUID, titleIndex int, title string, nextRotationAt sql.NullTime) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET current_title_index = $2, current_title = $3, next_rotation_at = $4,
			consecutive_errors = 0, updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'
	`, id, titleIndex, title, nextRotationAt)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// RecordRotationFailure bumps the error counters; with autoPause it also
// transitions the campaign to ERROR
func (r *pgRepository) RecordRotationFailure(ctx context.Context, id uuid.UUID, lastError string, autoPause bool) error {
	if autoPause {
		_, err := r.db.ExecContext(ctx, `
			UPDATE campaigns
			SET error_count = error_count + 1,
				consecutive_errors = consecutive_errors + 1,
				last_error = $2, status = 'ERROR', paused_at = NOW(),
				next_rotation_at = NULL, updated_at = NOW()
			WHERE id = $1
		`, id, lastError)
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET error_count = error_count + 1,
			consecutive_errors = consecutive_errors + 1,
			last_error = $2, updated_at = NOW()
		WHERE id = $1
	`, id, lastError)
	return err
}

func (r *pgRepository) MarkQuotaExceeded(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'QUOTA_EXCEEDED', last_error = $2, paused_at = NOW(),
			next_rotation_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'
	`, id, lastError)
	return err
}

func (r *pgRepository) Pause(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'PAUSED', paused_at = NOW(), next_rotation_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'
	`, id)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *pgRepository) Resume(ctx context.Context, id uuid.UUID, nextRotationAt sql.NullTime) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'ACTIVE', paused_at = NULL, consecutive_errors = 0,
			next_rotation_at = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('PAUSED', 'ERROR', 'QUOTA_EXCEEDED')
	`, id, nextRotationAt)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *pgRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'CANCELLED', next_rotation_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'ACTIVE', 'PAUSED')
	`, id)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *pgRepository) CompleteWithResults(ctx context.Context, id uuid.UUID, res *FinalResults) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'COMPLETED', completed_at = NOW(), next_rotation_at = NULL,
			winning_title = $2, winning_title_index = $3, winning_views_per_hour = $4,
			improvement_percent = $5, confidence_level = $6, total_views_gained = $7,
			updated_at = NOW()
		WHERE id = $1
	`, id, res.WinningTitle, res.WinningTitleIndex, res.WinningViewsPerHour,
		res.ImprovementPercent, res.ConfidenceLevel, res.TotalViewsGained)
	return err
}

func (r *pgRepository) CompleteInsufficientData(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'COMPLETED', completed_at = NOW(), next_rotation_at = NULL,
			last_error = 'Insufficient data for analysis', updated_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*Campaign, error) {
	var c Campaign
	var variants pq.StringArray

	err := row.Scan(
		&c.ID, &c.UserID, &c.VideoID, &c.VideoTitle, &c.OriginalTitle,
		&c.ThumbnailURL, &c.ChannelID, &variants, &c.RotationHours,
		&c.TotalDurationHours, &c.Status, &c.CurrentTitleIndex, &c.CurrentTitle,
		&c.NextRotationAt, &c.StartsAt, &c.EndsAt, &c.PausedAt, &c.CompletedAt,
		&c.ErrorCount, &c.ConsecutiveErrors, &c.LastError,
		&c.WinningTitle, &c.WinningTitleIndex, &c.WinningViewsPerHour,
		&c.ImprovementPercent, &c.ConfidenceLevel, &c.TotalViewsGained,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.TitleVariants = variants
	return &c, nil
}

func collectCampaigns(rows *sql.Rows) ([]Campaign, error) {
	var campaigns []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return campaigns, nil
}
