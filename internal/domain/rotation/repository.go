package rotation

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository handles rotation window database operations
type Repository interface {
	OpenWindow(ctx context.Context, campaignID uuid.UUID, titleIndex int, title string, startViews int64, startedAt time.Time) error
	GetOpenByCampaign(ctx context.Context, campaignID uuid.UUID) (*Rotation, error)
	Close(ctx context.Context, id uuid.UUID, c Closure) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]Rotation, error)
	ListQualifying(ctx context.Context, campaignID uuid.UUID) ([]Rotation, error)
}

const rotationColumns = `
	id, campaign_id, title_index, title, started_at, ended_at, duration_seconds,
	views_at_start, views_at_end, views_gained, views_per_hour, created_at`

type pgRepository struct {
	db *sqlx.DB
}

// NewRepository creates a new rotation repository
func NewRepository(db *sqlx.DB) Repository {
	return &pgRepository{db: db}
}

func (r *pgRepository) OpenWindow(ctx context.Context, campaignID uuid.UUID, titleIndex int, title string, startViews int64, startedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rotations (id, campaign_id, title_index, title, started_at, views_at_start, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, uuid.New(), campaignID, titleIndex, title, startedAt, startViews)
	return err
}

// GetOpenByCampaign returns the campaign's open window, or nil when every
// window has been closed
func (r *pgRepository) GetOpenByCampaign(ctx context.Context, campaignID uuid.UUID) (*Rotation, error) {
	row := r.db.QueryRowxContext(ctx, `
		SELECT `+rotationColumns+`
		FROM rotations
		WHERE campaign_id = $1 AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`, campaignID)

	var rot Rotation
	if err := row.StructScan(&rot); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rot, nil
}

func (r *pgRepository) Close(ctx context.Context, id uuid.UUID, c Closure) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE rotations
		SET ended_at = $2, duration_seconds = $3, views_at_end = $4,
			views_gained = $5, views_per_hour = $6
		WHERE id = $1 AND ended_at IS NULL
	`, id, c.EndedAt, c.DurationSeconds, c.ViewsAtEnd, c.ViewsGained, c.ViewsPerHour)
	return err
}

func (r *pgRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]Rotation, error) {
	var rotations []Rotation
	err := r.db.SelectContext(ctx, &rotations, `
		SELECT `+rotationColumns+`
		FROM rotations
		WHERE campaign_id = $1
		ORDER BY started_at ASC
	`, campaignID)
	return rotations, err
}

// ListQualifying returns the closed windows eligible for final analysis
func (r *pgRepository) ListQualifying(ctx context.Context, campaignID uuid.UUID) ([]Rotation, error) {
	var rotations []Rotation
	err := r.db.SelectContext(ctx, &rotations, `
		SELECT `+rotationColumns+`
		FROM rotations
		WHERE campaign_id = $1
			AND views_per_hour IS NOT NULL
			AND duration_seconds > $2
		ORDER BY started_at ASC
	`, campaignID, minQualifyingSeconds)
	return rotations, err
}
