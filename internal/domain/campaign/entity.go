package campaign

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status represents campaign lifecycle status
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusActive        Status = "ACTIVE"
	StatusPaused        Status = "PAUSED"
	StatusCompleted     Status = "COMPLETED"
	StatusCancelled     Status = "CANCELLED"
	StatusError         Status = "ERROR"
	StatusQuotaExceeded Status = "QUOTA_EXCEEDED"
)

// MaxConsecutiveErrors is the auto-pause threshold: a campaign that fails
// this many rotations in a row transitions to ERROR.
const MaxConsecutiveErrors = 3

// Campaign is a scheduled round-robin title A/B test bound to one video
type Campaign struct {
	ID     uuid.UUID `db:"id"`
	UserID uuid.UUID `db:"user_id"`

	// Target video
	VideoID       string         `db:"video_id"`
	VideoTitle    string         `db:"video_title"`
	OriginalTitle string         `db:"original_title"`
	ThumbnailURL  sql.NullString `db:"thumbnail_url"`
	ChannelID     sql.NullString `db:"channel_id"`

	// Test parameters
	TitleVariants      []string `db:"title_variants"`
	RotationHours      int      `db:"rotation_hours"`
	TotalDurationHours int      `db:"total_duration_hours"`

	// Rotation state. NextRotationAt is null iff the campaign is not
	// actively scheduled (paused, completed, ended).
	Status            Status       `db:"status"`
	CurrentTitleIndex int          `db:"current_title_index"`
	CurrentTitle      string       `db:"current_title"`
	NextRotationAt    sql.NullTime `db:"next_rotation_at"`
	StartsAt          time.Time    `db:"starts_at"`
	EndsAt            time.Time    `db:"ends_at"`
	PausedAt          sql.NullTime `db:"paused_at"`
	CompletedAt       sql.NullTime `db:"completed_at"`

	// Error tracking
	ErrorCount        int            `db:"error_count"`
	ConsecutiveErrors int            `db:"consecutive_errors"`
	LastError         sql.NullString `db:"last_error"`

	// Final results
	WinningTitle        sql.NullString  `db:"winning_title"`
	WinningTitleIndex   sql.NullInt64   `db:"winning_title_index"`
	WinningViewsPerHour sql.NullFloat64 `db:"winning_views_per_hour"`
	ImprovementPercent  sql.NullFloat64 `db:"improvement_percent"`
	ConfidenceLevel     sql.NullInt64   `db:"confidence_level"`
	TotalViewsGained    sql.NullInt64   `db:"total_views_gained"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// IsActive returns true if the campaign is currently being rotated
func (c *Campaign) IsActive() bool {
	return c.Status == StatusActive
}

// CanPause returns true if the campaign can be paused
func (c *Campaign) CanPause() bool {
	return c.Status == StatusActive
}

// CanResume returns true if the campaign can be manually resumed
func (c *Campaign) CanResume() bool {
	return c.Status == StatusPaused || c.Status == StatusError || c.Status == StatusQuotaExceeded
}

// CanCancel returns true if the campaign can be cancelled
func (c *Campaign) CanCancel() bool {
	return c.Status == StatusPending || c.Status == StatusActive || c.Status == StatusPaused
}

// NextVariantIndex returns the round-robin successor of the current variant
func (c *Campaign) NextVariantIndex() int {
	if len(c.TitleVariants) == 0 {
		return 0
	}
	return (c.CurrentTitleIndex + 1) % len(c.TitleVariants)
}
