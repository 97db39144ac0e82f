package rotation

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Rotation is one measurement window: the span during which a single title
// variant was live on the video. A window with a null EndedAt is the
// campaign's currently open window.
type Rotation struct {
	ID         uuid.UUID `db:"id"`
	CampaignID uuid.UUID `db:"campaign_id"`

	TitleIndex int    `db:"title_index"`
	Title      string `db:"title"`

	StartedAt       time.Time     `db:"started_at"`
	EndedAt         sql.NullTime  `db:"ended_at"`
	DurationSeconds sql.NullInt64 `db:"duration_seconds"`

	// View counters. ViewsAtStart and ViewsAtEnd are cumulative video
	// totals; ViewsGained is their clamped difference. ViewsPerHour is
	// null when the window closed with zero elapsed time.
	ViewsAtStart int64           `db:"views_at_start"`
	ViewsAtEnd   sql.NullInt64   `db:"views_at_end"`
	ViewsGained  sql.NullInt64   `db:"views_gained"`
	ViewsPerHour sql.NullFloat64 `db:"views_per_hour"`

	CreatedAt time.Time `db:"created_at"`
}

// minQualifyingSeconds is the minimum closed-window duration for a rotation
// to count toward final analysis. Shorter windows carry too much noise.
const minQualifyingSeconds = 3600

// Qualifies reports whether this window can contribute to final results
func (r *Rotation) Qualifies() bool {
	return r.ViewsPerHour.Valid && r.DurationSeconds.Valid && r.DurationSeconds.Int64 > minQualifyingSeconds
}

// Closure is the computed outcome persisted when a window is closed
type Closure struct {
	EndedAt         time.Time
	DurationSeconds int64
	ViewsAtEnd      int64
	ViewsGained     int64
	ViewsPerHour    sql.NullFloat64
}

// CloseWindow computes the closure of an open window against a metric
// snapshot taken at endedAt. Counter resets on the platform side clamp the
// gain to zero instead of going negative. A zero-length window gets a rate
// of zero rather than dividing by zero; it never qualifies anyway because
// qualification requires more than an hour of duration.
func (r *Rotation) CloseWindow(endedAt time.Time, viewsAtEnd int64) Closure {
	gained := viewsAtEnd - r.ViewsAtStart
	if gained < 0 {
		gained = 0
	}

	elapsed := int64(endedAt.Sub(r.StartedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}

	rate := sql.NullFloat64{Valid: true}
	if elapsed > 0 {
		rate.Float64 = float64(gained) / float64(elapsed) * 3600
	}

	return Closure{
		EndedAt:         endedAt,
		DurationSeconds: elapsed,
		ViewsAtEnd:      viewsAtEnd,
		ViewsGained:     gained,
		ViewsPerHour:    rate,
	}
}
