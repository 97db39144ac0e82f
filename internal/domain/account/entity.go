package account

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Account is a user's YouTube connection: encrypted OAuth credentials plus
// per-day usage counters. OAuth code exchange happens in an external service;
// this one only loads, refreshes, and invalidates stored credentials.
type Account struct {
	ID    uuid.UUID `db:"id"`
	Email string    `db:"email"`

	ChannelID    sql.NullString `db:"channel_id"`
	ChannelTitle sql.NullString `db:"channel_title"`

	// AES-GCM encrypted, base64 encoded
	AccessToken  sql.NullString `db:"access_token"`
	RefreshToken sql.NullString `db:"refresh_token"`
	TokenExpiry  sql.NullTime   `db:"token_expiry"`

	ConnectionValid bool `db:"connection_valid"`

	// Per-account daily counters for audit and limits
	DailyTitleChanges int       `db:"daily_title_changes"`
	DailyAPIUnitsUsed int64     `db:"daily_api_units_used"`
	LastQuotaReset    time.Time `db:"last_quota_reset"`

	MaxActiveCampaigns int `db:"max_active_campaigns"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Connected returns true if the account has a usable YouTube connection
func (a *Account) Connected() bool {
	return a.ConnectionValid && a.RefreshToken.Valid
}
