package campaign

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/titlepulse/titlepulse-api/internal/domain/account"
	"github.com/titlepulse/titlepulse-api/internal/domain/quota"
	"github.com/titlepulse/titlepulse-api/internal/pkg/youtube"
)

// VideoPlatform is the subset of the platform client the campaign
// lifecycle needs
type VideoPlatform interface {
	GetVideoDetails(ctx context.Context, accountID uuid.UUID, videoID string) (*youtube.VideoDetails, error)
	GetVideoViewCount(ctx context.Context, accountID uuid.UUID, videoID string) (int64, error)
	UpdateVideoTitle(ctx context.Context, accountID uuid.UUID, videoID, newTitle string) error
}

// WindowOpener opens the measurement window for a newly applied title.
// Implemented by the rotation repository.
type WindowOpener interface {
	OpenWindow(ctx context.Context, campaignID uuid.UUID, titleIndex int, title string, startViews int64, startedAt time.Time) error
}

// AccountStore is the subset of account operations the service needs
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error)
	IncrementDailyUsage(ctx context.Context, id uuid.UUID, titleChanges int, apiUnits int64) error
	ResetDailyCounters(ctx context.Context, id uuid.UUID) error
}

// Config holds campaign service limits
type Config struct {
	MaxActiveCampaigns    int
	MaxTitleChangesPerDay int
}

// Service handles campaign business logic
type Service struct {
	repo     Repository
	accounts AccountStore
	platform VideoPlatform
	windows  WindowOpener
	cfg      Config

	now func() time.Time
}

// NewService creates a new campaign service
func NewService(repo Repository, accounts AccountStore, platform VideoPlatform, windows WindowOpener, cfg Config) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		platform: platform,
		windows:  windows,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Create starts a new title test: it captures the video's current state,
// applies the first variant immediately and opens its measurement window.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req *CreateRequest) (*Campaign, error) {
	if hasDuplicateVariants(req.TitleVariants) {
		return nil, ErrDuplicateVariants
	}

	acc, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !acc.Connected() {
		return nil, account.ErrNotConnected
	}

	if err := s.checkLimits(ctx, acc); err != nil {
		return nil, err
	}

	details, err := s.platform.GetVideoDetails(ctx, userID, req.VideoID)
	if err != nil {
		return nil, err
	}

	startViews, err := s.platform.GetVideoViewCount(ctx, userID, req.VideoID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	firstTitle := req.TitleVariants[0]

	c := &Campaign{
		ID:                 uuid.New(),
		UserID:             userID,
		VideoID:            req.VideoID,
		VideoTitle:         details.Title,
		OriginalTitle:      details.Title,
		TitleVariants:      req.TitleVariants,
		RotationHours:      req.RotationHours,
		TotalDurationHours: req.TotalDurationHours,
		Status:             StatusActive,
		CurrentTitleIndex:  0,
		CurrentTitle:       firstTitle,
		NextRotationAt:     sql.NullTime{Time: now.Add(time.Duration(req.RotationHours) * time.Hour), Valid: true},
		StartsAt:           now,
		EndsAt:             now.Add(time.Duration(req.TotalDurationHours) * time.Hour),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if details.Thumbnail != "" {
		c.ThumbnailURL = sql.NullString{String: details.Thumbnail, Valid: true}
	}
	if details.ChannelID != "" {
		c.ChannelID = sql.NullString{String: details.ChannelID, Valid: true}
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	if err := s.platform.UpdateVideoTitle(ctx, userID, req.VideoID, firstTitle); err != nil {
		// The campaign row is useless if the first variant never went live
		if delErr := s.repo.Delete(ctx, c.ID); delErr != nil {
			log.Error().Err(delErr).Str("campaign_id", c.ID.String()).
				Msg("failed to roll back campaign after title update failure")
		}
		return nil, err
	}

	if err := s.windows.OpenWindow(ctx, c.ID, 0, firstTitle, startViews, now); err != nil {
		return nil, err
	}

	units := 2*quota.Cost(quota.OpVideosList) + quota.Cost(quota.OpVideosUpdate)
	if err := s.accounts.IncrementDailyUsage(ctx, userID, 1, units); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to increment daily usage")
	}

	log.Info().
		Str("campaign_id", c.ID.String()).
		Str("video_id", c.VideoID).
		Int("variants", len(c.TitleVariants)).
		Msg("campaign created")

	return c, nil
}

// GetByID returns a campaign owned by the given user
func (s *Service) GetByID(ctx context.Context, userID, id uuid.UUID) (*Campaign, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrNotCampaignOwner
	}
	return c, nil
}

// ListByUser returns all campaigns for the user, newest first
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]Campaign, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Pause stops rotations for an active campaign
func (s *Service) Pause(ctx context.Context, userID, id uuid.UUID) (*Campaign, error) {
	c, err := s.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !c.CanPause() {
		return nil, ErrInvalidStatus
	}

	if err := s.repo.Pause(ctx, id); err != nil {
		return nil, err
	}

	log.Info().Str("campaign_id", id.String()).Msg("campaign paused")
	return s.repo.GetByID(ctx, id)
}

// Resume re-activates a paused, errored or quota-exceeded campaign and
// schedules the next rotation one interval from now
func (s *Service) Resume(ctx context.Context, userID, id uuid.UUID) (*Campaign, error) {
	c, err := s.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !c.CanResume() {
		return nil, ErrInvalidStatus
	}

	now := s.now()
	if now.After(c.EndsAt) {
		return nil, ErrCampaignEnded
	}

	next := sql.NullTime{Time: now.Add(time.Duration(c.RotationHours) * time.Hour), Valid: true}
	if err := s.repo.Resume(ctx, id, next); err != nil {
		return nil, err
	}

	log.Info().Str("campaign_id", id.String()).Msg("campaign resumed")
	return s.repo.GetByID(ctx, id)
}

// Cancel terminates a campaign without computing results
func (s *Service) Cancel(ctx context.Context, userID, id uuid.UUID) (*Campaign, error) {
	c, err := s.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !c.CanCancel() {
		return nil, ErrInvalidStatus
	}

	if err := s.repo.Cancel(ctx, id); err != nil {
		return nil, err
	}

	log.Info().Str("campaign_id", id.String()).Msg("campaign cancelled")
	return s.repo.GetByID(ctx, id)
}

// Delete removes a campaign that has already reached a terminal status
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	c, err := s.GetByID(ctx, userID, id)
	if err != nil {
		return err
	}

	switch c.Status {
	case StatusCompleted, StatusCancelled, StatusError:
	default:
		return ErrInvalidStatus
	}

	return s.repo.Delete(ctx, id)
}

// checkLimits enforces the per-account concurrency and daily title-change
// caps. Daily counters roll over lazily on the first check of a new UTC day.
func (s *Service) checkLimits(ctx context.Context, acc *account.Account) error {
	maxActive := s.cfg.MaxActiveCampaigns
	if acc.MaxActiveCampaigns > 0 {
		maxActive = acc.MaxActiveCampaigns
	}

	active, err := s.repo.CountActiveByUser(ctx, acc.ID)
	if err != nil {
		return err
	}
	if active >= maxActive {
		return ErrCampaignLimitReached
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	if acc.LastQuotaReset.Before(today) {
		if err := s.accounts.ResetDailyCounters(ctx, acc.ID); err != nil {
			return err
		}
		return nil
	}

	if acc.DailyTitleChanges >= s.cfg.MaxTitleChangesPerDay {
		return ErrTitleChangeLimit
	}
	return nil
}

func hasDuplicateVariants(variants []string) bool {
	seen := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		key := strings.ToLower(strings.TrimSpace(v))
		if _, ok := seen[key]; ok {
			return true
		}
		seen[key] = struct{}{}
	}
	return false
}
