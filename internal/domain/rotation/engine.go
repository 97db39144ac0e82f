package rotation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/titlepulse/titlepulse-api/internal/domain/campaign"
	"github.com/titlepulse/titlepulse-api/internal/domain/lock"
	"github.com/titlepulse/titlepulse-api/internal/domain/quota"
	"github.com/titlepulse/titlepulse-api/internal/pkg/metrics"
)

// errQuotaBlocked marks a rotation denied pre-flight by the quota ledger.
// The campaign is parked in QUOTA_EXCEEDED rather than counted as a failure.
var errQuotaBlocked = errors.New("rotation blocked by quota")

// Locker serializes rotation work per campaign across engine instances
type Locker interface {
	Acquire(ctx context.Context, resource string) (*lock.Lock, error)
	Release(ctx context.Context, resource, lockID string) bool
}

// QuotaLedger is the admission and reporting surface of the quota service
type QuotaLedger interface {
	CheckQuota(ctx context.Context, op quota.Operation) *quota.CheckResult
	GetStatus(ctx context.Context) *quota.Status
}

// VideoPlatform is the subset of the platform client the engine needs
type VideoPlatform interface {
	GetVideoViewCount(ctx context.Context, accountID uuid.UUID, videoID string) (int64, error)
	UpdateVideoTitle(ctx context.Context, accountID uuid.UUID, videoID, newTitle string) error
}

// AccountUsage records per-account daily consumption
type AccountUsage interface {
	IncrementDailyUsage(ctx context.Context, id uuid.UUID, titleChanges int, apiUnits int64) error
}

// CycleResult summarizes one engine pass over the due campaigns
type CycleResult struct {
	Processed  int           `json:"processed"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Errors     []string      `json:"errors,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Quota      *quota.Status `json:"quota"`
}

// Engine rotates due campaigns to their next title variant. One invocation of
// Run processes every due campaign once; scheduling repeated runs is the
// worker's concern.
type Engine struct {
	campaigns campaign.Repository
	windows   Repository
	locks     Locker
	ledger    QuotaLedger
	platform  VideoPlatform
	accounts  AccountUsage
	finalizer *Finalizer
	metrics   *metrics.Metrics

	now func() time.Time
}

// NewEngine creates a new rotation engine
func NewEngine(
	campaigns campaign.Repository,
	windows Repository,
	locks Locker,
	ledger QuotaLedger,
	platform VideoPlatform,
	accounts AccountUsage,
	finalizer *Finalizer,
	m *metrics.Metrics,
) *Engine {
	return &Engine{
		campaigns: campaigns,
		windows:   windows,
		locks:     locks,
		ledger:    ledger,
		platform:  platform,
		accounts:  accounts,
		finalizer: finalizer,
		metrics:   m,
		now:       time.Now,
	}
}

// Run executes one rotation cycle over all due campaigns
func (e *Engine) Run(ctx context.Context) (*CycleResult, error) {
	start := e.now()
	result := &CycleResult{}

	defer func() {
		result.Duration = e.now().Sub(start)
		result.DurationMS = result.Duration.Milliseconds()
		result.Quota = e.ledger.GetStatus(ctx)
		e.observeCycle(result)
	}()

	if pre := e.ledger.CheckQuota(ctx, quota.OpVideosList); pre.CircuitBreakerActive {
		log.Warn().
			Int64("usage", pre.CurrentUsage).
			Msg("quota circuit breaker active, skipping rotation cycle")
		result.Errors = append(result.Errors, "cycle skipped: quota circuit breaker active")
		return result, nil
	}

	due, err := e.campaigns.FindDue(ctx, start)
	if err != nil {
		return result, fmt.Errorf("finding due campaigns: %w", err)
	}

	if len(due) == 0 {
		return result, nil
	}

	log.Info().Int("due", len(due)).Msg("rotation cycle started")

	for i := range due {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		e.processCampaign(ctx, &due[i], result)
	}

	log.Info().
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("rotation cycle finished")

	return result, nil
}

func (e *Engine) processCampaign(ctx context.Context, c *campaign.Campaign, result *CycleResult) {
	resource := "campaign:" + c.ID.String()

	l, err := e.locks.Acquire(ctx, resource)
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, c.ID.String()+": "+err.Error())
		return
	}
	if !l.Acquired {
		// Another instance holds this campaign; it will be picked up
		// again next cycle if still due.
		result.Skipped++
		e.metrics.RotationsSkippedTotal.Inc()
		return
	}
	defer e.locks.Release(ctx, resource, l.LockID)

	// Re-read under the lock: the campaign may have been paused, cancelled
	// or already rotated since FindDue.
	fresh, err := e.campaigns.GetByID(ctx, c.ID)
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, c.ID.String()+": "+err.Error())
		return
	}
	if !fresh.IsActive() || !fresh.NextRotationAt.Valid || fresh.NextRotationAt.Time.After(e.now()) {
		result.Skipped++
		e.metrics.RotationsSkippedTotal.Inc()
		return
	}

	if err := e.rotateOrFinalize(ctx, fresh); err != nil {
		if errors.Is(err, errQuotaBlocked) {
			result.Skipped++
			e.metrics.RotationsSkippedTotal.Inc()
			return
		}
		result.Failed++
		result.Errors = append(result.Errors, c.ID.String()+": "+err.Error())
		e.metrics.RotationsFailedTotal.Inc()
		return
	}

	result.Processed++
	e.metrics.RotationsProcessedTotal.Inc()
}

func (e *Engine) rotateOrFinalize(ctx context.Context, c *campaign.Campaign) error {
	now := e.now()

	if !now.Before(c.EndsAt) {
		if err := e.finalizer.Finalize(ctx, c); err != nil {
			return e.handleFailure(ctx, c, err)
		}
		return nil
	}

	// Admit the whole rotation up front. The expensive write dominates the
	// cost, so denying on it keeps a cycle from burning the read budget on
	// rotations it can never complete.
	check := e.ledger.CheckQuota(ctx, quota.OpVideosUpdate)
	if !check.Allowed {
		reason := fmt.Sprintf("daily quota exhausted (%d/%d units)", check.CurrentUsage, check.CurrentUsage+check.RemainingQuota)
		if check.CircuitBreakerActive {
			reason = "quota circuit breaker active"
		}
		log.Warn().Str("campaign_id", c.ID.String()).Str("reason", reason).Msg("rotation blocked by quota")
		if err := e.campaigns.MarkQuotaExceeded(ctx, c.ID, reason); err != nil {
			return err
		}
		return errQuotaBlocked
	}

	if err := e.rotate(ctx, c, now); err != nil {
		return e.handleFailure(ctx, c, err)
	}
	return nil
}

// rotate advances the campaign to its next variant. A single metric snapshot
// both closes the outgoing window and opens the next one, so no views are
// counted twice or lost between windows.
func (e *Engine) rotate(ctx context.Context, c *campaign.Campaign, now time.Time) error {
	views, err := e.platform.GetVideoViewCount(ctx, c.UserID, c.VideoID)
	if err != nil {
		return err
	}

	open, err := e.windows.GetOpenByCampaign(ctx, c.ID)
	if err != nil {
		return err
	}
	if open != nil {
		if err := e.windows.Close(ctx, open.ID, open.CloseWindow(now, views)); err != nil {
			return err
		}
	}

	nextIdx := c.NextVariantIndex()
	nextTitle := c.TitleVariants[nextIdx]

	if err := e.platform.UpdateVideoTitle(ctx, c.UserID, c.VideoID, nextTitle); err != nil {
		return err
	}

	if err := e.windows.OpenWindow(ctx, c.ID, nextIdx, nextTitle, views, now); err != nil {
		return err
	}

	// The last rotation before the end date gets clipped so finalization
	// runs as soon as the test period is over
	next := now.Add(time.Duration(c.RotationHours) * time.Hour)
	if next.After(c.EndsAt) {
		next = c.EndsAt
	}

	if err := e.campaigns.ApplyRotation(ctx, c.ID, nextIdx, nextTitle, sql.NullTime{Time: next, Valid: true}); err != nil {
		return err
	}

	units := quota.Cost(quota.OpVideosList) + quota.Cost(quota.OpVideosUpdate)
	if err := e.accounts.IncrementDailyUsage(ctx, c.UserID, 1, units); err != nil {
		log.Warn().Err(err).Str("campaign_id", c.ID.String()).Msg("failed to increment daily usage")
	}

	log.Info().
		Str("campaign_id", c.ID.String()).
		Int("title_index", nextIdx).
		Str("title", nextTitle).
		Time("next_rotation_at", next).
		Msg("title rotated")

	return nil
}

// handleFailure records a rotation error. Quota denials park the campaign in
// QUOTA_EXCEEDED; anything else counts toward the consecutive-error streak
// and pauses the campaign in ERROR once the streak reaches the threshold.
func (e *Engine) handleFailure(ctx context.Context, c *campaign.Campaign, cause error) error {
	if errors.Is(cause, quota.ErrQuotaExceeded) {
		if err := e.campaigns.MarkQuotaExceeded(ctx, c.ID, cause.Error()); err != nil {
			return err
		}
		return cause
	}

	autoPause := c.ConsecutiveErrors+1 >= campaign.MaxConsecutiveErrors
	if err := e.campaigns.RecordRotationFailure(ctx, c.ID, cause.Error(), autoPause); err != nil {
		return err
	}

	if autoPause {
		log.Error().
			Err(cause).
			Str("campaign_id", c.ID.String()).
			Int("consecutive_errors", c.ConsecutiveErrors+1).
			Msg("campaign auto-paused after repeated rotation failures")
	}

	return cause
}

func (e *Engine) observeCycle(result *CycleResult) {
	outcome := "ok"
	if result.Failed > 0 {
		outcome = "partial"
	}
	if result.Processed == 0 && result.Failed > 0 {
		outcome = "failed"
	}

	e.metrics.CyclesTotal.WithLabelValues(outcome).Inc()
	e.metrics.CycleDurationSeconds.Observe(result.Duration.Seconds())

	if result.Quota != nil {
		e.metrics.QuotaUnitsUsed.Set(float64(result.Quota.CurrentUsage))
		if result.Quota.CircuitBreakerActive {
			e.metrics.CircuitBreakerActive.Set(1)
		} else {
			e.metrics.CircuitBreakerActive.Set(0)
		}
	}
}
