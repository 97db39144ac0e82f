package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	cacheTTL       = 24 * time.Hour
	cacheKeyPrefix = "quota:"
)

// Config holds the daily budget thresholds
type Config struct {
	DailyQuota              int64
	WarningThreshold        int64
	CircuitBreakerThreshold int64
}

// Service is the quota ledger: admission checks and usage accounting against
// a shared daily budget of weighted API units.
//
// CheckQuota is advisory, not a reservation. Concurrent callers may both pass
// the check before either records usage; the budget is approximate by design.
type Service struct {
	cache Cache
	repo  Repository
	cfg   Config

	now func() time.Time
}

// NewService creates the quota ledger service
func NewService(cache Cache, repo Repository, cfg Config) *Service {
	return &Service{
		cache: cache,
		repo:  repo,
		cfg:   cfg,
		now:   time.Now,
	}
}

// CheckQuota reads today's cumulative usage and decides whether an operation
// of the given class may proceed. A ledger read failure fails safe: the
// operation is denied as if the circuit breaker were active.
func (s *Service) CheckQuota(ctx context.Context, op Operation) *CheckResult {
	cost := Cost(op)

	usage, err := s.currentUsage(ctx)
	if err != nil {
		log.Error().Err(err).Str("operation", string(op)).Msg("Quota check failed, denying operation")
		return &CheckResult{
			Allowed:              false,
			CircuitBreakerActive: true,
		}
	}

	projected := usage + cost
	circuitBreakerActive := usage >= s.cfg.CircuitBreakerThreshold
	allowed := !circuitBreakerActive && projected <= s.cfg.DailyQuota

	if usage >= s.cfg.WarningThreshold && !circuitBreakerActive {
		log.Warn().
			Int64("current_usage", usage).
			Int64("remaining", s.cfg.DailyQuota-usage).
			Str("operation", string(op)).
			Msg("Approaching daily quota limit")
	}

	if circuitBreakerActive && usage == s.cfg.CircuitBreakerThreshold {
		log.Error().
			Int64("current_usage", usage).
			Int64("threshold", s.cfg.CircuitBreakerThreshold).
			Str("operation", string(op)).
			Msg("Circuit breaker activated, API calls stopped")

		if err := s.repo.SetCircuitBreakerTripped(ctx, s.now(), usage); err != nil {
			log.Error().Err(err).Msg("Failed to persist circuit breaker state")
		}
	}

	return &CheckResult{
		Allowed:              allowed,
		CurrentUsage:         usage,
		RemainingQuota:       s.cfg.DailyQuota - usage,
		CircuitBreakerActive: circuitBreakerActive,
		ProjectedUsage:       projected,
	}
}

// RecordUsage increments today's counters by the operation's unit cost.
// Must be called only after the corresponding external call succeeded: the
// remote service charges regardless of local bookkeeping, so a missed record
// leaves the ledger under-counted rather than over-counted.
func (s *Service) RecordUsage(ctx context.Context, op Operation) error {
	cost := Cost(op)
	key := s.cacheKey()

	newUsage, err := s.cache.IncrBy(ctx, key, cost)
	if err != nil {
		return fmt.Errorf("increment quota cache: %w", err)
	}

	if err := s.cache.Expire(ctx, key, cacheTTL); err != nil {
		log.Warn().Err(err).Msg("Failed to set quota cache expiry")
	}

	if err := s.repo.RecordCall(ctx, s.now(), op, newUsage); err != nil {
		return fmt.Errorf("record quota usage: %w", err)
	}

	log.Debug().
		Str("operation", string(op)).
		Int64("cost", cost).
		Int64("new_usage", newUsage).
		Msg("Quota usage recorded")

	return nil
}

// GetStatus returns the full quota snapshot for today
func (s *Service) GetStatus(ctx context.Context) *Status {
	usage, err := s.currentUsage(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Quota status read failed")
		usage = 0
	}

	return &Status{
		TotalQuota:              s.cfg.DailyQuota,
		CurrentUsage:            usage,
		RemainingQuota:          s.cfg.DailyQuota - usage,
		WarningThreshold:        s.cfg.WarningThreshold,
		CircuitBreakerThreshold: s.cfg.CircuitBreakerThreshold,
		CircuitBreakerActive:    usage >= s.cfg.CircuitBreakerThreshold,
	}
}

// ResetQuota zeroes today's counters in both tiers (operational/testing)
func (s *Service) ResetQuota(ctx context.Context) error {
	if err := s.cache.Del(ctx, s.cacheKey()); err != nil {
		return fmt.Errorf("clear quota cache: %w", err)
	}
	if err := s.repo.Reset(ctx, s.now()); err != nil {
		return fmt.Errorf("reset quota ledger: %w", err)
	}

	log.Info().Str("date", s.dayKey()).Msg("Quota reset")
	return nil
}

// currentUsage reads the fast tier first and falls back to the durable ledger,
// repopulating the cache. Day rollover is implicit in the UTC date key.
func (s *Service) currentUsage(ctx context.Context) (int64, error) {
	key := s.cacheKey()

	usage, found, err := s.cache.GetInt64(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read quota cache: %w", err)
	}

	if !found {
		row, err := s.repo.GetByDate(ctx, s.now())
		if err != nil {
			return 0, fmt.Errorf("read quota ledger: %w", err)
		}
		if row != nil {
			usage = row.TotalUnitsUsed
		}

		if err := s.cache.Set(ctx, key, usage, cacheTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to repopulate quota cache")
		}
	}

	return usage, nil
}

func (s *Service) dayKey() string {
	return s.now().UTC().Format("2006-01-02")
}

func (s *Service) cacheKey() string {
	return cacheKeyPrefix + s.dayKey()
}
