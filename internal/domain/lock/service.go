package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "lock:"

// Config holds lock service tuning
type Config struct {
	TTL        time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig matches the reference deployment: 30s TTL, 10 retries, 100ms backoff
func DefaultConfig() Config {
	return Config{
		TTL:        30 * time.Second,
		MaxRetries: 10,
		RetryDelay: 100 * time.Millisecond,
	}
}

// Lock is the result of an acquisition attempt
type Lock struct {
	Acquired bool
	LockID   string
}

// Info describes the current holder of a resource, for diagnostics
type Info struct {
	Locked bool          `json:"locked"`
	LockID string        `json:"lock_id,omitempty"`
	TTL    time.Duration `json:"ttl,omitempty"`
}

// Service provides per-resource mutual exclusion with TTL auto-expiry.
// Used to serialize rotation of a single campaign across overlapping
// scheduler invocations.
type Service struct {
	store Store
	cfg   Config
}

// NewService creates the lock service
func NewService(store Store, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	return &Service{store: store, cfg: cfg}
}

// Acquire attempts a set-if-absent with TTL, retrying a fixed number of times
// with fixed backoff. Never blocks indefinitely: after the retries are spent
// the caller gets Acquired=false and must skip the resource for this cycle.
func (s *Service) Acquire(ctx context.Context, resource string) (*Lock, error) {
	lockID := uuid.New().String()
	key := keyPrefix + resource

	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		acquired, err := s.store.SetNX(ctx, key, lockID, s.cfg.TTL)
		if err != nil {
			log.Error().Err(err).
				Str("resource", resource).
				Int("attempt", attempt+1).
				Msg("Lock acquisition error")

			if attempt == s.cfg.MaxRetries-1 {
				return nil, err
			}
		}

		if acquired {
			log.Debug().
				Str("resource", resource).
				Str("lock_id", lockID).
				Int("attempt", attempt+1).
				Msg("Lock acquired")
			return &Lock{Acquired: true, LockID: lockID}, nil
		}

		if attempt < s.cfg.MaxRetries-1 {
			select {
			case <-time.After(s.cfg.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	log.Warn().
		Str("resource", resource).
		Int("max_retries", s.cfg.MaxRetries).
		Msg("Failed to acquire lock after max retries")

	return &Lock{Acquired: false, LockID: lockID}, nil
}

// Release deletes the lock only if the stored token still matches lockID.
// Returns false when the lock is held by someone else or already expired.
func (s *Service) Release(ctx context.Context, resource, lockID string) bool {
	released, err := s.store.CompareAndDelete(ctx, keyPrefix+resource, lockID)
	if err != nil {
		log.Error().Err(err).Str("resource", resource).Msg("Lock release error")
		return false
	}

	if !released {
		log.Warn().
			Str("resource", resource).
			Str("lock_id", lockID).
			Msg("Attempted to release lock not owned")
		return false
	}

	log.Debug().Str("resource", resource).Str("lock_id", lockID).Msg("Lock released")
	return true
}

// Extend refreshes the TTL if the caller still owns the lock
func (s *Service) Extend(ctx context.Context, resource, lockID string) bool {
	extended, err := s.store.CompareAndExpire(ctx, keyPrefix+resource, lockID, s.cfg.TTL)
	if err != nil {
		log.Error().Err(err).Str("resource", resource).Msg("Lock extension error")
		return false
	}
	return extended
}

// IsLocked reports whether a resource currently has a holder
func (s *Service) IsLocked(ctx context.Context, resource string) (bool, error) {
	_, found, err := s.store.Get(ctx, keyPrefix+resource)
	if err != nil {
		return false, err
	}
	return found, nil
}

// GetInfo returns the current holder token and remaining TTL
func (s *Service) GetInfo(ctx context.Context, resource string) (*Info, error) {
	key := keyPrefix + resource

	lockID, found, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return &Info{Locked: false}, nil
	}

	ttl, err := s.store.TTL(ctx, key)
	if err != nil {
		return nil, err
	}

	info := &Info{Locked: true, LockID: lockID}
	if ttl > 0 {
		info.TTL = ttl
	}
	return info, nil
}
