package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/diagnostico-bot/pkg/logging"
)

// Sweeper evicts sessions that have not been touched within the TTL.
type Sweeper struct {
	store  Store
	locks  *Locker
	ttl    time.Duration
	now    func() time.Time
	logger *logging.Logger
}

// NewSweeper creates a TTL sweeper. locks may be nil when no handler shares the store.
func NewSweeper(store Store, locks *Locker, ttl time.Duration, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{store: store, locks: locks, ttl: ttl, now: time.Now, logger: logger}
}

// Sweep deletes every expired session and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	sessions, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("session: sweep list: %w", err)
	}
	removed := 0
	for _, candidate := range sessions {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !candidate.Expired(s.now(), s.ttl) {
			continue
		}
		ok, err := s.evict(ctx, candidate.UserID)
		if err != nil {
			s.logger.Warn("session sweep: delete failed", "error", err, "user", logging.MaskPhone(candidate.UserID))
			continue
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("session sweep completed", "removed", removed, "remaining", len(sessions)-removed)
	}
	return removed, nil
}

// evict re-reads the session under the user lock so an event that just
// refreshed it is not discarded.
func (s *Sweeper) evict(ctx context.Context, userID string) (bool, error) {
	if s.locks != nil {
		unlock := s.locks.Lock(userID)
		defer unlock()
	}
	current, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !current.Expired(s.now(), s.ttl) {
		return false, nil
	}
	return true, s.store.Delete(ctx, userID)
}
