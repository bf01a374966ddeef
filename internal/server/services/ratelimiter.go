package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authcore/internal/timex"
)

// RateLimitStatus is the answer of RateLimiter.Check.
type RateLimitStatus struct {
	Allowed          bool
	Attempts         int
	LockedUntil      *time.Time
	MinutesRemaining int
}

// RateLimiter counts failed logins per claimed identifier and locks the
// identifier out once MaxAttempts is reached.
type RateLimiter struct {
	repomanager repomanager.RepositoryManager
	maxAttempts int
	lockout     time.Duration
	clock       timex.Clock
	logger      logging.Logger
}

func NewRateLimiter(m repomanager.RepositoryManager, maxAttempts int, lockout time.Duration, clock timex.Clock, logger logging.Logger) *RateLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if lockout <= 0 {
		lockout = 15 * time.Minute
	}
	return &RateLimiter{
		repomanager: m,
		maxAttempts: maxAttempts,
		lockout:     lockout,
		clock:       clock,
		logger:      logger.With("module", "ratelimiter"),
	}
}

// NormalizeIdentifier is the key under which attempts are counted.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Check reports whether a login attempt for identifier may proceed. A lock
// that has run out is cleared as a side effect.
func (l *RateLimiter) Check(ctx context.Context, identifier string) (*RateLimitStatus, error) {
	key := NormalizeIdentifier(identifier)
	repo := l.repomanager.RateLimits(l.repomanager.Conn())
	now := l.clock.Now()

	rec, err := repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return &RateLimitStatus{Allowed: true}, nil
		}
		return nil, fmt.Errorf("rate limit lookup: %w", err)
	}

	if rec.Locked(now) {
		until := *rec.LockedUntil
		return &RateLimitStatus{
			Allowed:          false,
			Attempts:         rec.Attempts,
			LockedUntil:      &until,
			MinutesRemaining: minutesUntil(now, until),
		}, nil
	}

	if rec.LockElapsed(now) {
		if _, err := repo.ResetElapsedLock(ctx, key, now); err != nil {
			return nil, fmt.Errorf("rate limit reset: %w", err)
		}
		l.logger.Debug(ctx, "lockout elapsed", "identifier", key)
		return &RateLimitStatus{Allowed: true}, nil
	}

	return &RateLimitStatus{
		Allowed:  rec.Attempts < l.maxAttempts,
		Attempts: rec.Attempts,
	}, nil
}

// Record registers the outcome of an attempt. Success forgets every prior
// failure; a failure is counted atomically and may start a lockout.
func (l *RateLimiter) Record(ctx context.Context, identifier string, success bool) error {
	key := NormalizeIdentifier(identifier)
	repo := l.repomanager.RateLimits(l.repomanager.Conn())

	if success {
		if err := repo.Delete(ctx, key); err != nil {
			return fmt.Errorf("rate limit clear: %w", err)
		}
		return nil
	}

	now := l.clock.Now()
	rec, err := repo.RecordFailure(ctx, key, now, l.maxAttempts, now.Add(l.lockout))
	if err != nil {
		return fmt.Errorf("rate limit record: %w", err)
	}
	if rec.LockedUntil != nil && rec.Attempts == l.maxAttempts {
		l.logger.Warn(ctx, "identifier locked out", "identifier", key, "attempts", rec.Attempts, "locked_until", *rec.LockedUntil)
	}
	return nil
}

func minutesUntil(now, until time.Time) int {
	return int(math.Ceil(until.Sub(now).Minutes()))
}
