package memory

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

type RateLimitRepository struct {
	s *Store
}

func copyRateLimit(rl *models.RateLimit) *models.RateLimit {
	c := *rl
	for _, p := range []**time.Time{&c.FirstAttempt, &c.LastAttempt, &c.LockedUntil} {
		if *p != nil {
			t := **p
			*p = &t
		}
	}
	return &c
}

func (r *RateLimitRepository) Get(_ context.Context, identifier string) (*models.RateLimit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rl, ok := r.s.rateLimits[identifier]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyRateLimit(rl), nil
}

func (r *RateLimitRepository) ResetElapsedLock(_ context.Context, identifier string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rl, ok := r.s.rateLimits[identifier]
	if !ok || !rl.LockElapsed(now) {
		return false, nil
	}
	*rl = models.RateLimit{Identifier: identifier}
	return true, nil
}

func (r *RateLimitRepository) RecordFailure(_ context.Context, identifier string, now time.Time, maxAttempts int, lockUntil time.Time) (*models.RateLimit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rl, ok := r.s.rateLimits[identifier]
	if !ok {
		rl = &models.RateLimit{Identifier: identifier}
		r.s.rateLimits[identifier] = rl
	}

	rl.Attempts++
	if rl.FirstAttempt == nil {
		t := now
		rl.FirstAttempt = &t
	}
	last := now
	rl.LastAttempt = &last
	if rl.Attempts >= maxAttempts {
		until := lockUntil
		rl.LockedUntil = &until
	}
	return copyRateLimit(rl), nil
}

func (r *RateLimitRepository) Delete(_ context.Context, identifier string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.rateLimits, identifier)
	return nil
}
