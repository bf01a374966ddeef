package ratelimits

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

type Repository interface {
	// Get returns the counter for identifier or common.ErrorNotFound.
	Get(ctx context.Context, identifier string) (*models.RateLimit, error)
	// ResetElapsedLock clears the counter if its lock ran out at or before
	// now, and reports whether it did.
	ResetElapsedLock(ctx context.Context, identifier string, now time.Time) (bool, error)
	// RecordFailure adds one failed attempt in a single statement. When the
	// new count reaches maxAttempts, locked_until is set to lockUntil.
	RecordFailure(ctx context.Context, identifier string, now time.Time, maxAttempts int, lockUntil time.Time) (*models.RateLimit, error)
	Delete(ctx context.Context, identifier string) error
}
