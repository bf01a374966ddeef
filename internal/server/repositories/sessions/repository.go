package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// Repository stores login sessions. Deactivation is one-way: no method
// turns an inactive session back on.
type Repository interface {
	Create(ctx context.Context, s *models.Session) (*models.Session, error)
	// FindActive returns the active session for token joined with its user,
	// or common.ErrorNotFound. Expiry is not checked here.
	FindActive(ctx context.Context, token string) (*models.SessionWithUser, error)
	// Deactivate moves an active session to inactive and returns its owner.
	// common.ErrorNotFound means there was no active session to end.
	Deactivate(ctx context.Context, token string) (string, error)
	DeactivateAllForUser(ctx context.Context, userID string) (int64, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
