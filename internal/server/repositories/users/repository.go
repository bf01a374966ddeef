package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// GetByLogin matches login against the username or the email address.
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdatePassword(ctx context.Context, id string, hash, salt []byte, changedAt time.Time) error
}
