package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/google/uuid"
)

type SessionRepository struct {
	s *Store
}

func (r *SessionRepository) Create(_ context.Context, sess *models.Session) (*models.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[sess.UserID]; !ok {
		return nil, fmt.Errorf("session owner %s: %w", sess.UserID, common.ErrorNotFound)
	}
	if _, dup := r.s.sessions[sess.Token]; dup {
		return nil, fmt.Errorf("session token: %w", common.ErrorAlreadyExists)
	}
	if !sess.ExpiresAt.After(sess.CreatedAt) {
		return nil, fmt.Errorf("session expires at %s, not after %s", sess.ExpiresAt, sess.CreatedAt)
	}

	sess.ID = uuid.NewString()
	sess.IsActive = true
	c := *sess
	r.s.sessions[sess.Token] = &c
	return sess, nil
}

func (r *SessionRepository) FindActive(_ context.Context, token string) (*models.SessionWithUser, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sess, ok := r.s.sessions[token]
	if !ok || !sess.IsActive {
		return nil, common.ErrorNotFound
	}
	u, ok := r.s.users[sess.UserID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &models.SessionWithUser{
		Session:      *sess,
		Username:     u.Username,
		Role:         u.Role,
		UserIsActive: u.IsActive,
	}, nil
}

func (r *SessionRepository) Deactivate(_ context.Context, token string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sess, ok := r.s.sessions[token]
	if !ok || !sess.IsActive {
		return "", common.ErrorNotFound
	}
	sess.IsActive = false
	return sess.UserID, nil
}

func (r *SessionRepository) DeactivateAllForUser(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, sess := range r.s.sessions {
		if sess.UserID == userID && sess.IsActive {
			sess.IsActive = false
			n++
		}
	}
	return n, nil
}

func (r *SessionRepository) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, sess := range r.s.sessions {
		if sess.IsActive && sess.Expired(now) {
			sess.IsActive = false
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the session in any state.
func (r *SessionRepository) Get(token string) (*models.Session, bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sess, ok := r.s.sessions[token]
	if !ok {
		return nil, false
	}
	c := *sess
	return &c, true
}
