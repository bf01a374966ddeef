package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/cryptox"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authcore/internal/timex"
)

// ClientMeta describes where a request came from.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// sessionExpiredError is returned by Validate when it retired an expired
// session. It matches common.ErrSessionInvalid.
type sessionExpiredError struct {
	userID string
}

func (e *sessionExpiredError) Error() string { return "session expired" }

func (e *sessionExpiredError) Unwrap() error { return common.ErrSessionInvalid }

// SessionStore issues and checks opaque session tokens.
type SessionStore struct {
	repomanager repomanager.RepositoryManager
	validity    time.Duration
	remember    time.Duration
	clock       timex.Clock
	newToken    func() (string, error)
	logger      logging.Logger
}

func NewSessionStore(m repomanager.RepositoryManager, validity, remember time.Duration, clock timex.Clock, logger logging.Logger) *SessionStore {
	if validity <= 0 {
		validity = 8 * time.Hour
	}
	if remember <= 0 {
		remember = 168 * time.Hour
	}
	return &SessionStore{
		repomanager: m,
		validity:    validity,
		remember:    remember,
		clock:       clock,
		newToken:    cryptox.NewSessionToken,
		logger:      logger.With("module", "sessions"),
	}
}

// Create persists a new active session for userID and returns it.
func (s *SessionStore) Create(ctx context.Context, userID string, meta ClientMeta, remember bool) (*models.Session, error) {
	token, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	ttl := s.validity
	if remember {
		ttl = s.remember
	}
	now := s.clock.Now()

	sess := &models.Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		ClientIP:  meta.IP,
		UserAgent: meta.UserAgent,
	}
	created, err := s.repomanager.Sessions(s.repomanager.Conn()).Create(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return created, nil
}

// Validate returns the active session for token with its owner. Expired
// sessions are deactivated on the way out. A disabled owner makes the
// session unusable without touching it.
func (s *SessionStore) Validate(ctx context.Context, token string) (*models.SessionWithUser, error) {
	if token == "" {
		return nil, common.ErrSessionInvalid
	}
	repo := s.repomanager.Sessions(s.repomanager.Conn())

	sess, err := repo.FindActive(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrSessionInvalid
		}
		return nil, fmt.Errorf("session lookup: %w", err)
	}

	if sess.Expired(s.clock.Now()) {
		// A concurrent sweep may have retired it first; the outcome is the same.
		if _, err := repo.Deactivate(ctx, token); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("session expire: %w", err)
		}
		return nil, &sessionExpiredError{userID: sess.UserID}
	}

	if !sess.UserIsActive {
		return nil, common.ErrSessionInvalid
	}
	return sess, nil
}

// Invalidate ends one session. It returns the owner and whether the session
// was still active.
func (s *SessionStore) Invalidate(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	userID, err := s.repomanager.Sessions(s.repomanager.Conn()).Deactivate(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("session deactivate: %w", err)
	}
	return userID, true, nil
}

// InvalidateAll ends every active session of userID.
func (s *SessionStore) InvalidateAll(ctx context.Context, userID string) (int64, error) {
	return s.repomanager.Sessions(s.repomanager.Conn()).DeactivateAllForUser(ctx, userID)
}

// SweepExpired deactivates every active session past its expiry. Running it
// again without new expiries changes nothing.
func (s *SessionStore) SweepExpired(ctx context.Context) (int64, error) {
	return s.repomanager.Sessions(s.repomanager.Conn()).DeactivateExpired(ctx, s.clock.Now())
}
