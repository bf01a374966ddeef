// Package services contains server-side business logic. This file implements
// AuthService, which authenticates credentials, issues and checks sessions,
// and changes passwords, auditing every security-relevant outcome.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/cryptox"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authcore/internal/timex"
)

// Hasher derives and checks password digests. *cryptox.PasswordHasher is the
// production implementation.
type Hasher interface {
	Hash(password string, salt []byte) (digest []byte, usedSalt []byte, err error)
	Verify(password string, digest, salt []byte) bool
}

// UserInfo is the identity handed to callers. It never carries credentials.
type UserInfo struct {
	ID               string
	Username         string
	Role             models.Role
	SessionCreatedAt time.Time
	SessionExpiresAt time.Time
}

// LoginResult bundles the authenticated user with the session created for
// them.
type LoginResult struct {
	User      UserInfo
	Token     string
	ExpiresAt time.Time
}

// AuthService provides the authentication operations:
// - AuthenticateUser / Login: check credentials under the lockout policy
// - CreateSession / ValidateSession / LogoutSession: session lifecycle
// - ChangePassword: rotate credentials and revoke every session
// - CleanupExpiredSessions: periodic maintenance
type AuthService struct {
	repomanager repomanager.RepositoryManager
	hasher      Hasher
	policy      PasswordPolicy
	limiter     *RateLimiter
	sessions    *SessionStore
	audit       *AuditLog
	clock       timex.Clock
	logger      logging.Logger

	dummyMu     sync.Mutex
	dummyDigest []byte
	dummySalt   []byte
}

// Option customizes an AuthService.
type Option func(*options)

type options struct {
	clock    timex.Clock
	hasher   Hasher
	logger   logging.Logger
	policy   *PasswordPolicy
	newToken func() (string, error)
}

func WithClock(c timex.Clock) Option { return func(o *options) { o.clock = c } }

func WithHasher(h Hasher) Option { return func(o *options) { o.hasher = h } }

func WithLogger(l logging.Logger) Option { return func(o *options) { o.logger = l } }

func WithPasswordPolicy(p PasswordPolicy) Option { return func(o *options) { o.policy = &p } }

// WithTokenGenerator replaces the session token source.
func WithTokenGenerator(f func() (string, error)) Option {
	return func(o *options) { o.newToken = f }
}

// NewAuthService constructs an AuthService using repositories and server config.
func NewAuthService(m repomanager.RepositoryManager, cfg *config.Config, opts ...Option) *AuthService {
	o := options{
		clock:  time.Now,
		hasher: cryptox.NewPasswordHasher(),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	policy := DefaultPasswordPolicy()
	if o.policy != nil {
		policy = *o.policy
	}

	sessions := NewSessionStore(m, cfg.SessionValidityDuration, cfg.RememberValidityDuration, o.clock, o.logger)
	if o.newToken != nil {
		sessions.newToken = o.newToken
	}

	return &AuthService{
		repomanager: m,
		hasher:      o.hasher,
		policy:      policy,
		limiter:     NewRateLimiter(m, cfg.MaxLoginAttempts, cfg.LockoutDuration, o.clock, o.logger),
		sessions:    sessions,
		audit:       NewAuditLog(m, o.clock, o.logger),
		clock:       o.clock,
		logger:      o.logger.With("module", "auth"),
	}
}

// Audit exposes the audit log so transports can record their own events.
func (s *AuthService) Audit() *AuditLog { return s.audit }

// Policy returns the password policy enforced by ChangePassword.
func (s *AuthService) Policy() PasswordPolicy { return s.policy }

// AuthenticateUser checks login (a username or an email address) and
// password. The lockout is consulted before any credential work. Every
// credential failure returns common.ErrInvalidCredentials; the precise reason
// only reaches the audit log.
func (s *AuthService) AuthenticateUser(ctx context.Context, login, password string, meta ClientMeta) (*UserInfo, error) {
	status, err := s.limiter.Check(ctx, login)
	if err != nil {
		return nil, s.loginError(ctx, login, meta, err)
	}
	if !status.Allowed {
		s.audit.Append(ctx, s.event(models.EventLoginBlocked, "", login, meta, false,
			map[string]any{"reason": "rate_limited", "attempts": status.Attempts}))
		rl := &common.RateLimitedError{MinutesRemaining: status.MinutesRemaining}
		if status.LockedUntil != nil {
			rl.LockedUntil = *status.LockedUntil
		}
		return nil, rl
	}

	user, err := s.repomanager.Users(s.repomanager.Conn()).GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// Burn the same hashing cost as a real check.
			s.verifyDummy(ctx, password)
			return nil, s.loginFailed(ctx, "", login, meta, "user_not_found")
		}
		return nil, s.loginError(ctx, login, meta, err)
	}

	if !user.IsActive {
		return nil, s.loginFailed(ctx, user.ID, login, meta, "account_disabled")
	}

	if !s.hasher.Verify(password, user.PasswordHash, user.Salt) {
		return nil, s.loginFailed(ctx, user.ID, login, meta, "invalid_password")
	}

	if err := s.limiter.Record(ctx, login, true); err != nil {
		return nil, s.loginError(ctx, login, meta, err)
	}
	s.audit.Append(ctx, s.event(models.EventLoginSuccess, user.ID, login, meta, true, nil))

	return &UserInfo{ID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// Login authenticates and, on success, opens a session.
func (s *AuthService) Login(ctx context.Context, login, password string, meta ClientMeta, remember bool) (*LoginResult, error) {
	user, err := s.AuthenticateUser(ctx, login, password, meta)
	if err != nil {
		return nil, err
	}

	sess, err := s.createSession(ctx, user.ID, meta, remember)
	if err != nil {
		return nil, err
	}

	user.SessionCreatedAt = sess.CreatedAt
	user.SessionExpiresAt = sess.ExpiresAt
	return &LoginResult{User: *user, Token: sess.Token, ExpiresAt: sess.ExpiresAt}, nil
}

// CreateSession opens a session for userID and returns its token. A storage
// failure is reported as common.ErrorInternal, never as an empty token.
func (s *AuthService) CreateSession(ctx context.Context, userID string, meta ClientMeta, remember bool) (string, error) {
	sess, err := s.createSession(ctx, userID, meta, remember)
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

func (s *AuthService) createSession(ctx context.Context, userID string, meta ClientMeta, remember bool) (*models.Session, error) {
	sess, err := s.sessions.Create(ctx, userID, meta, remember)
	if err != nil {
		s.logger.Error(ctx, "session creation failed", "user_id", userID, "error", err)
		return nil, common.ErrorInternal
	}
	s.audit.Append(ctx, s.event(models.EventSessionCreated, userID, "", meta, true,
		map[string]any{"remember": remember}))
	return sess, nil
}

// ValidateSession resolves token to its user. Unknown, expired, revoked and
// disabled-owner sessions all yield common.ErrSessionInvalid.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*UserInfo, error) {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		var expired *sessionExpiredError
		if errors.As(err, &expired) {
			s.audit.Append(ctx, s.event(models.EventSessionExpired, expired.userID, "", ClientMeta{}, false,
				map[string]any{"session_token": cryptox.TokenPrefix(token)}))
			return nil, common.ErrSessionInvalid
		}
		if errors.Is(err, common.ErrSessionInvalid) {
			return nil, common.ErrSessionInvalid
		}
		s.logger.Error(ctx, "session validation failed", "error", err)
		return nil, common.ErrorInternal
	}

	return &UserInfo{
		ID:               sess.UserID,
		Username:         sess.Username,
		Role:             sess.Role,
		SessionCreatedAt: sess.CreatedAt,
		SessionExpiresAt: sess.ExpiresAt,
	}, nil
}

// LogoutSession ends the session and reports whether it was active.
func (s *AuthService) LogoutSession(ctx context.Context, token string) (bool, error) {
	userID, ok, err := s.sessions.Invalidate(ctx, token)
	if err != nil {
		s.logger.Error(ctx, "logout failed", "error", err)
		return false, common.ErrorInternal
	}
	if ok {
		s.audit.Append(ctx, s.event(models.EventLogout, userID, "", ClientMeta{}, true,
			map[string]any{"session_token": cryptox.TokenPrefix(token)}))
	}
	return ok, nil
}

// ChangePassword replaces the password of userID after checking the policy
// and the current password. The new credentials and the revocation of every
// session of the user are committed together.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, clientIP string) error {
	check := s.policy.Check(newPassword)
	if !check.Valid() {
		return &common.ValidationError{Reasons: check.Reasons, Strength: check.Strength}
	}

	user, err := s.repomanager.Users(s.repomanager.Conn()).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		s.logger.Error(ctx, "password change lookup failed", "user_id", userID, "error", err)
		return common.ErrorInternal
	}

	meta := ClientMeta{IP: clientIP}
	if !s.hasher.Verify(currentPassword, user.PasswordHash, user.Salt) {
		s.audit.Append(ctx, s.event(models.EventPasswordChangeFailed, user.ID, user.Username, meta, false,
			map[string]any{"reason": "invalid_current_password"}))
		return common.ErrInvalidCredentials
	}

	digest, salt, err := s.hasher.Hash(newPassword, nil)
	if err != nil {
		s.logger.Error(ctx, "password hashing failed", "user_id", userID, "error", err)
		return common.ErrorInternal
	}

	var revoked int64
	err = s.repomanager.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).UpdatePassword(ctx, user.ID, digest, salt, s.clock.Now()); err != nil {
			return err
		}
		n, err := s.repomanager.Sessions(tx).DeactivateAllForUser(ctx, user.ID)
		revoked = n
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "password change failed", "user_id", userID, "error", err)
		return common.ErrorInternal
	}

	s.audit.Append(ctx, s.event(models.EventPasswordChanged, user.ID, user.Username, meta, true,
		map[string]any{"strength": check.Strength}))
	if revoked > 0 {
		s.audit.Append(ctx, s.event(models.EventSessionsRevoked, user.ID, user.Username, meta, true,
			map[string]any{"count": revoked}))
	}
	return nil
}

// CleanupExpiredSessions retires every expired session and returns how many
// were retired.
func (s *AuthService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.SweepExpired(ctx)
	if err != nil {
		s.logger.Error(ctx, "session cleanup failed", "error", err)
		return 0, common.ErrorInternal
	}
	if n > 0 {
		s.logger.Info(ctx, "expired sessions cleaned up", "count", n)
	}
	return n, nil
}

// RecentAuditEvents returns the newest audit events first.
func (s *AuthService) RecentAuditEvents(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	events, err := s.audit.Recent(ctx, limit)
	if err != nil {
		s.logger.Error(ctx, "audit read failed", "error", err)
		return nil, common.ErrorInternal
	}
	return events, nil
}

// --- helpers below ---

func (s *AuthService) event(t models.AuditEventType, userID, username string, meta ClientMeta, success bool, details map[string]any) *models.AuditEvent {
	return &models.AuditEvent{
		CreatedAt: s.clock.Now(),
		EventType: t,
		UserID:    models.OptionalString(userID),
		Username:  models.OptionalString(username),
		ClientIP:  models.OptionalString(meta.IP),
		UserAgent: models.OptionalString(meta.UserAgent),
		Details:   details,
		Success:   success,
	}
}

func (s *AuthService) loginFailed(ctx context.Context, userID, login string, meta ClientMeta, reason string) error {
	if err := s.limiter.Record(ctx, login, false); err != nil {
		return s.loginError(ctx, login, meta, err)
	}
	s.audit.Append(ctx, s.event(models.EventLoginFailed, userID, login, meta, false,
		map[string]any{"reason": reason}))
	return common.ErrInvalidCredentials
}

func (s *AuthService) loginError(ctx context.Context, login string, meta ClientMeta, err error) error {
	s.logger.Error(ctx, "authentication error", "login", login, "error", err)
	s.audit.Append(ctx, s.event(models.EventLoginError, "", login, meta, false,
		map[string]any{"error": "internal_error"}))
	return common.ErrorInternal
}

// fallbackDummySalt is used only when no random dummy credentials could be made.
var fallbackDummySalt = []byte("authcore-dummy-credential-salt!!")

// verifyDummy spends one password verification for a login that has no
// user. The dummy credentials are created on first use; a failure is logged
// and retried by the next call, and the cost is still paid with a fixed salt.
func (s *AuthService) verifyDummy(ctx context.Context, password string) {
	s.dummyMu.Lock()
	if s.dummyDigest == nil {
		digest, salt, err := s.hasher.Hash("dummy-password", nil)
		if err != nil {
			s.logger.Error(ctx, "dummy credential generation failed", "error", err)
		} else {
			s.dummyDigest, s.dummySalt = digest, salt
		}
	}
	digest, salt := s.dummyDigest, s.dummySalt
	s.dummyMu.Unlock()

	if digest == nil {
		_, _, _ = s.hasher.Hash(password, fallbackDummySalt)
		return
	}
	_ = s.hasher.Verify(password, digest, salt)
}
