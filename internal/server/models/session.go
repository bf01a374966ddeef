package models

import "time"

// Session is a server-side login session. Sessions are never deleted by the
// validation path; they only move from active to inactive.
type Session struct {
	ID        string
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	ClientIP  string
	UserAgent string
	IsActive  bool
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionWithUser is an active-session lookup joined with its owner.
type SessionWithUser struct {
	Session
	Username     string
	Role         Role
	UserIsActive bool
}
