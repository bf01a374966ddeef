package models

import "time"

// RateLimit is the failed-login counter of one identifier.
type RateLimit struct {
	Identifier   string
	Attempts     int
	FirstAttempt *time.Time
	LastAttempt  *time.Time
	LockedUntil  *time.Time
}

// Locked reports whether a lockout is in force at now.
func (r *RateLimit) Locked(now time.Time) bool {
	return r.LockedUntil != nil && r.LockedUntil.After(now)
}

// LockElapsed reports whether a lockout was set and has run out at now.
func (r *RateLimit) LockElapsed(now time.Time) bool {
	return r.LockedUntil != nil && !r.LockedUntil.After(now)
}
