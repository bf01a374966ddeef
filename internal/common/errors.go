// Package common defines shared constants and sentinel errors used across
// the service, repository and transport layers. Callers should use errors.Is
// and errors.As to match these values.
package common

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors. ErrorInternal is what callers see for any
	// persistence failure; the underlying error is only logged.
	ErrorInternal = errors.New("internal error")

	// Authentication errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("too many failed login attempts")
	ErrSessionInvalid     = errors.New("invalid or expired session")

	// Input errors.
	ErrValidation = errors.New("validation error")
)

// RateLimitedError is returned when an identifier is locked out. It matches
// ErrRateLimited with errors.Is.
type RateLimitedError struct {
	LockedUntil      time.Time
	MinutesRemaining int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry in %d minute(s)", ErrRateLimited.Error(), e.MinutesRemaining)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// ValidationError carries itemized reasons for a rejected input together with
// the computed password strength label.
type ValidationError struct {
	Reasons  []string
	Strength string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(e.Reasons, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
