package models

import "time"

// Role is the authorization level of a user account.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEmployee
}

// User is the credential record. PasswordHash and Salt are raw bytes and are
// always written together.
type User struct {
	ID                string
	Username          string
	Email             string
	PasswordHash      []byte
	Salt              []byte
	Role              Role
	IsActive          bool
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
}
