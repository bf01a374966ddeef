package models

import "time"

// AuditEventType names a security-relevant action.
type AuditEventType string

const (
	EventLoginSuccess         AuditEventType = "login_success"
	EventLoginFailed          AuditEventType = "login_failed"
	EventLoginBlocked         AuditEventType = "login_blocked"
	EventLoginError           AuditEventType = "login_error"
	EventSessionCreated       AuditEventType = "session_created"
	EventSessionExpired       AuditEventType = "session_expired"
	EventLogout               AuditEventType = "logout"
	EventPasswordChanged      AuditEventType = "password_changed"
	EventPasswordChangeFailed AuditEventType = "password_change_failed"
	EventSessionsRevoked      AuditEventType = "sessions_revoked"
	EventSecurityThreat       AuditEventType = "security_threat"
)

// AuditEvent is an immutable record in the security audit trail. Optional
// attributes are nil when unknown.
type AuditEvent struct {
	ID        int64          `json:"id"`
	CreatedAt time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"event_type"`
	UserID    *string        `json:"user_id,omitempty"`
	Username  *string        `json:"username,omitempty"`
	ClientIP  *string        `json:"client_ip,omitempty"`
	UserAgent *string        `json:"user_agent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Success   bool           `json:"success"`
}

// OptionalString returns nil for an empty string so unknown attributes are
// stored as NULL.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
