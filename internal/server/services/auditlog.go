package services

import (
	"context"

	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authcore/internal/timex"
)

const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 1000
)

// AuditLog writes security events. Append never fails from the caller's
// point of view: a storage error is logged and dropped.
type AuditLog struct {
	repomanager repomanager.RepositoryManager
	clock       timex.Clock
	logger      logging.Logger
}

func NewAuditLog(m repomanager.RepositoryManager, clock timex.Clock, logger logging.Logger) *AuditLog {
	return &AuditLog{repomanager: m, clock: clock, logger: logger.With("module", "audit")}
}

// Append stamps e with the current time when it has none, stores it and
// mirrors it to the structured log.
func (a *AuditLog) Append(ctx context.Context, e *models.AuditEvent) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = a.clock.Now()
	}

	args := []any{"event_type", e.EventType, "success", e.Success}
	if e.UserID != nil {
		args = append(args, "user_id", *e.UserID)
	}
	if e.Username != nil {
		args = append(args, "username", *e.Username)
	}
	if e.ClientIP != nil {
		args = append(args, "client_ip", *e.ClientIP)
	}
	if len(e.Details) > 0 {
		args = append(args, "details", e.Details)
	}
	a.logger.Info(ctx, "security event", args...)

	if err := a.repomanager.Audit(a.repomanager.Conn()).Append(ctx, e); err != nil {
		a.logger.Error(ctx, "audit write failed", append(args, "error", err)...)
	}
}

// Recent returns the newest events first. limit is clamped to
// [1, MaxAuditLimit]; zero or negative selects DefaultAuditLimit.
func (a *AuditLog) Recent(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	switch {
	case limit <= 0:
		limit = DefaultAuditLimit
	case limit > MaxAuditLimit:
		limit = MaxAuditLimit
	}
	return a.repomanager.Audit(a.repomanager.Conn()).Recent(ctx, limit)
}
