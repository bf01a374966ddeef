package audit

import (
	"context"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// Repository is the append-only security audit log.
type Repository interface {
	// Append stores e and fills in its ID.
	Append(ctx context.Context, e *models.AuditEvent) error
	// Recent returns at most limit events, newest first.
	Recent(ctx context.Context, limit int) ([]models.AuditEvent, error)
	// AfterID returns at most limit events with an id above afterID in id
	// order. Used by the audit exporter.
	AfterID(ctx context.Context, afterID int64, limit int) ([]models.AuditEvent, error)
	// LastID returns the highest stored id, or 0 for an empty log.
	LastID(ctx context.Context) (int64, error)
}
