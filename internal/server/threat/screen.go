package threat

import (
	"context"

	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/timex"
)

// Auditor records security events. *services.AuditLog implements it.
type Auditor interface {
	Append(ctx context.Context, e *models.AuditEvent)
}

// Screener runs the detector for a transport and audits every block.
type Screener struct {
	detector *Detector
	audit    Auditor
	clock    timex.Clock
	logger   logging.Logger
}

func NewScreener(d *Detector, audit Auditor, clock timex.Clock, logger logging.Logger) *Screener {
	return &Screener{detector: d, audit: audit, clock: clock, logger: logger.With("module", "threat")}
}

// Screen inspects req. A blocked request is logged and audited as
// security_threat before the verdict is returned.
func (s *Screener) Screen(ctx context.Context, req Request) Verdict {
	v := s.detector.Inspect(req)
	if v.Allowed {
		return v
	}

	s.logger.Warn(ctx, "security threat detected",
		"client_ip", req.ClientIP, "reason", v.Reason, "source", string(v.Source), "path", req.Path)

	s.audit.Append(ctx, &models.AuditEvent{
		CreatedAt: s.clock.Now(),
		EventType: models.EventSecurityThreat,
		ClientIP:  models.OptionalString(req.ClientIP),
		UserAgent: models.OptionalString(req.UserAgent),
		Details: map[string]any{
			"category": v.Category,
			"reason":   v.Reason,
			"source":   string(v.Source),
			"method":   req.Method,
			"path":     req.Path,
		},
		Success: false,
	})
	return v
}
