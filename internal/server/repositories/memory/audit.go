package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

type AuditRepository struct {
	s *Store
}

func (r *AuditRepository) Append(_ context.Context, e *models.AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextEvent++
	e.ID = r.s.nextEvent
	c := *e
	c.Details = maps.Clone(e.Details)
	r.s.audit = append(r.s.audit, c)
	return nil
}

func (r *AuditRepository) Recent(_ context.Context, limit int) ([]models.AuditEvent, error) {
	r.s.mu.Lock()
	out := slices.Clone(r.s.audit)
	r.s.mu.Unlock()

	slices.SortStableFunc(out, func(a, b models.AuditEvent) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *AuditRepository) AfterID(_ context.Context, afterID int64, limit int) ([]models.AuditEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.AuditEvent
	for _, e := range r.s.audit {
		if e.ID > afterID {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b models.AuditEvent) int { return cmp.Compare(a.ID, b.ID) })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *AuditRepository) LastID(context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.nextEvent, nil
}
