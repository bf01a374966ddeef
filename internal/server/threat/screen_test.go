package threat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAuditor struct {
	mu     sync.Mutex
	events []*models.AuditEvent
}

func (r *recordingAuditor) Append(_ context.Context, e *models.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestScreen_AuditsBlocks(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := &recordingAuditor{}
	s := NewScreener(Default(), rec, func() time.Time { return at }, logging.Nop())

	v := s.Screen(context.Background(), Request{
		Method: "GET", Path: "/api/search", Query: "q=' OR 1=1--",
		ClientIP: "203.0.113.9", UserAgent: "curl/8",
	})
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonSQLInjection, v.Reason)

	require.Len(t, rec.events, 1)
	e := rec.events[0]
	assert.Equal(t, models.EventSecurityThreat, e.EventType)
	assert.Equal(t, at, e.CreatedAt)
	assert.False(t, e.Success)
	require.NotNil(t, e.ClientIP)
	assert.Equal(t, "203.0.113.9", *e.ClientIP)
	assert.Equal(t, "sql_injection", e.Details["category"])
	assert.Equal(t, "/api/search", e.Details["path"])
}

func TestScreen_AllowedIsNotAudited(t *testing.T) {
	rec := &recordingAuditor{}
	s := NewScreener(Default(), rec, nil, logging.Nop())

	v := s.Screen(context.Background(), Request{Method: "GET", Path: "/healthz"})
	assert.True(t, v.Allowed)
	assert.Empty(t, rec.events)
}
