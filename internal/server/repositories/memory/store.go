// Package memory is a process-local implementation of the repositories,
// used when the server runs without a database and by service tests.
package memory

import (
	"sync"

	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/audit"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/ratelimits"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/users"
)

var (
	_ users.Repository      = (*UserRepository)(nil)
	_ sessions.Repository   = (*SessionRepository)(nil)
	_ ratelimits.Repository = (*RateLimitRepository)(nil)
	_ audit.Repository      = (*AuditRepository)(nil)
)

// Store holds every table behind one mutex. Each repository method is
// atomic with respect to the others.
type Store struct {
	mu         sync.Mutex
	users      map[string]*models.User
	sessions   map[string]*models.Session
	rateLimits map[string]*models.RateLimit
	audit      []models.AuditEvent
	nextEvent  int64
}

func NewStore() *Store {
	return &Store{
		users:      make(map[string]*models.User),
		sessions:   make(map[string]*models.Session),
		rateLimits: make(map[string]*models.RateLimit),
	}
}

func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

func (s *Store) Sessions() *SessionRepository { return &SessionRepository{s: s} }

func (s *Store) RateLimits() *RateLimitRepository { return &RateLimitRepository{s: s} }

func (s *Store) Audit() *AuditRepository { return &AuditRepository{s: s} }
