package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authcore/internal/cryptox"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/audit"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/ratelimits"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	return cfg
}

// fastHasher keeps PBKDF2 but with a single iteration.
var fastHasher = cryptox.NewPasswordHasherWithIterations(1)

type fixture struct {
	svc   *AuthService
	mgr   *repomanager.InMemoryRepositoryManager
	clock *fakeClock
}

func newFixture(t *testing.T, rm repomanager.RepositoryManager, mgr *repomanager.InMemoryRepositoryManager) *fixture {
	t.Helper()
	clock := newFakeClock()
	if mgr == nil {
		mgr = repomanager.NewInMemoryRepositoryManager(nil)
	}
	if rm == nil {
		rm = mgr
	}
	svc := NewAuthService(rm, testConfig(), WithClock(clock.Now), WithHasher(fastHasher))
	return &fixture{svc: svc, mgr: mgr, clock: clock}
}

func (f *fixture) addUser(t *testing.T, username, password string, role models.Role, active bool) *models.User {
	t.Helper()
	digest, salt, err := fastHasher.Hash(password, nil)
	require.NoError(t, err)
	u, err := f.mgr.Store().Users().Create(context.Background(), &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: digest,
		Salt:         salt,
		Role:         role,
		IsActive:     active,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) events(t *testing.T) []models.AuditEvent {
	t.Helper()
	ev, err := f.mgr.Store().Audit().Recent(context.Background(), 1000)
	require.NoError(t, err)
	return ev
}

func eventsOfType(events []models.AuditEvent, typ models.AuditEventType) []models.AuditEvent {
	var out []models.AuditEvent
	for _, e := range events {
		if e.EventType == typ {
			out = append(out, e)
		}
	}
	return out
}

// brokenManager lets individual repositories fail while the rest stay in memory.
type brokenManager struct {
	*repomanager.InMemoryRepositoryManager
	audit    audit.Repository
	sessions sessions.Repository
	users    users.Repository
	txErr    error
}

func (m *brokenManager) Audit(db dbx.DBTX) audit.Repository {
	if m.audit != nil {
		return m.audit
	}
	return m.InMemoryRepositoryManager.Audit(db)
}

func (m *brokenManager) Sessions(db dbx.DBTX) sessions.Repository {
	if m.sessions != nil {
		return m.sessions
	}
	return m.InMemoryRepositoryManager.Sessions(db)
}

func (m *brokenManager) Users(db dbx.DBTX) users.Repository {
	if m.users != nil {
		return m.users
	}
	return m.InMemoryRepositoryManager.Users(db)
}

func (m *brokenManager) InTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if m.txErr != nil {
		return m.txErr
	}
	return m.InMemoryRepositoryManager.InTx(ctx, fn)
}

type failingAudit struct{}

func (failingAudit) Append(context.Context, *models.AuditEvent) error { return errBoom }
func (failingAudit) Recent(context.Context, int) ([]models.AuditEvent, error) {
	return nil, errBoom
}
func (failingAudit) AfterID(context.Context, int64, int) ([]models.AuditEvent, error) {
	return nil, errBoom
}
func (failingAudit) LastID(context.Context) (int64, error) { return 0, errBoom }

type failingSessionCreate struct {
	sessions.Repository
}

func (failingSessionCreate) Create(context.Context, *models.Session) (*models.Session, error) {
	return nil, errBoom
}

type failingUserLookup struct {
	users.Repository
}

func (failingUserLookup) GetByLogin(context.Context, string) (*models.User, error) {
	return nil, errBoom
}

type brokenRateLimits struct {
	*repomanager.InMemoryRepositoryManager
}

func (m *brokenRateLimits) RateLimits(dbx.DBTX) ratelimits.Repository { return failingRateLimits{} }

type failingRateLimits struct{}

func (failingRateLimits) Get(context.Context, string) (*models.RateLimit, error) {
	return nil, errBoom
}
func (failingRateLimits) ResetElapsedLock(context.Context, string, time.Time) (bool, error) {
	return false, errBoom
}
func (failingRateLimits) RecordFailure(context.Context, string, time.Time, int, time.Time) (*models.RateLimit, error) {
	return nil, errBoom
}
func (failingRateLimits) Delete(context.Context, string) error { return errBoom }
