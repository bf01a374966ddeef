package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/audit"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/memory"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/ratelimits"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/users"
)

// InMemoryRepositoryManager serves every repository from one memory.Store.
// The DBTX arguments are ignored. InTx serializes transactions against each
// other, which is enough for the multi-step writes the services perform.
type InMemoryRepositoryManager struct {
	store *memory.Store
	txMu  sync.Mutex
}

func NewInMemoryRepositoryManager(store *memory.Store) *InMemoryRepositoryManager {
	if store == nil {
		store = memory.NewStore()
	}
	return &InMemoryRepositoryManager{store: store}
}

func (m *InMemoryRepositoryManager) Store() *memory.Store { return m.store }

func (m *InMemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *InMemoryRepositoryManager) Conn() dbx.DBTX { return nil }

func (m *InMemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, nil)
}

func (m *InMemoryRepositoryManager) Users(dbx.DBTX) users.Repository { return m.store.Users() }

func (m *InMemoryRepositoryManager) Sessions(dbx.DBTX) sessions.Repository {
	return m.store.Sessions()
}

func (m *InMemoryRepositoryManager) RateLimits(dbx.DBTX) ratelimits.Repository {
	return m.store.RateLimits()
}

func (m *InMemoryRepositoryManager) Audit(dbx.DBTX) audit.Repository { return m.store.Audit() }

func (m *InMemoryRepositoryManager) Close() error { return nil }
