package repomanager

import (
	"context"

	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/audit"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/ratelimits"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/users"
)

// RepositoryManager hands out repositories bound to a connection or to a
// transaction started by InTx.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Conn() dbx.DBTX
	InTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	RateLimits(db dbx.DBTX) ratelimits.Repository
	Audit(db dbx.DBTX) audit.Repository
	Close() error
}
