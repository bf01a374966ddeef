package repomanager

import (
	"context"

	"github.com/dmitrijs2005/authcore/internal/server/config"
)

var openPostgres = OpenPostgres

// Open returns the in-memory manager for config.MemoryDSN and a PostgreSQL
// manager for anything else. Migrations are left to the caller.
func Open(ctx context.Context, dsn string) (RepositoryManager, error) {
	if dsn == config.MemoryDSN {
		return NewInMemoryRepositoryManager(nil), nil
	}

	db, err := openPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return NewPostgresRepositoryManager(db)
}
