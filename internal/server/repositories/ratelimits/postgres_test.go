package ratelimits

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cols = []string{"identifier", "attempts", "first_attempt", "last_attempt", "locked_until"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

func TestGet(t *testing.T) {
	q := `(?s)^SELECT\s+identifier,\s*attempts,\s*first_attempt,\s*last_attempt,\s*locked_until\s+FROM\s+rate_limits\s+WHERE\s+identifier\s*=\s*\$1\s*$`
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs("alice").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("alice", 2, now, now, nil))

		got, err := repo.Get(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Attempts)
		require.NotNil(t, got.FirstAttempt)
		assert.Equal(t, now, *got.FirstAttempt)
		assert.Nil(t, got.LockedUntil)
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), "ghost")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestResetElapsedLock(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := `(?s)^UPDATE\s+rate_limits\s+SET\s+attempts\s*=\s*0,.*WHERE\s+identifier\s*=\s*\$1\s+AND\s+locked_until\s+IS\s+NOT\s+NULL\s+AND\s+locked_until\s*<=\s*\$2\s*$`

	mock.ExpectExec(q).WithArgs("alice", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("alice", now).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.ResetElapsedLock(context.Background(), "alice", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ResetElapsedLock(context.Background(), "alice", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordFailure(t *testing.T) {
	q := `(?s)^INSERT\s+INTO\s+rate_limits.*ON\s+CONFLICT\s+\(identifier\)\s+DO\s+UPDATE\s+SET\s+attempts\s*=\s*rate_limits\.attempts\s*\+\s*1,.*RETURNING\s+identifier,\s*attempts,\s*first_attempt,\s*last_attempt,\s*locked_until\s*$`
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	lock := now.Add(15 * time.Minute)

	t.Run("locks on threshold", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs("alice", now, 5, lock).
			WillReturnRows(sqlmock.NewRows(cols).AddRow("alice", 5, now.Add(-time.Minute), now, lock))

		got, err := repo.RecordFailure(context.Background(), "alice", now, 5, lock)
		require.NoError(t, err)
		assert.Equal(t, 5, got.Attempts)
		require.NotNil(t, got.LockedUntil)
		assert.Equal(t, lock, *got.LockedUntil)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WillReturnError(errors.New("boom"))

		_, err := repo.RecordFailure(context.Background(), "alice", now, 5, lock)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db error: boom")
	})
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE\s+FROM\s+rate_limits\s+WHERE\s+identifier\s*=\s*\$1$`).
		WithArgs("alice").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "alice"))
	require.NoError(t, mock.ExpectationsWereMet())
}
