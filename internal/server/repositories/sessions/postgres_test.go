package sessions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	expires := created.Add(8 * time.Hour)

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+user_sessions\s*\(user_id,\s*session_token,\s*created_at,\s*expires_at,\s*client_ip,\s*user_agent,\s*is_active\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*TRUE\)\s*RETURNING\s+id\s*$`).
		WithArgs("u-1", "tok", created, expires, "10.0.0.1", "curl/8").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s-1"))

	got, err := repo.Create(context.Background(), &models.Session{
		UserID: "u-1", Token: "tok", CreatedAt: created, ExpiresAt: expires,
		ClientIP: "10.0.0.1", UserAgent: "curl/8",
	})
	require.NoError(t, err)
	assert.Equal(t, "s-1", got.ID)
	assert.True(t, got.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+user_sessions`).WillReturnError(errors.New("boom"))

	_, err := repo.Create(context.Background(), &models.Session{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: boom")
}

func TestFindActive(t *testing.T) {
	q := `(?s)^SELECT\s+s\.id,.*FROM\s+user_sessions\s+s\s+JOIN\s+users\s+u\s+ON\s+u\.id\s*=\s*s\.user_id\s+WHERE\s+s\.session_token\s*=\s*\$1\s+AND\s+s\.is_active\s*$`
	cols := []string{"id", "session_token", "user_id", "created_at", "expires_at", "client_ip", "user_agent", "is_active", "username", "role", "is_active"}

	t.Run("found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
		mock.ExpectQuery(q).
			WithArgs("tok").
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow("s-1", "tok", "u-1", created, created.Add(time.Hour), "10.0.0.1", "", true, "alice", "admin", true))

		got, err := repo.FindActive(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, models.RoleAdmin, got.Role)
		assert.Equal(t, created.Add(time.Hour), got.ExpiresAt)
		assert.True(t, got.UserIsActive)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs("nope").WillReturnError(sql.ErrNoRows)

		_, err := repo.FindActive(context.Background(), "nope")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestDeactivate(t *testing.T) {
	q := `(?s)^UPDATE\s+user_sessions\s+SET\s+is_active\s*=\s*FALSE\s+WHERE\s+session_token\s*=\s*\$1\s+AND\s+is_active\s+RETURNING\s+user_id\s*$`

	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(q).WithArgs("tok").WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u-1"))
	mock.ExpectQuery(q).WithArgs("tok").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).WithArgs("tok").WillReturnError(errors.New("conn reset"))

	owner, err := repo.Deactivate(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "u-1", owner)

	_, err = repo.Deactivate(context.Background(), "tok")
	assert.ErrorIs(t, err, common.ErrorNotFound, "already inactive")

	_, err = repo.Deactivate(context.Background(), "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateAllForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+user_sessions\s+SET\s+is_active\s*=\s*FALSE\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+is_active\s*$`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeactivateAllForUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestDeactivateExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := `(?s)^UPDATE\s+user_sessions\s+SET\s+is_active\s*=\s*FALSE\s+WHERE\s+is_active\s+AND\s+expires_at\s*<=\s*\$1\s*$`

	mock.ExpectExec(q).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(q).WithArgs(now).WillReturnError(errors.New("db down"))

	n, err := repo.DeactivateExpired(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = repo.DeactivateExpired(context.Background(), now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
}
