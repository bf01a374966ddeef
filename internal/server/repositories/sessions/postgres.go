package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) (*models.Session, error) {
	query :=
		`INSERT INTO user_sessions (user_id, session_token, created_at, expires_at, client_ip, user_agent, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		s.UserID, s.Token, s.CreatedAt, s.ExpiresAt, s.ClientIP, s.UserAgent).Scan(&s.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	s.IsActive = true
	return s, nil
}

func (r *PostgresRepository) FindActive(ctx context.Context, token string) (*models.SessionWithUser, error) {
	query :=
		`SELECT s.id, s.session_token, s.user_id, s.created_at, s.expires_at,
		        COALESCE(s.client_ip, ''), COALESCE(s.user_agent, ''), s.is_active,
		        u.username, u.role, u.is_active
		 FROM user_sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.session_token = $1 AND s.is_active
		 `

	var (
		out  models.SessionWithUser
		role string
	)
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&out.ID, &out.Token, &out.UserID, &out.CreatedAt, &out.ExpiresAt,
		&out.ClientIP, &out.UserAgent, &out.IsActive,
		&out.Username, &role, &out.UserIsActive)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	out.Role = models.Role(role)
	return &out, nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, token string) (string, error) {
	query :=
		`UPDATE user_sessions SET is_active = FALSE
		 WHERE session_token = $1 AND is_active
		 RETURNING user_id
		 `

	var userID string
	err := r.db.QueryRowContext(ctx, query, token).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return userID, nil
}

func (r *PostgresRepository) DeactivateAllForUser(ctx context.Context, userID string) (int64, error) {
	query :=
		`UPDATE user_sessions SET is_active = FALSE
		 WHERE user_id = $1 AND is_active
		 `
	return r.exec(ctx, query, userID)
}

func (r *PostgresRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	query :=
		`UPDATE user_sessions SET is_active = FALSE
		 WHERE is_active AND expires_at <= $1
		 `
	return r.exec(ctx, query, now)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
