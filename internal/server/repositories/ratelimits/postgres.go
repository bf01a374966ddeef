package ratelimits

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

type scanner interface {
	Scan(dest ...any) error
}

func scanRateLimit(row scanner) (*models.RateLimit, error) {
	var (
		rl                   models.RateLimit
		first, last, lockEnd sql.NullTime
	)
	if err := row.Scan(&rl.Identifier, &rl.Attempts, &first, &last, &lockEnd); err != nil {
		return nil, err
	}
	rl.FirstAttempt = nullTime(first)
	rl.LastAttempt = nullTime(last)
	rl.LockedUntil = nullTime(lockEnd)
	return &rl, nil
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func (r *PostgresRepository) Get(ctx context.Context, identifier string) (*models.RateLimit, error) {
	query :=
		`SELECT identifier, attempts, first_attempt, last_attempt, locked_until
		 FROM rate_limits
		 WHERE identifier = $1
		 `

	rl, err := scanRateLimit(r.db.QueryRowContext(ctx, query, identifier))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rl, nil
}

func (r *PostgresRepository) ResetElapsedLock(ctx context.Context, identifier string, now time.Time) (bool, error) {
	query :=
		`UPDATE rate_limits
		 SET attempts = 0, first_attempt = NULL, last_attempt = NULL, locked_until = NULL
		 WHERE identifier = $1 AND locked_until IS NOT NULL AND locked_until <= $2
		 `

	res, err := r.db.ExecContext(ctx, query, identifier, now)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	ok, err := dbx.AffectedOne(res)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) RecordFailure(ctx context.Context, identifier string, now time.Time, maxAttempts int, lockUntil time.Time) (*models.RateLimit, error) {
	query :=
		`INSERT INTO rate_limits (identifier, attempts, first_attempt, last_attempt, locked_until)
		 VALUES ($1, 1, $2, $2, CASE WHEN 1 >= $3 THEN $4::timestamptz ELSE NULL END)
		 ON CONFLICT (identifier) DO UPDATE SET
		     attempts = rate_limits.attempts + 1,
		     first_attempt = COALESCE(rate_limits.first_attempt, EXCLUDED.first_attempt),
		     last_attempt = EXCLUDED.last_attempt,
		     locked_until = CASE WHEN rate_limits.attempts + 1 >= $3 THEN $4::timestamptz ELSE rate_limits.locked_until END
		 RETURNING identifier, attempts, first_attempt, last_attempt, locked_until
		 `

	rl, err := scanRateLimit(r.db.QueryRowContext(ctx, query, identifier, now, maxAttempts, lockUntil))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rl, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, identifier string) error {
	query := `DELETE FROM rate_limits WHERE identifier = $1`

	if _, err := r.db.ExecContext(ctx, query, identifier); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
