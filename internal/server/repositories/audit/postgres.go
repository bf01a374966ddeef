package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e *models.AuditEvent) error {
	query :=
		`INSERT INTO security_audit_log (created_at, event_type, user_id, username, client_ip, user_agent, details, success)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id
		 `

	var details sql.NullString
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		e.CreatedAt, string(e.EventType), e.UserID, e.Username, e.ClientIP, e.UserAgent, details, e.Success).
		Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectEvents = `SELECT id, created_at, event_type, user_id, username, client_ip, user_agent, details, success
		 FROM security_audit_log`

func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	query := selectEvents + `
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1
		 `
	return r.list(ctx, query, limit)
}

func (r *PostgresRepository) AfterID(ctx context.Context, afterID int64, limit int) ([]models.AuditEvent, error) {
	query := selectEvents + `
		 WHERE id > $1
		 ORDER BY id
		 LIMIT $2
		 `
	return r.list(ctx, query, afterID, limit)
}

func (r *PostgresRepository) LastID(ctx context.Context) (int64, error) {
	query := `SELECT COALESCE(MAX(id), 0) FROM security_audit_log`

	var id int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&id); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]models.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEvent
	for rows.Next() {
		var (
			e                                 models.AuditEvent
			eventType                         string
			userID, username, clientIP, agent sql.NullString
			details                           sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.CreatedAt, &eventType, &userID, &username, &clientIP, &agent, &details, &e.Success); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		e.EventType = models.AuditEventType(eventType)
		e.UserID = nullString(userID)
		e.Username = nullString(username)
		e.ClientIP = nullString(clientIP)
		e.UserAgent = nullString(agent)
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				e.Details = map[string]any{"raw": details.String}
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
