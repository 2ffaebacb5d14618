package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"exam-practice/backend/internal/audit/domain"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns an audit repository that appends to admin_audit_logs.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const insertAuditSQL = `
INSERT INTO admin_audit_logs (
	id, created_at, user_id, email, session_id, action,
	ip_address, user_agent, fingerprint, success, metadata
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO NOTHING`

// Create appends e. The event must have ID set; a replayed id is ignored.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Event) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx, insertAuditSQL,
		e.ID, e.Timestamp.UTC(), e.UserID, e.Email, e.SessionID, string(e.Action),
		e.IPAddress, e.UserAgent, e.Fingerprint, e.Success, meta,
	)
	return err
}

// Name implements audit.Sink.
func (r *PostgresRepository) Name() string { return "postgres" }

// Write implements audit.Sink.
func (r *PostgresRepository) Write(ctx context.Context, e *domain.Event) error {
	return r.Create(ctx, e)
}
