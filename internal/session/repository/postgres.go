package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"exam-practice/backend/internal/session/domain"
	userdomain "exam-practice/backend/internal/user/domain"
)

// PostgresRepository stores sessions in the admin_sessions table. The pool is
// owned by the caller.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a session repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const upsertSessionSQL = `
INSERT INTO admin_sessions (
	id, user_id, email, role, email_verified, refresh_token_hash,
	user_agent, ip_address, fingerprint, device_info,
	created_at, last_activity, expires_at, is_valid
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
	refresh_token_hash = EXCLUDED.refresh_token_hash,
	ip_address         = EXCLUDED.ip_address,
	last_activity      = EXCLUDED.last_activity,
	expires_at         = EXCLUDED.expires_at,
	is_valid           = EXCLUDED.is_valid`

// Save upserts s. Fingerprint, user and creation time are fixed by the first insert.
func (r *PostgresRepository) Save(ctx context.Context, s *domain.AdminSession) error {
	rec := ToRecord(s)
	_, err := r.pool.Exec(ctx, upsertSessionSQL,
		rec.ID, rec.User.ID, rec.User.Email, string(rec.User.Role), rec.User.EmailVerified, rec.RefreshTokenHash,
		rec.Metadata.UserAgent, rec.Metadata.IPAddress, rec.Metadata.Fingerprint, rec.Metadata.DeviceInfo,
		rec.Metadata.CreatedAt.UTC(), rec.Metadata.LastActivity.UTC(), rec.ExpiresAt, rec.IsValid,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

const selectSessionSQL = `
SELECT id, user_id, email, role, email_verified, refresh_token_hash,
	user_agent, ip_address, fingerprint, device_info,
	created_at, last_activity, expires_at, is_valid
FROM admin_sessions WHERE id = $1`

// Get returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.AdminSession, error) {
	var (
		rec  Record
		role string
	)
	err := r.pool.QueryRow(ctx, selectSessionSQL, id).Scan(
		&rec.ID, &rec.User.ID, &rec.User.Email, &role, &rec.User.EmailVerified, &rec.RefreshTokenHash,
		&rec.Metadata.UserAgent, &rec.Metadata.IPAddress, &rec.Metadata.Fingerprint, &rec.Metadata.DeviceInfo,
		&rec.Metadata.CreatedAt, &rec.Metadata.LastActivity, &rec.ExpiresAt, &rec.IsValid,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	rec.User.Role = userdomain.Role(role)
	return rec.ToDomain(), nil
}

// Delete removes the session. Deleting a missing session is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM admin_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
