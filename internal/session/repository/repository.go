// Package repository holds the durable persistence port for admin sessions and
// its interchangeable adapters (Postgres, Redis, BBolt).
package repository

import (
	"context"
	"time"

	"exam-practice/backend/internal/session/domain"
	userdomain "exam-practice/backend/internal/user/domain"
)

// Repository persists session snapshots for recovery after restart.
// Get returns (nil, nil) when the session does not exist.
type Repository interface {
	Save(ctx context.Context, s *domain.AdminSession) error
	Get(ctx context.Context, id string) (*domain.AdminSession, error)
	Delete(ctx context.Context, id string) error
}

// Record is the stored form of an AdminSession. Raw tokens are never stored.
type Record struct {
	ID               string                 `json:"id"`
	User             userdomain.AdminUser   `json:"user"`
	RefreshTokenHash string                 `json:"refresh_token_hash"`
	Metadata         domain.SessionMetadata `json:"metadata"`
	ExpiresAt        time.Time              `json:"expires_at"`
	IsValid          bool                   `json:"is_valid"`
}

// ToRecord drops the raw tokens from s.
func ToRecord(s *domain.AdminSession) Record {
	return Record{
		ID:               s.ID,
		User:             s.User,
		RefreshTokenHash: s.RefreshTokenHash,
		Metadata:         s.Metadata,
		ExpiresAt:        s.ExpiresAt.UTC(),
		IsValid:          s.IsValid,
	}
}

// ToDomain returns the session for r. AccessToken and RefreshToken are empty.
func (r Record) ToDomain() *domain.AdminSession {
	return &domain.AdminSession{
		ID:               r.ID,
		User:             r.User,
		RefreshTokenHash: r.RefreshTokenHash,
		Metadata:         r.Metadata,
		ExpiresAt:        r.ExpiresAt,
		IsValid:          r.IsValid,
	}
}
