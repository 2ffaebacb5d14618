package repository

import (
	"context"

	"exam-practice/backend/internal/user/domain"
)

// Repository defines persistence for admin accounts.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Create inserts u. The ID must be set by the caller.
	Create(ctx context.Context, u *domain.User) error
}
