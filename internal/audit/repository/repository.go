package repository

import (
	"context"

	"exam-practice/backend/internal/audit/domain"
)

// Repository defines persistence for audit events. Events are append-only.
type Repository interface {
	Create(ctx context.Context, e *domain.Event) error
}
