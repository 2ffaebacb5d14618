package engine

import (
	"context"

	userdomain "exam-practice/backend/internal/user/domain"
)

// StatusInput is the account state a session-status policy decides on.
type StatusInput struct {
	Status               userdomain.UserStatus
	Banned               bool
	Role                 userdomain.Role
	EmailVerified        bool
	RequireEmailVerified bool
}

// InputFor builds the policy input for u.
func InputFor(u *userdomain.User, requireEmailVerified bool) StatusInput {
	return StatusInput{
		Status:               u.Status,
		Banned:               u.Banned,
		Role:                 u.Role,
		EmailVerified:        u.EmailVerified,
		RequireEmailVerified: requireEmailVerified,
	}
}

// Evaluator decides whether an account may hold an admin session.
type Evaluator interface {
	// AllowSession reports whether the account described by in may hold a session.
	// On error the result is always false.
	AllowSession(ctx context.Context, in StatusInput) (bool, error)
}
