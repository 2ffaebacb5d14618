package service

import (
	"context"
	"fmt"
	"log"

	"exam-practice/backend/internal/policy/engine"
	userdomain "exam-practice/backend/internal/user/domain"
	userrepo "exam-practice/backend/internal/user/repository"
)

// StatusService answers whether an account may still hold an admin session.
type StatusService struct {
	users                userrepo.Repository
	policy               engine.Evaluator
	requireEmailVerified bool
}

// NewStatusService returns a StatusService that loads accounts from users and
// decides with policy.
func NewStatusService(users userrepo.Repository, policy engine.Evaluator, requireEmailVerified bool) *StatusService {
	return &StatusService{users: users, policy: policy, requireEmailVerified: requireEmailVerified}
}

// ValidateUserStatus returns the current session view of the user, or nil when
// the account is missing or not allowed. Lookup and policy evaluation failures
// are returned as errors so the caller can tell them apart from a denial.
func (s *StatusService) ValidateUserStatus(ctx context.Context, userID string) (*userdomain.AdminUser, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user status: %w", err)
	}
	if u == nil {
		return nil, nil
	}
	return s.Admit(ctx, u)
}

// Admit runs the status policy for an already loaded account. It returns nil
// when the policy denies and an error when the policy could not decide.
func (s *StatusService) Admit(ctx context.Context, u *userdomain.User) (*userdomain.AdminUser, error) {
	ok, err := s.policy.AllowSession(ctx, engine.InputFor(u, s.requireEmailVerified))
	if err != nil {
		log.Printf("user: status policy for %s failed: %v", u.ID, err)
		return nil, fmt.Errorf("user status policy: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return u.Snapshot(), nil
}
