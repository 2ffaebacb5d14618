package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"exam-practice/backend/internal/security"
	userdomain "exam-practice/backend/internal/user/domain"
)

// Sentinel errors for the auth service; handlers map them to responses.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
)

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// StatusChecker admits a loaded account to an admin session, returning nil when
// denied and an error when no decision could be made.
type StatusChecker interface {
	Admit(ctx context.Context, u *userdomain.User) (*userdomain.AdminUser, error)
}

// AuthService implements password login and admin account provisioning.
type AuthService struct {
	userRepo UserRepo
	status   StatusChecker
	hasher   *security.Hasher
	nowF     func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(userRepo UserRepo, status StatusChecker, hasher *security.Hasher) *AuthService {
	return &AuthService{userRepo: userRepo, status: status, hasher: hasher, nowF: time.Now}
}

// Authenticate checks email and password and that the account may hold an
// admin session. Every credential or status denial is ErrInvalidCredentials;
// other errors are lookup or policy failures.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*userdomain.AdminUser, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	admin, err := s.status.Admit(ctx, user)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, ErrInvalidCredentials
	}
	return admin, nil
}

// CreateAdmin provisions an active account with a local password. Used by
// cmd/seed; there is no self-registration.
func (s *AuthService) CreateAdmin(ctx context.Context, email, password, name string, role userdomain.Role) (*userdomain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	now := s.nowF().UTC()
	user := &userdomain.User{
		ID:            uuid.New().String(),
		Email:         email,
		Name:          strings.TrimSpace(name),
		Role:          role,
		Status:        userdomain.UserStatusActive,
		EmailVerified: true,
		PasswordHash:  hashed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

var simpleEmail = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if !simpleEmail.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasNumber bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		}
	}
	if !hasUpper || !hasLower || !hasNumber {
		return errors.New("password must mix upper case, lower case and digits")
	}
	return nil
}
