package domain

import (
	"errors"
	"time"
)

// AdminUser is the identity snapshot carried by an admin session.
// It is re-fetched from the user-status collaborator on every validation.
type AdminUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Role          Role   `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

// User is the stored admin account behind an AdminUser.
type User struct {
	ID            string
	Email         string
	Name          string
	Role          Role
	Status        UserStatus
	Banned        bool
	EmailVerified bool
	PasswordHash  string // bcrypt; empty for accounts without a local password
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleEditor     Role = "editor"
	RoleStudent    Role = "student"
)

// Snapshot returns the session-facing view of u.
func (u *User) Snapshot() *AdminUser {
	if u == nil {
		return nil
	}
	return &AdminUser{
		ID:            u.ID,
		Email:         u.Email,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
	}
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Role == "" {
		return errors.New("role is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}
