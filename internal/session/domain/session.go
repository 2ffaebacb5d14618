package domain

import (
	"time"

	userdomain "exam-practice/backend/internal/user/domain"
)

// SessionMetadata describes the device a session is bound to.
// Fingerprint is fixed at creation.
type SessionMetadata struct {
	UserAgent    string    `json:"user_agent"`
	IPAddress    string    `json:"ip_address"`
	Fingerprint  string    `json:"fingerprint"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	DeviceInfo   string    `json:"device_info"`
}

// AdminSession is an authenticated admin session. Records are treated as
// immutable once stored; changes go through a copy (see Clone).
type AdminSession struct {
	ID           string
	User         userdomain.AdminUser
	AccessToken  string
	RefreshToken string
	// RefreshTokenHash is the only form of the refresh token that leaves memory.
	RefreshTokenHash string
	Metadata         SessionMetadata
	ExpiresAt        time.Time
	IsValid          bool
}

// Clone returns a copy of s that can be modified without affecting s.
func (s *AdminSession) Clone() *AdminSession {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// Live reports whether s is valid and not past expiry at now.
func (s *AdminSession) Live(now time.Time) bool {
	return s != nil && s.IsValid && !now.After(s.ExpiresAt)
}

// Reason is the human-readable cause of a failed validation, sent to clients as "reason".
type Reason string

const (
	ReasonInvalidSignature    Reason = "Invalid token signature"
	ReasonSessionNotFound     Reason = "Session not found"
	ReasonSessionExpired      Reason = "Session expired"
	ReasonSessionInvalidated  Reason = "Session has been invalidated"
	ReasonFingerprintMismatch Reason = "Session fingerprint mismatch - possible session hijacking"
	ReasonUserInactive        Reason = "User account is inactive or not found"
	ReasonSystemError         Reason = "Session validation error"
)

// ValidationResult is the outcome of validating one request. Never persisted.
type ValidationResult struct {
	Valid      bool
	User       *userdomain.AdminUser
	Session    *AdminSession
	Reason     Reason
	Expired    bool
	Suspicious bool
	// Refreshed is set when Session carries newly issued tokens.
	Refreshed bool
}

// Fail returns an invalid result with reason.
func Fail(reason Reason) ValidationResult {
	return ValidationResult{Reason: reason}
}
