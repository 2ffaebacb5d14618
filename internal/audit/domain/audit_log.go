package domain

import "time"

// Action names a session lifecycle transition.
type Action string

const (
	ActionSessionCreated        Action = "session_created"
	ActionSessionRefreshed      Action = "session_refreshed"
	ActionSessionInvalidated    Action = "session_invalidated"
	ActionSessionExpired        Action = "session_expired"
	ActionSuspiciousFingerprint Action = "suspicious_fingerprint"
	ActionSuspiciousUserStatus  Action = "suspicious_user_status"
	ActionIPChanged             Action = "ip_changed"
	ActionSessionLimitEvicted   Action = "session_limit_evicted"
	ActionLoginFailed           Action = "login_failed"
	ActionLogout                Action = "logout"
)

// Suspicious reports whether a is a security signal rather than routine bookkeeping.
func (a Action) Suspicious() bool {
	return a == ActionSuspiciousFingerprint || a == ActionSuspiciousUserStatus
}

// SystemUserID is recorded when an event has no acting user.
const SystemUserID = "system"

// Event is one append-only audit record.
type Event struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	UserID      string            `json:"user_id"`
	Email       string            `json:"email,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	Action      Action            `json:"action"`
	IPAddress   string            `json:"ip_address,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	Fingerprint string            `json:"fingerprint,omitempty"` // short prefix only
	Success     bool              `json:"success"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
