package interceptors

import (
	"context"

	sessiondomain "exam-practice/backend/internal/session/domain"
	userdomain "exam-practice/backend/internal/user/domain"
)

type contextKey struct{ name string }

var (
	userKey    = contextKey{"admin_user"}
	sessionKey = contextKey{"admin_session"}
)

// WithSession returns a context carrying the validated admin and session.
// Both the gRPC interceptor and the HTTP middleware use it.
func WithSession(ctx context.Context, user *userdomain.AdminUser, sess *sessiondomain.AdminSession) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, sessionKey, sess)
}

// UserFromContext returns the validated admin, or nil.
func UserFromContext(ctx context.Context) *userdomain.AdminUser {
	u, _ := ctx.Value(userKey).(*userdomain.AdminUser)
	return u
}

// SessionFromContext returns the validated session, or nil.
func SessionFromContext(ctx context.Context) *sessiondomain.AdminSession {
	s, _ := ctx.Value(sessionKey).(*sessiondomain.AdminSession)
	return s
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	if u := UserFromContext(ctx); u != nil {
		return u.ID, true
	}
	return "", false
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	if s := SessionFromContext(ctx); s != nil {
		return s.ID, true
	}
	return "", false
}
