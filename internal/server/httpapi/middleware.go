package httpapi

import (
	"context"
	"net/http"
	"time"

	"exam-practice/backend/internal/security"
	"exam-practice/backend/internal/server/interceptors"
	sessiondomain "exam-practice/backend/internal/session/domain"
)

// Response headers set on authenticated requests.
const (
	HeaderSessionID        = "X-Session-ID"
	HeaderSessionExpires   = "X-Session-Expires"
	HeaderSessionActivity  = "X-Session-Last-Activity"
	HeaderSessionRefreshed = "X-Session-Refreshed"
	// Set only on refresh, for clients that send the token as a bearer header.
	HeaderRefreshedToken        = "X-Refreshed-Token"
	HeaderRefreshedRefreshToken = "X-Refreshed-Refresh-Token"
)

const reasonNoToken = "No session token provided"

// SessionValidator runs the session validation pipeline.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string, meta security.RequestMeta) sessiondomain.ValidationResult
}

// RequestMeta returns the fingerprint inputs of r.
func RequestMeta(r *http.Request) security.RequestMeta {
	return security.RequestMeta{
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
		ForwardedFor:   r.Header.Get("X-Forwarded-For"),
		RemoteAddr:     r.RemoteAddr,
	}
}

// TokenFromRequest returns the admin token from the Authorization header, the
// admin_token cookie or the token query parameter, in that order.
func TokenFromRequest(r *http.Request) string {
	if t := interceptors.ParseBearer(r.Header.Get("Authorization")); t != "" {
		return t
	}
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// RequireAdminSession rejects requests without a valid admin session. Every
// rejection clears the session cookies and answers 401 with the reason.
func RequireAdminSession(v SessionValidator, cookies *CookieManager, nowF func() time.Time) func(http.Handler) http.Handler {
	if nowF == nil {
		nowF = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				cookies.Clear(w)
				writeError(w, http.StatusUnauthorized, "Unauthorized", reasonNoToken, nowF())
				return
			}
			res := v.ValidateSession(r.Context(), token, RequestMeta(r))
			if !res.Valid {
				cookies.Clear(w)
				writeError(w, http.StatusUnauthorized, "Unauthorized", string(res.Reason), nowF())
				return
			}

			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set(HeaderSessionID, shortSessionID(res.Session.ID))
			h.Set(HeaderSessionExpires, res.Session.ExpiresAt.UTC().Format(time.RFC3339))
			h.Set(HeaderSessionActivity, res.Session.Metadata.LastActivity.UTC().Format(time.RFC3339))
			if res.Refreshed {
				cookies.SetSession(w, res.Session)
				h.Set(HeaderSessionRefreshed, "true")
				h.Set(HeaderRefreshedToken, res.Session.AccessToken)
				h.Set(HeaderRefreshedRefreshToken, res.Session.RefreshToken)
			} else if c, err := r.Cookie(FingerprintCookie); err != nil || c.Value == "" {
				cookies.SetFingerprint(w, res.Session)
			}

			ctx := interceptors.WithSession(r.Context(), res.User, res.Session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func shortSessionID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
