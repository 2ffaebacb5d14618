package httpapi

import (
	"net/http"
	"time"

	"exam-practice/backend/internal/security"
	sessiondomain "exam-practice/backend/internal/session/domain"
)

// Cookie names.
const (
	TokenCookie       = "admin_token"
	SessionIDCookie   = "admin_session_id"
	FingerprintCookie = "admin_fingerprint"
)

// CookieManager writes and clears the three admin session cookies.
type CookieManager struct {
	Path           string
	Secure         bool
	AccessTTL      time.Duration
	FingerprintTTL time.Duration
}

// SetSession writes the token, session-id and fingerprint cookies for s.
func (c *CookieManager) SetSession(w http.ResponseWriter, s *sessiondomain.AdminSession) {
	maxAge := int(c.AccessTTL / time.Second)
	http.SetCookie(w, c.cookie(TokenCookie, s.AccessToken, maxAge, true))
	http.SetCookie(w, c.cookie(SessionIDCookie, s.ID, maxAge, false))
	c.SetFingerprint(w, s)
}

// SetFingerprint writes only the short-lived fingerprint cookie. It carries the
// short prefix, never the full digest.
func (c *CookieManager) SetFingerprint(w http.ResponseWriter, s *sessiondomain.AdminSession) {
	fp := security.ShortFingerprint(s.Metadata.Fingerprint)
	http.SetCookie(w, c.cookie(FingerprintCookie, fp, int(c.FingerprintTTL/time.Second), true))
}

// Clear expires all three cookies.
func (c *CookieManager) Clear(w http.ResponseWriter) {
	for _, name := range []string{TokenCookie, SessionIDCookie, FingerprintCookie} {
		ck := c.cookie(name, "", -1, name != SessionIDCookie)
		ck.Expires = time.Unix(0, 0)
		http.SetCookie(w, ck)
	}
}

func (c *CookieManager) cookie(name, value string, maxAge int, httpOnly bool) *http.Cookie {
	path := c.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
