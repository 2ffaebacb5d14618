package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"exam-practice/backend/internal/audit"
	auditdomain "exam-practice/backend/internal/audit/domain"
	identityservice "exam-practice/backend/internal/identity/service"
	"exam-practice/backend/internal/security"
	"exam-practice/backend/internal/server/interceptors"
	sessiondomain "exam-practice/backend/internal/session/domain"
	sessionservice "exam-practice/backend/internal/session/service"
	userdomain "exam-practice/backend/internal/user/domain"
)

const maxBodyBytes = 1 << 16

// SessionManager is the session API the handlers drive.
type SessionManager interface {
	SessionValidator
	CreateSession(ctx context.Context, user *userdomain.AdminUser, meta security.RequestMeta) (*sessiondomain.AdminSession, error)
	InvalidateSession(ctx context.Context, id string, action auditdomain.Action, reason string) bool
	InvalidateUserSessions(ctx context.Context, userID, reason string) int
	ActiveSessions(userID string) []*sessiondomain.AdminSession
	RefreshWithToken(ctx context.Context, refreshToken string, meta security.RequestMeta) (*sessiondomain.AdminSession, error)
}

// Authenticator checks login credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*userdomain.AdminUser, error)
}

// HealthCheck is one named readiness check.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Sessions SessionManager
	Auth     Authenticator
	Cookies  *CookieManager
	Audit    audit.Recorder
	// Health maps a check name to its function; all must pass for /healthz to report ok.
	Health map[string]HealthCheck
	NowF   func() time.Time
}

// API holds the HTTP handlers for admin authentication.
type API struct {
	Deps
}

// New returns an API. A nil Audit discards events.
func New(deps Deps) *API {
	if deps.NowF == nil {
		deps.NowF = time.Now
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLogger(0, nil)
	}
	return &API{Deps: deps}
}

// Router returns a chi.Router with all routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", a.Healthz)
	r.Route("/admin/auth", func(r chi.Router) {
		r.Post("/login", a.Login)
		r.Post("/refresh", a.Refresh)
		r.Group(func(r chi.Router) {
			r.Use(RequireAdminSession(a.Sessions, a.Cookies, a.NowF))
			r.Post("/logout", a.Logout)
			r.Get("/session", a.CurrentSession)
			r.Get("/sessions", a.ListSessions)
			r.Delete("/sessions", a.RevokeAllSessions)
		})
	})
	return r
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userView struct {
	ID            string          `json:"id"`
	Email         string          `json:"email"`
	Role          userdomain.Role `json:"role"`
	EmailVerified bool            `json:"email_verified"`
}

type sessionView struct {
	ID           string    `json:"id"`
	DeviceInfo   string    `json:"device_info"`
	IPAddress    string    `json:"ip_address"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	Current      bool      `json:"current,omitempty"`
}

func toUserView(u *userdomain.AdminUser) userView {
	return userView{ID: u.ID, Email: u.Email, Role: u.Role, EmailVerified: u.EmailVerified}
}

func toSessionView(s *sessiondomain.AdminSession, currentID string) sessionView {
	return sessionView{
		ID:           s.ID,
		DeviceInfo:   s.Metadata.DeviceInfo,
		IPAddress:    s.Metadata.IPAddress,
		CreatedAt:    s.Metadata.CreatedAt,
		LastActivity: s.Metadata.LastActivity,
		ExpiresAt:    s.ExpiresAt,
		Current:      s.ID == currentID,
	}
}

// Login authenticates email/password, creates a session and sets the cookies.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "", a.NowF())
		return
	}
	meta := RequestMeta(r)
	user, err := a.Auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identityservice.ErrInvalidCredentials) {
			a.Audit.Record(r.Context(), auditdomain.Event{
				UserID:    auditdomain.SystemUserID,
				Email:     req.Email,
				Action:    auditdomain.ActionLoginFailed,
				IPAddress: meta.ClientIP(),
				UserAgent: meta.UserAgent,
				Success:   false,
			})
			writeError(w, http.StatusUnauthorized, "Invalid credentials", "", a.NowF())
			return
		}
		log.Printf("httpapi: login lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Login failed", "", a.NowF())
		return
	}

	sess, err := a.Sessions.CreateSession(r.Context(), user, meta)
	if err != nil {
		if errors.Is(err, sessionservice.ErrSessionLimitReached) {
			writeError(w, http.StatusTooManyRequests, "Too many active sessions", err.Error(), a.NowF())
			return
		}
		log.Printf("httpapi: create session for %s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "Login failed", "", a.NowF())
		return
	}
	a.Cookies.SetSession(w, sess)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"user":          toUserView(user),
		"session":       toSessionView(sess, sess.ID),
		"token":         sess.AccessToken,
		"refresh_token": sess.RefreshToken,
	})
}

// Refresh exchanges a refresh token for a new token pair on the same session.
func (a *API) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body", "", a.NowF())
		return
	}
	sess, err := a.Sessions.RefreshWithToken(r.Context(), req.RefreshToken, RequestMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, sessionservice.ErrInvalidRefreshToken):
			a.Cookies.Clear(w)
			writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid refresh token", a.NowF())
		case errors.Is(err, sessionservice.ErrSessionNotFound):
			a.Cookies.Clear(w)
			writeError(w, http.StatusUnauthorized, "Unauthorized", string(sessiondomain.ReasonSessionNotFound), a.NowF())
		case errors.Is(err, sessionservice.ErrSessionNotLive):
			a.Cookies.Clear(w)
			writeError(w, http.StatusUnauthorized, "Unauthorized", string(sessiondomain.ReasonSessionInvalidated), a.NowF())
		default:
			log.Printf("httpapi: refresh: %v", err)
			writeError(w, http.StatusInternalServerError, "Refresh failed", "", a.NowF())
		}
		return
	}
	a.Cookies.SetSession(w, sess)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"user":          toUserView(&sess.User),
		"session":       toSessionView(sess, sess.ID),
		"token":         sess.AccessToken,
		"refresh_token": sess.RefreshToken,
	})
}

// Logout invalidates the current session and clears the cookies.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	sess := interceptors.SessionFromContext(r.Context())
	a.Sessions.InvalidateSession(r.Context(), sess.ID, auditdomain.ActionLogout, "user logout")
	a.Cookies.Clear(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// CurrentSession returns the authenticated admin and session.
func (a *API) CurrentSession(w http.ResponseWriter, r *http.Request) {
	sess := interceptors.SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    toUserView(interceptors.UserFromContext(r.Context())),
		"session": toSessionView(sess, sess.ID),
	})
}

// ListSessions returns the caller's live sessions, most recently active first.
func (a *API) ListSessions(w http.ResponseWriter, r *http.Request) {
	user := interceptors.UserFromContext(r.Context())
	current := interceptors.SessionFromContext(r.Context())
	live := a.Sessions.ActiveSessions(user.ID)
	out := make([]sessionView, 0, len(live))
	for _, s := range live {
		out = append(out, toSessionView(s, current.ID))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessions": out})
}

// RevokeAllSessions logs the caller out everywhere, including this session.
func (a *API) RevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	user := interceptors.UserFromContext(r.Context())
	n := a.Sessions.InvalidateUserSessions(r.Context(), user.ID, "user revoked all sessions")
	a.Cookies.Clear(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "revoked": n})
}

// Healthz runs every readiness check and reports 503 if any fails.
func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	checks := make(map[string]string, len(a.Health))
	status := http.StatusOK
	for name, check := range a.Health {
		if err := check(ctx); err != nil {
			log.Printf("httpapi: health check %s failed: %v", name, err)
			checks[name] = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"success": status == http.StatusOK, "checks": checks})
}
