package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditdomain "exam-practice/backend/internal/audit/domain"
	identityservice "exam-practice/backend/internal/identity/service"
	"exam-practice/backend/internal/security"
	"exam-practice/backend/internal/session/heartbeat"
	"exam-practice/backend/internal/session/repository"
	sessionservice "exam-practice/backend/internal/session/service"
	"exam-practice/backend/internal/session/store"
	userdomain "exam-practice/backend/internal/user/domain"
)

const (
	testUA       = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) Safari/605.1.15"
	testPassword = "Correct-Horse-9"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type staticAuth struct {
	user *userdomain.AdminUser
	err  error
}

func (a staticAuth) Authenticate(_ context.Context, email, password string) (*userdomain.AdminUser, error) {
	if a.err != nil {
		return nil, a.err
	}
	if email != a.user.Email || password != testPassword {
		return nil, identityservice.ErrInvalidCredentials
	}
	return a.user, nil
}

type userSet struct {
	mu     sync.Mutex
	active map[string]*userdomain.AdminUser
}

func (u *userSet) ValidateUserStatus(_ context.Context, id string) (*userdomain.AdminUser, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active[id], nil
}

type recorder struct {
	mu     sync.Mutex
	events []auditdomain.Event
}

func (r *recorder) Record(_ context.Context, e auditdomain.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count(a auditdomain.Action) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Action == a {
			n++
		}
	}
	return n
}

type testEnv struct {
	clock  *clock
	api    *API
	server http.Handler
	mgr    *sessionservice.Manager
	audit  *recorder
	auth   *staticAuth
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	c := &clock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	admin := &userdomain.AdminUser{ID: "u1", Email: "admin@example.com", Role: userdomain.RoleAdmin, EmailVerified: true}
	rec := &recorder{}
	st := store.New(repository.NewMemRepository(), store.WithClock(c.Now), store.WithWriters(0, 0))
	hb := heartbeat.NewScheduler(st, time.Hour, heartbeat.WithClock(c.Now))
	mgr := sessionservice.NewManager(sessionservice.Deps{
		Store:        st,
		Heartbeats:   hb,
		Tokens:       security.NewTestTokenCodec(c.Now),
		Fingerprints: security.NewFingerprintGenerator(true),
		Users:        &userSet{active: map[string]*userdomain.AdminUser{"u1": admin}},
		Audit:        rec,
	}, sessionservice.Config{RefreshThreshold: 30 * time.Minute, MaxConcurrentSessions: 5}, c.Now)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	auth := &staticAuth{user: admin}
	api := New(Deps{
		Sessions: mgr,
		Auth:     auth,
		Cookies:  &CookieManager{Path: "/", AccessTTL: 12 * time.Hour, FingerprintTTL: time.Hour},
		Audit:    rec,
		NowF:     c.Now,
		Health: map[string]HealthCheck{
			"policy": func(context.Context) error { return nil },
		},
	})
	return &testEnv{clock: c, api: api, server: api.Router(), mgr: mgr, audit: rec, auth: auth}
}

func (e *testEnv) do(t *testing.T, method, path, body string, mod func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.50:3456"
	req.Header.Set("User-Agent", testUA)
	req.Header.Set("Accept-Language", "en-GB")
	req.Header.Set("Accept-Encoding", "gzip")
	if mod != nil {
		mod(req)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

type loginResp struct {
	Success      bool   `json:"success"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	Session      struct {
		ID        string    `json:"id"`
		ExpiresAt time.Time `json:"expires_at"`
	} `json:"session"`
}

func (e *testEnv) login(t *testing.T) loginResp {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/admin/auth/login", `{"email":"admin@example.com","password":"`+testPassword+`"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out loginResp
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.True(t, out.Success)
	return out
}

func cookiesByName(rr *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rr.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func bearer(tok string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func TestLogin_SetsCookies(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodPost, "/admin/auth/login", `{"email":"admin@example.com","password":"`+testPassword+`"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	c := cookiesByName(rr)
	require.Contains(t, c, TokenCookie)
	require.Contains(t, c, SessionIDCookie)
	require.Contains(t, c, FingerprintCookie)
	assert.True(t, c[TokenCookie].HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, c[TokenCookie].SameSite)
	assert.Equal(t, 12*3600, c[TokenCookie].MaxAge)
	assert.False(t, c[SessionIDCookie].HttpOnly, "session id cookie is client-readable")
	assert.True(t, c[FingerprintCookie].HttpOnly)
	assert.Equal(t, 3600, c[FingerprintCookie].MaxAge)
	assert.Len(t, c[FingerprintCookie].Value, security.ShortFingerprintLen)
	assert.Equal(t, 1, e.audit.count(auditdomain.ActionSessionCreated))
}

func TestLogin_Failures(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodPost, "/admin/auth/login", `{"email":"admin@example.com","password":"nope"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, 1, e.audit.count(auditdomain.ActionLoginFailed))

	rr = e.do(t, http.MethodPost, "/admin/auth/login", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	e.auth.err = errors.New("db down")
	rr = e.do(t, http.MethodPost, "/admin/auth/login", `{"email":"admin@example.com","password":"`+testPassword+`"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestMiddleware_TokenSources(t *testing.T) {
	e := newEnv(t)
	l := e.login(t)

	sources := map[string]func(*http.Request){
		"bearer": bearer(l.Token),
		"cookie": func(r *http.Request) { r.AddCookie(&http.Cookie{Name: TokenCookie, Value: l.Token}) },
		"query":  func(r *http.Request) { r.URL.RawQuery = "token=" + l.Token },
	}
	for name, mod := range sources {
		t.Run(name, func(t *testing.T) {
			rr := e.do(t, http.MethodGet, "/admin/auth/session", "", mod)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
			assert.Equal(t, l.Session.ID[:8], rr.Header().Get(HeaderSessionID))
			assert.NotEmpty(t, rr.Header().Get(HeaderSessionExpires))
			assert.NotEmpty(t, rr.Header().Get(HeaderSessionActivity))
		})
	}
}

func TestMiddleware_HeaderBeatsCookie(t *testing.T) {
	e := newEnv(t)
	l := e.login(t)
	rr := e.do(t, http.MethodGet, "/admin/auth/session", "", func(r *http.Request) {
		bearer(l.Token)(r)
		r.AddCookie(&http.Cookie{Name: TokenCookie, Value: "garbage"})
	})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMiddleware_FailureClearsCookiesAndExplains(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodGet, "/admin/auth/session", "", bearer("not-a-token"))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Unauthorized", body["message"])
	assert.Equal(t, "Invalid token signature", body["reason"])
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err)

	c := cookiesByName(rr)
	for _, name := range []string{TokenCookie, SessionIDCookie, FingerprintCookie} {
		require.Contains(t, c, name)
		assert.Equal(t, -1, c[name].MaxAge, name)
	}
}

func TestMiddleware_NoToken(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodGet, "/admin/auth/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), reasonNoToken)
}

func TestMiddleware_FingerprintMismatch(t *testing.T) {
	e := newEnv(t)
	l := e.login(t)
	rr := e.do(t, http.MethodGet, "/admin/auth/session", "", func(r *http.Request) {
		bearer(l.Token)(r)
		r.Header.Set("User-Agent", "curl/8.4.0")
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "fingerprint")
}

func TestMiddleware_RefreshReissuesCookies(t *testing.T) {
	e := newEnv(t)
	l := e.login(t)
	e.clock.Advance(12*time.Hour - 20*time.Minute)

	rr := e.do(t, http.MethodGet, "/admin/auth/session", "", bearer(l.Token))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "true", rr.Header().Get(HeaderSessionRefreshed))
	c := cookiesByName(rr)
	require.Contains(t, c, TokenCookie)
	assert.NotEqual(t, l.Token, c[TokenCookie].Value)

	rr = e.do(t, http.MethodGet, "/admin/auth/session", "", bearer(c[TokenCookie].Value))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get(HeaderSessionRefreshed))
}

func TestMiddleware_RefreshedTokenHeaderForBearerClients(t *testing.T) {
	e := newEnv(t)
	l := e.login(t)
	e.clock.Advance(12*time.Hour - 20*time.Minute)

	rr := e.do(t, http.MethodGet, "/admin/auth/session", "", bearer(l.Token))
	require.Equal(t, http.StatusOK, rr.Code)
	next := rr.Header().Get(HeaderRefreshedToken)
	require.NotEmpty(t, next)
	assert.NotEqual(t, l.Token, next)
	nextRefresh := rr.Header().Get(HeaderRefreshedRefreshToken)
	require.NotEmpty(t, nextRefresh)
	assert.NotEqual(t, l.RefreshToken, nextRefresh)

	// Past the original token's lifetime only the header token still works.
	e.clock.Advance(30 * time.Minute)
	rr = e.do(t, http.MethodGet, "/admin/auth/session", "", bearer(next))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Empty(t, rr.Header().Get(HeaderRefreshedToken))
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/admin/auth/session", "", bearer(l.Token)).Code)
}

func TestRefresh_ExchangesRefreshToken(t *testing.T) {
	e := newEnv(t)
	l := e.login(t)
	require.NotEmpty(t, l.RefreshToken)
	e.clock.Advance(time.Hour)

	rr := e.do(t, http.MethodPost, "/admin/auth/refresh", `{"refresh_token":"`+l.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out loginResp
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, l.Session.ID, out.Session.ID)
	assert.NotEqual(t, l.RefreshToken, out.RefreshToken)
	assert.True(t, out.Session.ExpiresAt.After(l.Session.ExpiresAt))
	assert.Equal(t, out.Token, cookiesByName(rr)[TokenCookie].Value)

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/admin/auth/session", "", bearer(out.Token)).Code)

	rr = e.do(t, http.MethodPost, "/admin/auth/refresh", `{"refresh_token":"`+l.RefreshToken+`"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid refresh token")
}

func TestRefresh_Failures(t *testing.T) {
	e := newEnv(t)
	l := e.login(t)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/admin/auth/refresh", `{}`, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, "/admin/auth/refresh", `{"refresh_token":"`+l.Token+`"}`, nil).Code)

	rr := e.do(t, http.MethodPost, "/admin/auth/refresh", `{"refresh_token":"`+l.RefreshToken+`"}`, func(r *http.Request) {
		r.Header.Set("User-Agent", "curl/8.4.0")
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, 1, e.audit.count(auditdomain.ActionSuspiciousFingerprint))
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/admin/auth/session", "", bearer(l.Token)).Code)
}

func TestMiddleware_FingerprintCookieRotatesWhenAbsent(t *testing.T) {
	e := newEnv(t)
	l := e.login(t)

	rr := e.do(t, http.MethodGet, "/admin/auth/session", "", bearer(l.Token))
	assert.Contains(t, cookiesByName(rr), FingerprintCookie)

	rr = e.do(t, http.MethodGet, "/admin/auth/session", "", func(r *http.Request) {
		bearer(l.Token)(r)
		r.AddCookie(&http.Cookie{Name: FingerprintCookie, Value: "abc"})
	})
	assert.NotContains(t, cookiesByName(rr), FingerprintCookie)
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	l := e.login(t)
	rr := e.do(t, http.MethodPost, "/admin/auth/logout", "", bearer(l.Token))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, -1, cookiesByName(rr)[TokenCookie].MaxAge)
	assert.Equal(t, 1, e.audit.count(auditdomain.ActionLogout))

	rr = e.do(t, http.MethodGet, "/admin/auth/session", "", bearer(l.Token))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestListAndRevokeSessions(t *testing.T) {
	e := newEnv(t)
	first := e.login(t)
	e.clock.Advance(time.Minute)
	second := e.login(t)

	rr := e.do(t, http.MethodGet, "/admin/auth/sessions", "", bearer(second.Token))
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Sessions []struct {
			ID      string `json:"id"`
			Current bool   `json:"current"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 2)
	assert.Equal(t, second.Session.ID, list.Sessions[0].ID)
	assert.True(t, list.Sessions[0].Current)
	assert.False(t, list.Sessions[1].Current)

	rr = e.do(t, http.MethodDelete, "/admin/auth/sessions", "", bearer(second.Token))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"revoked":2`)

	for _, tok := range []string{first.Token, second.Token} {
		assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/admin/auth/session", "", bearer(tok)).Code)
	}
}

func TestLogin_SessionLimitReject(t *testing.T) {
	e := newEnv(t)
	st := store.New(nil, store.WithClock(e.clock.Now))
	hb := heartbeat.NewScheduler(st, time.Hour, heartbeat.WithClock(e.clock.Now))
	mgr := sessionservice.NewManager(sessionservice.Deps{
		Store:        st,
		Heartbeats:   hb,
		Tokens:       security.NewTestTokenCodec(e.clock.Now),
		Fingerprints: security.NewFingerprintGenerator(true),
		Users:        &userSet{active: map[string]*userdomain.AdminUser{"u1": e.auth.user}},
		Audit:        e.audit,
	}, sessionservice.Config{MaxConcurrentSessions: 1, LimitPolicy: sessionservice.LimitPolicyReject}, e.clock.Now)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	e.api.Sessions = mgr
	e.server = e.api.Router()

	e.login(t)
	rr := e.do(t, http.MethodPost, "/admin/auth/login", `{"email":"admin@example.com","password":"`+testPassword+`"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", "", nil).Code)

	e.api.Health["db"] = func(context.Context) error { return errors.New("down") }
	rr := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"db":"fail"`)
}
