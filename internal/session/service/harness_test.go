package service

import (
	"context"
	"sync"
	"testing"
	"time"

	auditdomain "exam-practice/backend/internal/audit/domain"
	"exam-practice/backend/internal/security"
	"exam-practice/backend/internal/session/heartbeat"
	"exam-practice/backend/internal/session/repository"
	"exam-practice/backend/internal/session/store"
	userdomain "exam-practice/backend/internal/user/domain"
)

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*userdomain.AdminUser
	err   error
	panic bool
}

func (f *fakeUsers) ValidateUserStatus(_ context.Context, id string) (*userdomain.AdminUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("user store exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) set(fn func(f *fakeUsers)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

type memAudit struct {
	mu     sync.Mutex
	events []auditdomain.Event
}

func (a *memAudit) Record(_ context.Context, e auditdomain.Event) {
	a.mu.Lock()
	a.events = append(a.events, e)
	a.mu.Unlock()
}

func (a *memAudit) count(action auditdomain.Action) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if e.Action == action {
			n++
		}
	}
	return n
}

// manualTicker fires only when a test sends on ch.
type manualTicker struct{ ch chan time.Time }

func (t manualTicker) C() <-chan time.Time { return t.ch }
func (t manualTicker) Stop()               {}

type harness struct {
	clock  *testClock
	users  *fakeUsers
	audit  *memAudit
	repo   *repository.MemRepository
	store  *store.Store
	hb     *heartbeat.Scheduler
	tokens *security.TokenCodec
	mgr    *Manager
	admin  *userdomain.AdminUser

	cfg       Config
	includeIP bool

	tickMu  sync.Mutex
	tickers []chan time.Time
}

type harnessOpt func(*Config, *bool)

func withConfig(fn func(*Config)) harnessOpt { return func(c *Config, _ *bool) { fn(c) } }
func withIP() harnessOpt                     { return func(_ *Config, ip *bool) { *ip = true } }

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	h := &harness{
		clock: &testClock{now: t0},
		audit: &memAudit{},
		repo:  repository.NewMemRepository(),
		admin: &userdomain.AdminUser{ID: "u1", Email: "admin@example.com", Role: userdomain.RoleAdmin, EmailVerified: true},
	}
	h.users = &fakeUsers{users: map[string]*userdomain.AdminUser{"u1": h.admin}}
	cfg := Config{RefreshThreshold: 30 * time.Minute, MaxConcurrentSessions: 5, LimitPolicy: LimitPolicyEvictOldest, UserStatusTimeout: time.Second}
	includeIP := false
	for _, o := range opts {
		o(&cfg, &includeIP)
	}
	h.tokens = security.NewTestTokenCodec(h.clock.Now)
	h.cfg, h.includeIP = cfg, includeIP
	h.build(cfg, includeIP)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.mgr.Shutdown(ctx)
	})
	return h
}

// build wires a manager over h.repo. Calling it again simulates a process restart.
func (h *harness) build(cfg Config, includeIP bool) {
	h.store = store.New(h.repo, store.WithClock(h.clock.Now), store.WithWriters(0, 0))
	h.hb = heartbeat.NewScheduler(h.store, 5*time.Minute,
		heartbeat.WithClock(h.clock.Now),
		heartbeat.WithTicker(func(time.Duration) heartbeat.Ticker {
			ch := make(chan time.Time, 1)
			h.tickMu.Lock()
			h.tickers = append(h.tickers, ch)
			h.tickMu.Unlock()
			return manualTicker{ch: ch}
		}),
		heartbeat.WithOnExpired(ExpiredAuditor(h.audit, nil)),
	)
	h.mgr = NewManager(Deps{
		Store:        h.store,
		Heartbeats:   h.hb,
		Tokens:       h.tokens,
		Fingerprints: security.NewFingerprintGenerator(includeIP),
		Users:        h.users,
		Audit:        h.audit,
	}, cfg, h.clock.Now)
}

// restart stops the current manager and builds a new one over the same durable records.
func (h *harness) restart() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = h.mgr.Shutdown(ctx)
	h.build(h.cfg, h.includeIP)
}

// fireHeartbeat delivers one tick to the n-th scheduled heartbeat.
func (h *harness) fireHeartbeat(n int) {
	h.tickMu.Lock()
	ch := h.tickers[n]
	h.tickMu.Unlock()
	ch <- h.clock.Now()
}

func chromeMeta() security.RequestMeta {
	return security.RequestMeta{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0 Safari/537.36",
		AcceptLanguage: "en-US",
		AcceptEncoding: "gzip, br",
		RemoteAddr:     "192.0.2.10:51000",
	}
}

func (h *harness) login(t *testing.T) *sessionHandle {
	t.Helper()
	s, err := h.mgr.CreateSession(context.Background(), h.admin, chromeMeta())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return &sessionHandle{id: s.ID, token: s.AccessToken, refresh: s.RefreshToken, expiresAt: s.ExpiresAt}
}

type sessionHandle struct {
	id        string
	token     string
	refresh   string
	expiresAt time.Time
}
