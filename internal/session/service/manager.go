// Package service is the admin session lifecycle: creation, validation,
// refresh and invalidation on top of the session store and heartbeat.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"exam-practice/backend/internal/audit"
	auditdomain "exam-practice/backend/internal/audit/domain"
	"exam-practice/backend/internal/security"
	"exam-practice/backend/internal/session/domain"
	"exam-practice/backend/internal/telemetry"
	userdomain "exam-practice/backend/internal/user/domain"
)

var (
	// ErrSessionLimitReached is returned by CreateSession under the reject policy.
	ErrSessionLimitReached = errors.New("concurrent session limit reached")
	// ErrSessionNotFound is returned when no session exists for the id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotLive is returned when refreshing an invalidated or expired session.
	ErrSessionNotLive = errors.New("session is not live")
)

// Session limit policies.
const (
	LimitPolicyEvictOldest = "evict_oldest"
	LimitPolicyReject      = "reject"
)

const userLockShards = 64

// SessionStore is the store the manager runs on.
type SessionStore interface {
	Create(ctx context.Context, s *domain.AdminSession) error
	Get(ctx context.Context, id string) *domain.AdminSession
	Peek(id string) *domain.AdminSession
	Modify(id string, fn func(cur *domain.AdminSession) (*domain.AdminSession, error)) (*domain.AdminSession, error)
	Touch(id string, fn func(cur *domain.AdminSession) (*domain.AdminSession, error)) (*domain.AdminSession, error)
	Persist(id string) bool
	Remove(ctx context.Context, id string)
	ListByUser(userID string) []*domain.AdminSession
	Close(ctx context.Context) error
}

// Heartbeats schedules the per-session background task.
type Heartbeats interface {
	Schedule(id string)
	Cancel(id string)
	Active(id string) bool
	Stop()
}

// UserStatusChecker re-fetches the admin behind a session. It returns a nil
// user when the account is missing or not allowed to hold a session, and an
// error only when the check itself failed.
type UserStatusChecker interface {
	ValidateUserStatus(ctx context.Context, userID string) (*userdomain.AdminUser, error)
}

// Config holds the session policy knobs.
type Config struct {
	RefreshThreshold      time.Duration
	MaxConcurrentSessions int
	LimitPolicy           string
	UserStatusTimeout     time.Duration
}

// Deps are the collaborators of a Manager. Audit, Metrics and Tracer may be nil.
type Deps struct {
	Store        SessionStore
	Heartbeats   Heartbeats
	Tokens       *security.TokenCodec
	Fingerprints *security.FingerprintGenerator
	Users        UserStatusChecker
	Audit        audit.Recorder
	Metrics      *telemetry.Metrics
	Tracer       trace.Tracer
}

// Manager owns the session lifecycle.
type Manager struct {
	store        SessionStore
	heartbeats   Heartbeats
	tokens       *security.TokenCodec
	fingerprints *security.FingerprintGenerator
	users        UserStatusChecker
	audit        audit.Recorder
	metrics      *telemetry.Metrics
	tracer       trace.Tracer
	cfg          Config
	nowF         func() time.Time

	userLocks [userLockShards]sync.Mutex
}

// NewManager returns a Manager. nowF drives expiry and refresh decisions; nil means time.Now.
func NewManager(deps Deps, cfg Config, nowF func() time.Time) *Manager {
	if nowF == nil {
		nowF = time.Now
	}
	if cfg.LimitPolicy == "" {
		cfg.LimitPolicy = LimitPolicyEvictOldest
	}
	if cfg.UserStatusTimeout <= 0 {
		cfg.UserStatusTimeout = 2 * time.Second
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLogger(0, deps.Metrics)
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(telemetry.MeterName)
	}
	return &Manager{
		store:        deps.Store,
		heartbeats:   deps.Heartbeats,
		tokens:       deps.Tokens,
		fingerprints: deps.Fingerprints,
		users:        deps.Users,
		audit:        deps.Audit,
		metrics:      deps.Metrics,
		tracer:       tracer,
		cfg:          cfg,
		nowF:         nowF,
	}
}

func (m *Manager) lockUser(userID string) func() {
	mu := &m.userLocks[xxhash.Sum64String(userID)%userLockShards]
	mu.Lock()
	return mu.Unlock
}

// CreateSession issues tokens for user on the device described by meta, stores
// the session and starts its heartbeat. The concurrent-session limit is
// enforced here under a per-user lock.
func (m *Manager) CreateSession(ctx context.Context, user *userdomain.AdminUser, meta security.RequestMeta) (*domain.AdminSession, error) {
	if user == nil || user.ID == "" {
		return nil, errors.New("session: user is required")
	}
	unlock := m.lockUser(user.ID)
	defer unlock()

	if err := m.enforceLimit(ctx, user.ID); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	access, expiresAt, err := m.tokens.IssueAccess(user, id)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, _, err := m.tokens.IssueRefresh(user, id)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	now := m.nowF().UTC()
	sess := &domain.AdminSession{
		ID:               id,
		User:             *user,
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshTokenHash: security.HashToken(refresh),
		Metadata: domain.SessionMetadata{
			UserAgent:    meta.UserAgent,
			IPAddress:    meta.ClientIP(),
			Fingerprint:  m.fingerprints.Fingerprint(meta),
			CreatedAt:    now,
			LastActivity: now,
			DeviceInfo:   security.DescribeDevice(meta.UserAgent),
		},
		ExpiresAt: expiresAt,
		IsValid:   true,
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	m.heartbeats.Schedule(id)
	m.metrics.SessionCreated()
	m.record(ctx, sess, auditdomain.ActionSessionCreated, true, map[string]string{"device": sess.Metadata.DeviceInfo})
	return sess.Clone(), nil
}

// enforceLimit runs with the user lock held.
func (m *Manager) enforceLimit(ctx context.Context, userID string) error {
	max := m.cfg.MaxConcurrentSessions
	if max <= 0 {
		return nil
	}
	live := m.liveSessions(userID)
	if len(live) < max {
		return nil
	}
	if m.cfg.LimitPolicy == LimitPolicyReject {
		return ErrSessionLimitReached
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].Metadata.LastActivity.Before(live[j].Metadata.LastActivity)
	})
	for _, s := range live[:len(live)-max+1] {
		m.InvalidateSession(ctx, s.ID, auditdomain.ActionSessionLimitEvicted, "concurrent session limit reached")
	}
	return nil
}

func (m *Manager) liveSessions(userID string) []*domain.AdminSession {
	now := m.nowF()
	var out []*domain.AdminSession
	for _, s := range m.store.ListByUser(userID) {
		if s.Live(now) {
			out = append(out, s)
		}
	}
	return out
}

// ActiveSessions returns the live sessions of userID, most recently active first.
func (m *Manager) ActiveSessions(userID string) []*domain.AdminSession {
	live := m.liveSessions(userID)
	sort.Slice(live, func(i, j int) bool {
		return live[i].Metadata.LastActivity.After(live[j].Metadata.LastActivity)
	})
	return live
}

// RefreshSession issues new tokens for a live session and extends ExpiresAt.
// The session id never changes.
func (m *Manager) RefreshSession(ctx context.Context, id string) (*domain.AdminSession, error) {
	if m.store.Get(ctx, id) == nil {
		return nil, ErrSessionNotFound
	}
	sess, err := m.store.Modify(id, func(cur *domain.AdminSession) (*domain.AdminSession, error) {
		if !cur.Live(m.nowF()) {
			return nil, ErrSessionNotLive
		}
		return m.refreshed(cur)
	})
	if err != nil {
		if !errors.Is(err, ErrSessionNotLive) && m.store.Peek(id) == nil {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	m.metrics.SessionRefreshed()
	m.record(ctx, sess, auditdomain.ActionSessionRefreshed, true, map[string]string{"trigger": "explicit"})
	return sess, nil
}

// refreshed returns cur with new tokens. ExpiresAt always moves forward.
func (m *Manager) refreshed(cur *domain.AdminSession) (*domain.AdminSession, error) {
	access, expiresAt, err := m.tokens.IssueAccess(&cur.User, cur.ID)
	if err != nil {
		return nil, err
	}
	refresh, _, err := m.tokens.IssueRefresh(&cur.User, cur.ID)
	if err != nil {
		return nil, err
	}
	if !expiresAt.After(cur.ExpiresAt) {
		expiresAt = cur.ExpiresAt.Add(time.Second)
	}
	cur.AccessToken = access
	cur.RefreshToken = refresh
	cur.RefreshTokenHash = security.HashToken(refresh)
	cur.ExpiresAt = expiresAt
	return cur, nil
}

// InvalidateSession marks the session terminal. The record stays behind as a
// tombstone until the session's heartbeat removes it; without a running
// heartbeat it is removed at once. Reports whether a live session was invalidated.
func (m *Manager) InvalidateSession(ctx context.Context, id string, action auditdomain.Action, reason string) bool {
	var wasLive bool
	sess, err := m.store.Modify(id, func(cur *domain.AdminSession) (*domain.AdminSession, error) {
		if !cur.IsValid {
			return nil, nil
		}
		wasLive = true
		cur.IsValid = false
		return cur, nil
	})
	if err != nil {
		// Not in memory; drop any durable residue.
		m.store.Remove(ctx, id)
		return false
	}
	if !m.heartbeats.Active(id) {
		m.store.Remove(ctx, id)
	}
	if !wasLive {
		return false
	}
	if action == "" {
		action = auditdomain.ActionSessionInvalidated
	}
	m.metrics.SessionInvalidated(string(action))
	m.record(ctx, sess, action, true, map[string]string{"reason": reason})
	return true
}

// InvalidateUserSessions invalidates every live session of userID and returns how many were live.
func (m *Manager) InvalidateUserSessions(ctx context.Context, userID, reason string) int {
	unlock := m.lockUser(userID)
	defer unlock()
	n := 0
	for _, s := range m.store.ListByUser(userID) {
		if m.InvalidateSession(ctx, s.ID, auditdomain.ActionSessionInvalidated, reason) {
			n++
		}
	}
	return n
}

// purge removes a session flagged as suspicious at once and stops its heartbeat.
// The terminal record is saved before the delete, so a delete that never
// reaches the durable port leaves an invalid copy rather than a valid one.
func (m *Manager) purge(ctx context.Context, sess *domain.AdminSession, action auditdomain.Action, meta security.RequestMeta, reason domain.Reason) {
	_, _ = m.store.Modify(sess.ID, func(cur *domain.AdminSession) (*domain.AdminSession, error) {
		if !cur.IsValid {
			return nil, nil
		}
		cur.IsValid = false
		return cur, nil
	})
	m.store.Remove(ctx, sess.ID)
	m.heartbeats.Cancel(sess.ID)
	m.metrics.SessionInvalidated(string(action))
	m.audit.Record(ctx, auditdomain.Event{
		UserID:      sess.User.ID,
		Email:       sess.User.Email,
		SessionID:   sess.ID,
		Action:      action,
		IPAddress:   meta.ClientIP(),
		UserAgent:   meta.UserAgent,
		Fingerprint: sess.Metadata.Fingerprint,
		Success:     false,
		Metadata:    map[string]string{"reason": string(reason), "recorded_ip": sess.Metadata.IPAddress},
	})
}

// Shutdown stops all heartbeats and drains pending durable writes, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.heartbeats.Stop()
	if err := m.store.Close(ctx); err != nil {
		log.Printf("session: shutdown: %v", err)
		return err
	}
	return nil
}

// ExpiredAuditor returns a heartbeat callback that records session_expired.
func ExpiredAuditor(rec audit.Recorder, metrics *telemetry.Metrics) func(ctx context.Context, s *domain.AdminSession) {
	return func(ctx context.Context, s *domain.AdminSession) {
		metrics.SessionInvalidated(string(auditdomain.ActionSessionExpired))
		if rec == nil {
			return
		}
		rec.Record(ctx, auditdomain.Event{
			UserID:      s.User.ID,
			Email:       s.User.Email,
			SessionID:   s.ID,
			Action:      auditdomain.ActionSessionExpired,
			IPAddress:   s.Metadata.IPAddress,
			UserAgent:   s.Metadata.UserAgent,
			Fingerprint: s.Metadata.Fingerprint,
			Success:     true,
		})
	}
}

func (m *Manager) record(ctx context.Context, s *domain.AdminSession, action auditdomain.Action, success bool, md map[string]string) {
	if s == nil {
		return
	}
	m.audit.Record(ctx, auditdomain.Event{
		UserID:      s.User.ID,
		Email:       s.User.Email,
		SessionID:   s.ID,
		Action:      action,
		IPAddress:   s.Metadata.IPAddress,
		UserAgent:   s.Metadata.UserAgent,
		Fingerprint: s.Metadata.Fingerprint,
		Success:     success,
		Metadata:    md,
	})
}
