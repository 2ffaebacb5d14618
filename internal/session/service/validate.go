package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	auditdomain "exam-practice/backend/internal/audit/domain"
	"exam-practice/backend/internal/security"
	"exam-practice/backend/internal/session/domain"
	userdomain "exam-practice/backend/internal/user/domain"
)

// errTerminal aborts the activity update when the session was invalidated
// between lookup and update.
var errTerminal = errors.New("session became terminal")

// ValidateSession runs the validation pipeline for token presented with meta.
// Stages short-circuit on the first failure; nothing escapes as a panic or error.
func (m *Manager) ValidateSession(ctx context.Context, token string, meta security.RequestMeta) (res domain.ValidationResult) {
	ctx, span := m.tracer.Start(ctx, "session.validate")
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session: validation panic: %v\n%s", r, debug.Stack())
			res = domain.Fail(domain.ReasonSystemError)
		}
		m.metrics.Validation(string(res.Reason))
		span.SetAttributes(
			attribute.Bool("session.valid", res.Valid),
			attribute.Bool("session.refreshed", res.Refreshed),
			attribute.Bool("session.suspicious", res.Suspicious),
		)
		if !res.Valid {
			span.SetStatus(codes.Error, string(res.Reason))
		}
		span.End()
	}()

	// Signature.
	claims, err := m.tokens.VerifyAccess(token)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			res = domain.Fail(domain.ReasonSessionExpired)
			res.Expired = true
			return res
		}
		return domain.Fail(domain.ReasonInvalidSignature)
	}
	span.SetAttributes(attribute.String("session.id", shortID(claims.SessionID)))

	// Existence.
	sess := m.store.Get(ctx, claims.SessionID)
	if sess == nil || sess.User.ID != claims.UserID {
		return domain.Fail(domain.ReasonSessionNotFound)
	}

	// Integrity.
	now := m.nowF()
	if now.After(sess.ExpiresAt) {
		m.dropResidue(ctx, sess.ID)
		res = domain.Fail(domain.ReasonSessionExpired)
		res.Expired = true
		return res
	}
	if !sess.IsValid {
		m.dropResidue(ctx, sess.ID)
		return domain.Fail(domain.ReasonSessionInvalidated)
	}
	if !security.FingerprintEqual(m.fingerprints.Fingerprint(meta), sess.Metadata.Fingerprint) {
		m.purge(ctx, sess, auditdomain.ActionSuspiciousFingerprint, meta, domain.ReasonFingerprintMismatch)
		res = domain.Fail(domain.ReasonFingerprintMismatch)
		res.Suspicious = true
		return res
	}

	// User status.
	user, err := m.checkUser(ctx, sess.User.ID)
	if err != nil {
		log.Printf("session: user status check for %s: %v", shortID(sess.ID), err)
		return domain.Fail(domain.ReasonSystemError)
	}
	if user == nil {
		m.purge(ctx, sess, auditdomain.ActionSuspiciousUserStatus, meta, domain.ReasonUserInactive)
		res = domain.Fail(domain.ReasonUserInactive)
		res.Suspicious = true
		return res
	}

	// A session recovered from the durable port has no heartbeat on this process yet.
	if !m.heartbeats.Active(sess.ID) {
		m.heartbeats.Schedule(sess.ID)
	}

	// Activity and refresh, applied atomically.
	var (
		previousIP string
		refreshed  bool
	)
	clientIP := meta.ClientIP()
	updated, err := m.store.Touch(sess.ID, func(cur *domain.AdminSession) (*domain.AdminSession, error) {
		if !cur.Live(now) {
			return nil, errTerminal
		}
		cur.User = *user
		cur.Metadata.LastActivity = now.UTC()
		if clientIP != "" && clientIP != cur.Metadata.IPAddress {
			previousIP = cur.Metadata.IPAddress
			cur.Metadata.IPAddress = clientIP
		}
		// Re-checked under the lock so concurrent requests refresh once.
		if cur.ExpiresAt.Sub(now) < m.cfg.RefreshThreshold {
			next, err := m.refreshed(cur)
			if err != nil {
				return nil, fmt.Errorf("refresh: %w", err)
			}
			refreshed = true
			return next, nil
		}
		return cur, nil
	})
	if err != nil {
		if errors.Is(err, errTerminal) || m.store.Peek(sess.ID) == nil {
			return domain.Fail(domain.ReasonSessionInvalidated)
		}
		log.Printf("session: activity update for %s: %v", shortID(sess.ID), err)
		return domain.Fail(domain.ReasonSystemError)
	}

	if previousIP != "" {
		m.audit.Record(ctx, auditdomain.Event{
			UserID:      user.ID,
			Email:       user.Email,
			SessionID:   updated.ID,
			Action:      auditdomain.ActionIPChanged,
			IPAddress:   clientIP,
			UserAgent:   meta.UserAgent,
			Fingerprint: updated.Metadata.Fingerprint,
			Success:     true,
			Metadata:    map[string]string{"previous_ip": previousIP},
		})
	}
	if refreshed {
		m.store.Persist(updated.ID)
		m.metrics.SessionRefreshed()
		m.record(ctx, updated, auditdomain.ActionSessionRefreshed, true, map[string]string{"trigger": "threshold"})
	}

	return domain.ValidationResult{
		Valid:     true,
		User:      user,
		Session:   updated,
		Refreshed: refreshed,
	}
}

// dropResidue deletes a terminal durable record that no heartbeat on this
// process will ever clean up.
func (m *Manager) dropResidue(ctx context.Context, id string) {
	if m.store.Peek(id) == nil {
		m.store.Remove(ctx, id)
	}
}

func (m *Manager) checkUser(ctx context.Context, userID string) (*userdomain.AdminUser, error) {
	if m.users == nil {
		return nil, errors.New("no user status checker configured")
	}
	uctx, cancel := context.WithTimeout(ctx, m.cfg.UserStatusTimeout)
	defer cancel()
	return m.users.ValidateUserStatus(uctx, userID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
