package service

import (
	"context"
	"errors"
	"log"

	auditdomain "exam-practice/backend/internal/audit/domain"
	"exam-practice/backend/internal/security"
	"exam-practice/backend/internal/session/domain"
)

// ErrInvalidRefreshToken is returned when a refresh token is malformed,
// expired, or no longer the one stored for its session.
var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// RefreshWithToken exchanges the current refresh token of a session for a new
// token pair. The presented token must match the stored hash, so each refresh
// token is accepted at most once. A fingerprint mismatch or an inactive admin
// purges the session like validation does.
func (m *Manager) RefreshWithToken(ctx context.Context, refreshToken string, meta security.RequestMeta) (*domain.AdminSession, error) {
	claims, err := m.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	sess := m.store.Get(ctx, claims.SessionID)
	if sess == nil || sess.User.ID != claims.UserID {
		return nil, ErrSessionNotFound
	}
	if !sess.Live(m.nowF()) {
		m.dropResidue(ctx, sess.ID)
		return nil, ErrSessionNotLive
	}
	if !security.MatchesTokenHash(refreshToken, sess.RefreshTokenHash) {
		m.record(ctx, sess, auditdomain.ActionSessionRefreshed, false, map[string]string{"reason": "stale refresh token"})
		return nil, ErrInvalidRefreshToken
	}
	if !security.FingerprintEqual(m.fingerprints.Fingerprint(meta), sess.Metadata.Fingerprint) {
		m.purge(ctx, sess, auditdomain.ActionSuspiciousFingerprint, meta, domain.ReasonFingerprintMismatch)
		return nil, ErrSessionNotLive
	}
	user, err := m.checkUser(ctx, sess.User.ID)
	if err != nil {
		log.Printf("session: user status check for %s: %v", shortID(sess.ID), err)
		return nil, err
	}
	if user == nil {
		m.purge(ctx, sess, auditdomain.ActionSuspiciousUserStatus, meta, domain.ReasonUserInactive)
		return nil, ErrSessionNotLive
	}

	next, err := m.store.Modify(sess.ID, func(cur *domain.AdminSession) (*domain.AdminSession, error) {
		if !cur.Live(m.nowF()) {
			return nil, ErrSessionNotLive
		}
		// Another exchange of the same token won the race.
		if !security.MatchesTokenHash(refreshToken, cur.RefreshTokenHash) {
			return nil, ErrInvalidRefreshToken
		}
		cur.User = *user
		cur.Metadata.LastActivity = m.nowF().UTC()
		return m.refreshed(cur)
	})
	if err != nil {
		if !errors.Is(err, ErrSessionNotLive) && !errors.Is(err, ErrInvalidRefreshToken) && m.store.Peek(sess.ID) == nil {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if !m.heartbeats.Active(next.ID) {
		m.heartbeats.Schedule(next.ID)
	}
	m.metrics.SessionRefreshed()
	m.record(ctx, next, auditdomain.ActionSessionRefreshed, true, map[string]string{"trigger": "refresh_token"})
	return next, nil
}
