package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-practice/backend/internal/audit/domain"
)

type memSink struct {
	mu     sync.Mutex
	name   string
	events []*domain.Event
	err    error
	delay  time.Duration
}

func (m *memSink) Name() string { return m.name }

func (m *memSink) Write(ctx context.Context, e *domain.Event) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *memSink) snapshot() []*domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Event(nil), m.events...)
}

func TestLogger_RecordStampsEvent(t *testing.T) {
	sink := &memSink{name: "mem"}
	l := NewLogger(time.Second, nil, sink)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l.nowF = func() time.Time { return fixed }

	l.Record(context.Background(), domain.Event{
		Action:      domain.ActionSessionCreated,
		SessionID:   "s1",
		Fingerprint: "0123456789abcdef0123456789abcdef",
		Success:     true,
	})

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	e := sink.snapshot()[0]
	_, err := ulid.Parse(e.ID)
	assert.NoError(t, err, "id should be a ULID")
	assert.Equal(t, fixed, e.Timestamp)
	assert.Equal(t, domain.SystemUserID, e.UserID)
	assert.Equal(t, "0123456789abcdef", e.Fingerprint, "only the short fingerprint may be recorded")
}

func TestLogger_FanOutAndFailureIsolation(t *testing.T) {
	ok := &memSink{name: "ok"}
	bad := &memSink{name: "bad", err: errors.New("sink down")}
	slow := &memSink{name: "slow", delay: time.Minute}
	l := NewLogger(20*time.Millisecond, nil, bad, nil, slow, ok)

	start := time.Now()
	l.Record(context.Background(), domain.Event{UserID: "u1", Action: domain.ActionLogout})
	assert.Less(t, time.Since(start), time.Second, "Record must not wait for sinks")

	require.Eventually(t, func() bool { return len(ok.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(bad.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "u1", ok.snapshot()[0].UserID)
}

func TestLogger_SinksGetIndependentCopies(t *testing.T) {
	a := &memSink{name: "a"}
	b := &memSink{name: "b"}
	l := NewLogger(time.Second, nil, a, b)
	l.Record(context.Background(), domain.Event{Action: domain.ActionIPChanged})
	require.Eventually(t, func() bool { return len(a.snapshot()) == 1 && len(b.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.NotSame(t, a.snapshot()[0], b.snapshot()[0])
	assert.Equal(t, a.snapshot()[0].ID, b.snapshot()[0].ID)
}

func TestLogger_NilIsNoop(t *testing.T) {
	var l *Logger
	l.Record(context.Background(), domain.Event{Action: domain.ActionLogout})
}

func TestActionSuspicious(t *testing.T) {
	assert.True(t, domain.ActionSuspiciousFingerprint.Suspicious())
	assert.True(t, domain.ActionSuspiciousUserStatus.Suspicious())
	assert.False(t, domain.ActionIPChanged.Suspicious())
}
