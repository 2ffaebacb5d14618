// Package audit records admin session lifecycle events. Recording never fails
// the operation that triggered it.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/oklog/ulid/v2"

	"exam-practice/backend/internal/audit/domain"
	"exam-practice/backend/internal/security"
	"exam-practice/backend/internal/telemetry"
)

// Sink is one destination for audit events.
type Sink interface {
	Name() string
	Write(ctx context.Context, e *domain.Event) error
}

// Recorder is implemented by Logger. Record is best-effort and never blocks on I/O.
type Recorder interface {
	Record(ctx context.Context, e domain.Event)
}

const defaultSinkTimeout = 3 * time.Second

// Logger fans events out to its sinks asynchronously.
type Logger struct {
	sinks   []Sink
	timeout time.Duration
	metrics *telemetry.Metrics
	nowF    func() time.Time
}

// NewLogger returns a Logger writing to the non-nil sinks. timeout bounds each sink write; <= 0 uses 3s.
func NewLogger(timeout time.Duration, metrics *telemetry.Metrics, sinks ...Sink) *Logger {
	if timeout <= 0 {
		timeout = defaultSinkTimeout
	}
	l := &Logger{timeout: timeout, metrics: metrics, nowF: time.Now}
	for _, s := range sinks {
		if s != nil {
			l.sinks = append(l.sinks, s)
		}
	}
	return l
}

// Record stamps e with an id and timestamp and hands it to every sink.
// Sink failures are logged and counted, never returned.
func (l *Logger) Record(ctx context.Context, e domain.Event) {
	if l == nil {
		return
	}
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.nowF().UTC()
	}
	if e.UserID == "" {
		e.UserID = domain.SystemUserID
	}
	e.Fingerprint = security.ShortFingerprint(e.Fingerprint)
	if e.Action.Suspicious() {
		log.Printf("audit: SECURITY %s user=%s session=%s ip=%s fp=%s", e.Action, e.UserID, shortID(e.SessionID), e.IPAddress, e.Fingerprint)
	}
	for _, sink := range l.sinks {
		sink := sink
		ev := e
		telemetry.RunAsync("audit "+sink.Name(), l.timeout, func(ctx context.Context) error {
			return sink.Write(ctx, &ev)
		}, func(error) { l.metrics.AuditSinkFailure(sink.Name()) })
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// LogSink writes events to the process log. Used when no other sink is configured.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Write(_ context.Context, e *domain.Event) error {
	log.Printf("audit: %s user=%s session=%s success=%t", e.Action, e.UserID, shortID(e.SessionID), e.Success)
	return nil
}
