package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	auditdomain "exam-practice/backend/internal/audit/domain"
)

const auditLoggerName = "exam-practice.audit"

// AuditLogSink writes audit events as OTel log records.
type AuditLogSink struct {
	logger otellog.Logger
}

// NewAuditLogSink returns a sink emitting through provider. Returns nil when provider is nil.
func NewAuditLogSink(provider *sdklog.LoggerProvider) *AuditLogSink {
	if provider == nil {
		return nil
	}
	return &AuditLogSink{logger: provider.Logger(auditLoggerName)}
}

// Name implements audit.Sink.
func (s *AuditLogSink) Name() string { return "otel" }

// Write converts the event to a log record and emits it. Suspicious actions are emitted at WARN.
func (s *AuditLogSink) Write(ctx context.Context, e *auditdomain.Event) error {
	if s == nil || e == nil {
		return nil
	}
	s.logger.Emit(ctx, toRecord(e))
	return nil
}

func toRecord(e *auditdomain.Event) otellog.Record {
	rec := otellog.Record{}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetBody(otellog.StringValue(string(e.Action)))
	if e.Action.Suspicious() {
		rec.SetSeverity(otellog.SeverityWarn)
		rec.SetSeverityText("WARN")
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
		rec.SetSeverityText("INFO")
	}
	rec.AddAttributes(
		otellog.String("audit.id", e.ID),
		otellog.String("user_id", e.UserID),
		otellog.String("action", string(e.Action)),
		otellog.Bool("success", e.Success),
	)
	if e.SessionID != "" {
		rec.AddAttributes(otellog.String("session_id", e.SessionID))
	}
	if e.Email != "" {
		rec.AddAttributes(otellog.String("email", e.Email))
	}
	if e.IPAddress != "" {
		rec.AddAttributes(otellog.String("ip_address", e.IPAddress))
	}
	if e.UserAgent != "" {
		rec.AddAttributes(otellog.String("user_agent", e.UserAgent))
	}
	if e.Fingerprint != "" {
		rec.AddAttributes(otellog.String("fingerprint", e.Fingerprint))
	}
	for k, v := range e.Metadata {
		rec.AddAttributes(otellog.String("meta."+k, v))
	}
	return rec
}
