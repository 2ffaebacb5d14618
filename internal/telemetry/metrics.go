package telemetry

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope for session metrics.
const MeterName = "exam-practice/admin-session"

// Metrics holds the session lifecycle counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	created            metric.Int64Counter
	refreshed          metric.Int64Counter
	invalidated        metric.Int64Counter
	validations        metric.Int64Counter
	persistFailures    metric.Int64Counter
	auditSinkFailures  metric.Int64Counter
	heartbeatEvictions metric.Int64Counter
}

// NewMetrics registers the counters on meter. Instruments that fail to register are logged and skipped.
func NewMetrics(meter metric.Meter) *Metrics {
	if meter == nil {
		return nil
	}
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			log.Printf("telemetry: register %s: %v", name, err)
			return nil
		}
		return c
	}
	return &Metrics{
		created:            counter("admin_sessions_created", "Admin sessions created"),
		refreshed:          counter("admin_sessions_refreshed", "Admin sessions refreshed"),
		invalidated:        counter("admin_sessions_invalidated", "Admin sessions invalidated, by action"),
		validations:        counter("admin_session_validations", "Session validations, by reason"),
		persistFailures:    counter("admin_session_persistence_failures", "Durable session store failures, by op"),
		auditSinkFailures:  counter("admin_audit_sink_failures", "Audit sink write failures, by sink"),
		heartbeatEvictions: counter("admin_session_heartbeat_evictions", "Sessions removed by the heartbeat"),
	}
}

func add(c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) SessionCreated() {
	if m != nil {
		add(m.created)
	}
}

func (m *Metrics) SessionRefreshed() {
	if m != nil {
		add(m.refreshed)
	}
}

func (m *Metrics) SessionInvalidated(action string) {
	if m != nil {
		add(m.invalidated, attribute.String("action", action))
	}
}

// Validation records one validation outcome; reason is empty for success.
func (m *Metrics) Validation(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "ok"
	}
	add(m.validations, attribute.String("reason", reason))
}

func (m *Metrics) PersistFailure(op string) {
	if m != nil {
		add(m.persistFailures, attribute.String("op", op))
	}
}

func (m *Metrics) AuditSinkFailure(sink string) {
	if m != nil {
		add(m.auditSinkFailures, attribute.String("sink", sink))
	}
}

func (m *Metrics) HeartbeatEviction() {
	if m != nil {
		add(m.heartbeatEvictions)
	}
}
