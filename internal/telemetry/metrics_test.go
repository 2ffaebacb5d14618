package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.SessionCreated()
	m.SessionRefreshed()
	m.SessionInvalidated("logout")
	m.Validation("")
	m.PersistFailure("save")
	m.AuditSinkFailure("kafka")
	m.HeartbeatEviction()
	if NewMetrics(nil) != nil {
		t.Error("NewMetrics(nil) should return nil")
	}
}

func TestMetrics_Recorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := NewMetrics(mp.Meter(MeterName))

	m.SessionCreated()
	m.SessionCreated()
	m.Validation("")
	m.Validation("Session expired")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	created := sumFor(t, rm, "admin_sessions_created", attribute.NewSet())
	if created != 2 {
		t.Errorf("created = %d, want 2", created)
	}
	ok := sumFor(t, rm, "admin_session_validations", attribute.NewSet(attribute.String("reason", "ok")))
	if ok != 1 {
		t.Errorf("validations{ok} = %d, want 1", ok)
	}
}

func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs attribute.Set) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != name {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is %T, want Sum[int64]", name, md.Data)
			}
			for _, dp := range sum.DataPoints {
				if dp.Attributes.Equals(&attrs) {
					return dp.Value
				}
			}
		}
	}
	return 0
}
