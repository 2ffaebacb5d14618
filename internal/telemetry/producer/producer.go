// Package producer publishes audit events to a message broker (Kafka).
package producer

import (
	"context"

	auditdomain "exam-practice/backend/internal/audit/domain"
)

// Producer publishes audit events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Write sends a single event. Implementations may block briefly; the audit logger calls it from a goroutine.
	Write(ctx context.Context, e *auditdomain.Event) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
