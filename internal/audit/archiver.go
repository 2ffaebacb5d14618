package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"exam-practice/backend/internal/audit/domain"
	auditrepo "exam-practice/backend/internal/audit/repository"
)

// messageReader is the subset of *kafka.Reader used by Archiver.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Archiver copies audit events from the Kafka stream into the audit repository.
// Offsets are committed only after the row is written, so delivery is at least
// once; the repository ignores replayed ids.
type Archiver struct {
	reader       messageReader
	repo         auditrepo.Repository
	writeTimeout time.Duration
}

// NewArchiver returns an Archiver consuming topic as groupID.
func NewArchiver(brokers []string, topic, groupID string, repo auditrepo.Repository) *Archiver {
	return &Archiver{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  time.Second,
		}),
		repo:         repo,
		writeTimeout: 10 * time.Second,
	}
}

// Run consumes until ctx is cancelled. Malformed messages are logged and
// committed; failed writes are retried by not committing.
func (a *Archiver) Run(ctx context.Context) error {
	for {
		msg, err := a.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("audit: kafka fetch failed: %v", err)
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}
		if err := a.store(ctx, msg); err != nil {
			log.Printf("audit: archive offset %d failed: %v", msg.Offset, err)
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}
		if err := a.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Printf("audit: commit offset %d failed: %v", msg.Offset, err)
		}
	}
}

func (a *Archiver) store(ctx context.Context, msg kafka.Message) error {
	var e domain.Event
	if err := json.Unmarshal(msg.Value, &e); err != nil || e.ID == "" {
		log.Printf("audit: dropping malformed event at offset %d", msg.Offset)
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, a.writeTimeout)
	defer cancel()
	return a.repo.Create(wctx, &e)
}

// Close closes the Kafka reader.
func (a *Archiver) Close() error {
	return a.reader.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
