// Worker archives the admin audit stream: it consumes AUDIT_KAFKA_TOPIC and
// writes each event to admin_audit_logs. Run it with AUDIT_POSTGRES_SINK=false
// on the servers so each event is written once.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"exam-practice/backend/internal/audit"
	auditrepo "exam-practice/backend/internal/audit/repository"
	"exam-practice/backend/internal/config"
	"exam-practice/backend/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	defer pool.Close()

	archiver := audit.NewArchiver(brokers, cfg.AuditKafkaTopic, cfg.KafkaGroupID, auditrepo.NewPostgresRepository(pool))
	defer archiver.Close()

	log.Printf("worker: archiving %s (group %s) into admin_audit_logs", cfg.AuditKafkaTopic, cfg.KafkaGroupID)
	if err := archiver.Run(ctx); err != nil {
		log.Printf("worker: %v", err)
	}
	log.Println("worker: stopped")
}
