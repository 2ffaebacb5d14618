package main

import (
	"path/filepath"
	"testing"

	"exam-practice/backend/internal/config"
)

func TestSessionRepository_MemoryHasNoDurablePort(t *testing.T) {
	repo, closeRepo, err := sessionRepository(&config.Config{SessionBackend: config.BackendMemory}, nil)
	if err != nil {
		t.Fatalf("sessionRepository: %v", err)
	}
	defer closeRepo()
	if repo != nil {
		t.Errorf("memory backend returned %T, want nil", repo)
	}
}

func TestSessionRepository_Bolt(t *testing.T) {
	cfg := &config.Config{SessionBackend: config.BackendBolt, BoltPath: filepath.Join(t.TempDir(), "sessions.db")}
	repo, closeRepo, err := sessionRepository(cfg, nil)
	if err != nil {
		t.Fatalf("sessionRepository: %v", err)
	}
	defer closeRepo()
	if repo == nil {
		t.Fatal("bolt backend returned no repository")
	}
}
