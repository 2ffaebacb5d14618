package repository

import (
	"context"
	"sync"

	"exam-practice/backend/internal/session/domain"
)

// MemRepository is an in-process Repository used by tests.
type MemRepository struct {
	mu   sync.RWMutex
	recs map[string]Record
	// Err, when set, is returned by every call.
	Err error
	// DeleteErr, when set, is returned by Delete only.
	DeleteErr error
}

// NewMemRepository returns an empty MemRepository.
func NewMemRepository() *MemRepository {
	return &MemRepository{recs: make(map[string]Record)}
}

func (r *MemRepository) Save(ctx context.Context, s *domain.AdminSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.recs[s.ID] = ToRecord(s)
	return nil
}

func (r *MemRepository) Get(ctx context.Context, id string) (*domain.AdminSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	rec, ok := r.recs[id]
	if !ok {
		return nil, nil
	}
	return rec.ToDomain(), nil
}

func (r *MemRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if r.DeleteErr != nil {
		return r.DeleteErr
	}
	delete(r.recs, id)
	return nil
}

// Len returns the number of stored records.
func (r *MemRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.recs)
}

// SetErr sets the error returned by subsequent calls.
func (r *MemRepository) SetErr(err error) {
	r.mu.Lock()
	r.Err = err
	r.mu.Unlock()
}

// SetDeleteErr sets the error returned by subsequent Delete calls.
func (r *MemRepository) SetDeleteErr(err error) {
	r.mu.Lock()
	r.DeleteErr = err
	r.mu.Unlock()
}
