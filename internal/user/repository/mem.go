package repository

import (
	"context"
	"errors"
	"strings"
	"sync"

	"exam-practice/backend/internal/user/domain"
)

// ErrDuplicateUser is returned by MemRepository.Create for a taken id or email.
var ErrDuplicateUser = errors.New("user already exists")

// MemRepository keeps users in memory. Err, when set, fails every call.
type MemRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
	Err   error
}

// NewMemRepository returns a MemRepository holding users.
func NewMemRepository(users ...*domain.User) *MemRepository {
	r := &MemRepository{users: make(map[string]*domain.User)}
	for _, u := range users {
		cp := *u
		r.users[u.ID] = &cp
	}
	return r
}

func (r *MemRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *MemRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemRepository) Create(_ context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for _, cur := range r.users {
		if cur.ID == u.ID || strings.EqualFold(cur.Email, u.Email) {
			return ErrDuplicateUser
		}
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

// Update replaces the stored copy of u.
func (r *MemRepository) Update(u *domain.User) {
	r.mu.Lock()
	cp := *u
	r.users[u.ID] = &cp
	r.mu.Unlock()
}
