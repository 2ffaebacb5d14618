// Package store is the in-memory session store with an asynchronous durable port.
package store

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"exam-practice/backend/internal/session/domain"
	"exam-practice/backend/internal/session/repository"
	"exam-practice/backend/internal/telemetry"
)

const shardCount = 64

var (
	// ErrSessionExists is returned by Create when the id is already live in memory.
	ErrSessionExists = errors.New("session already exists")
	// ErrNotFound is returned by Update and Modify when the id is not in memory.
	ErrNotFound = errors.New("session not found")
)

const (
	defaultPersistTimeout = 2 * time.Second
	recoverAttempts       = 3
)

type shard struct {
	mu sync.RWMutex
	m  map[string]*domain.AdminSession
	// gone holds ids removed from memory whose durable delete has not been
	// applied yet. Recovery skips them so a stale record cannot come back.
	gone map[string]struct{}
	// removals counts Remove calls on the shard. Recovery compares it across
	// the durable read and discards what it read if a removal happened meanwhile.
	removals uint64
}

type userShard struct {
	mu sync.Mutex
	m  map[string]map[string]struct{}
}

// Store maps session id to session. Each id hashes to one of 64 shards so
// unrelated sessions never contend on a lock. Stored records are never
// mutated; every write replaces the pointer.
type Store struct {
	shards [shardCount]shard
	users  [shardCount]userShard

	repo           repository.Repository
	writer         *writerPool
	persistTimeout time.Duration
	metrics        *telemetry.Metrics
	nowF           func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to decide whether a recovered session is live.
func WithClock(nowF func() time.Time) Option {
	return func(s *Store) { s.nowF = nowF }
}

// WithPersistTimeout bounds every durable operation.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// WithMetrics records persistence failures on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithWriters sets the number of durable writers and the queue depth of each.
func WithWriters(workers, queueSize int) Option {
	return func(s *Store) {
		s.writer = nil
		if workers > 0 && queueSize > 0 {
			s.writer = &writerPool{workers: workers, queueSize: queueSize}
		}
	}
}

// New returns a Store. repo may be nil for a memory-only store.
func New(repo repository.Repository, opts ...Option) *Store {
	s := &Store{
		repo:           repo,
		persistTimeout: defaultPersistTimeout,
		nowF:           time.Now,
		writer:         &writerPool{workers: 4, queueSize: 256},
	}
	for i := range s.shards {
		s.shards[i].m = make(map[string]*domain.AdminSession)
		s.shards[i].gone = make(map[string]struct{})
		s.users[i].m = make(map[string]map[string]struct{})
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.repo != nil && s.writer != nil {
		s.writer.start(s.repo, s.persistTimeout, s.metrics)
	}
	return s
}

func shardIndex(key string) uint64 {
	return xxhash.Sum64String(key) % shardCount
}

func (s *Store) shardFor(id string) *shard {
	return &s.shards[shardIndex(id)]
}

// Create stores sess and schedules a durable save.
func (s *Store) Create(ctx context.Context, sess *domain.AdminSession) error {
	sh := s.shardFor(sess.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.m[sess.ID]; ok {
		return ErrSessionExists
	}
	rec := sess.Clone()
	sh.m[sess.ID] = rec
	s.index(rec.User.ID, rec.ID)
	s.enqueueSave(rec)
	return nil
}

// Get returns a copy of the session, consulting the durable port on a memory miss.
// A live recovered session is cached again; an invalid or expired one is returned but not cached.
// Returns nil when the session exists nowhere or recovery fails.
func (s *Store) Get(ctx context.Context, id string) *domain.AdminSession {
	if sess := s.Peek(id); sess != nil {
		return sess
	}
	if s.repo == nil || id == "" {
		return nil
	}
	for i := 0; i < recoverAttempts; i++ {
		sess, raced := s.recover(ctx, id)
		if !raced {
			return sess
		}
	}
	log.Printf("session store: recover %s: gave up after concurrent removals", shortID(id))
	return nil
}

// recover reads id from the durable port and caches it when live. raced is
// true when a removal on the shard overlapped the read; the result is then
// discarded and the caller reads again.
func (s *Store) recover(ctx context.Context, id string) (sess *domain.AdminSession, raced bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	_, gone := sh.gone[id]
	epoch := sh.removals
	sh.mu.RUnlock()
	if gone {
		return nil, false
	}

	rctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()
	rec, err := s.repo.Get(rctx, id)
	if err != nil {
		log.Printf("session store: recover %s: %v", shortID(id), err)
		s.metrics.PersistFailure("get")
		return nil, false
	}
	if rec == nil {
		return nil, false
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.m[id]; ok {
		return cur.Clone(), false
	}
	if _, ok := sh.gone[id]; ok {
		return nil, false
	}
	if sh.removals != epoch {
		return nil, true
	}
	if !rec.Live(s.nowF()) {
		return rec, false
	}
	sh.m[id] = rec
	s.index(rec.User.ID, id)
	return rec.Clone(), false
}

// Peek returns a copy of the in-memory session without consulting the durable port.
func (s *Store) Peek(id string) *domain.AdminSession {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.m[id].Clone()
}

// Update replaces the stored session with sess and schedules a durable save.
func (s *Store) Update(ctx context.Context, sess *domain.AdminSession) error {
	_, err := s.Modify(sess.ID, func(*domain.AdminSession) (*domain.AdminSession, error) {
		return sess.Clone(), nil
	})
	return err
}

// Modify runs fn on a copy of the current session under the session's shard lock.
// fn returns the replacement, or nil to leave the session unchanged; its error aborts.
// Returns the stored session after fn.
func (s *Store) Modify(id string, fn func(cur *domain.AdminSession) (*domain.AdminSession, error)) (*domain.AdminSession, error) {
	return s.modify(id, fn, true)
}

// Touch is Modify without the durable save; the heartbeat flushes the result later.
func (s *Store) Touch(id string, fn func(cur *domain.AdminSession) (*domain.AdminSession, error)) (*domain.AdminSession, error) {
	return s.modify(id, fn, false)
}

func (s *Store) modify(id string, fn func(cur *domain.AdminSession) (*domain.AdminSession, error), persist bool) (*domain.AdminSession, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur, ok := sh.m[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := fn(cur.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return cur.Clone(), nil
	}
	next.ID = id
	sh.m[id] = next
	if persist {
		s.enqueueSave(next)
	}
	return next.Clone(), nil
}

// Remove deletes the session from memory and schedules a durable delete.
// Removing a missing session still deletes any residual durable record.
func (s *Store) Remove(ctx context.Context, id string) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.removals++
	if cur, ok := sh.m[id]; ok {
		delete(sh.m, id)
		s.unindex(cur.User.ID, id)
	}
	if s.repo == nil {
		return
	}
	if s.writer == nil {
		if !s.syncWrite(writeJob{op: opDelete, id: id}) {
			sh.gone[id] = struct{}{}
		}
		return
	}
	sh.gone[id] = struct{}{}
	s.writer.enqueue(writeJob{op: opDelete, id: id, done: s.deleted})
}

// deleted runs once the durable delete of id has been applied.
func (s *Store) deleted(id string) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	delete(sh.gone, id)
	sh.mu.Unlock()
}

// Persist schedules a durable save of the current in-memory snapshot of id.
func (s *Store) Persist(id string) bool {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	cur, ok := sh.m[id]
	if !ok {
		return false
	}
	s.enqueueSave(cur)
	return true
}

// ListByUser returns copies of the in-memory sessions of userID, in no particular order.
func (s *Store) ListByUser(userID string) []*domain.AdminSession {
	us := &s.users[shardIndex(userID)]
	us.mu.Lock()
	ids := make([]string, 0, len(us.m[userID]))
	for id := range us.m[userID] {
		ids = append(ids, id)
	}
	us.mu.Unlock()

	out := make([]*domain.AdminSession, 0, len(ids))
	for _, id := range ids {
		if sess := s.Peek(id); sess != nil {
			out = append(out, sess)
		}
	}
	return out
}

// Len returns the number of in-memory sessions.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		s.shards[i].mu.RLock()
		n += len(s.shards[i].m)
		s.shards[i].mu.RUnlock()
	}
	return n
}

// Close stops accepting durable writes and waits for queued ones, then retries
// every durable delete that has not been applied yet. Bounded by ctx.
func (s *Store) Close(ctx context.Context) error {
	if s.writer != nil {
		if err := s.writer.close(ctx); err != nil {
			return err
		}
	}
	s.retryDeletes(ctx)
	return nil
}

// retryDeletes runs once the writer pool is drained.
func (s *Store) retryDeletes(ctx context.Context) {
	if s.repo == nil {
		return
	}
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		ids := make([]string, 0, len(sh.gone))
		for id := range sh.gone {
			ids = append(ids, id)
		}
		sh.mu.RUnlock()
		for _, id := range ids {
			if ctx.Err() != nil {
				log.Printf("session store: close: durable deletes still pending: %v", ctx.Err())
				return
			}
			if s.syncWrite(writeJob{op: opDelete, id: id}) {
				s.deleted(id)
			}
		}
	}
}

// index and unindex are called with the session's shard lock held.
// Lock order is always session shard, then user shard.
func (s *Store) index(userID, id string) {
	us := &s.users[shardIndex(userID)]
	us.mu.Lock()
	defer us.mu.Unlock()
	set, ok := us.m[userID]
	if !ok {
		set = make(map[string]struct{})
		us.m[userID] = set
	}
	set[id] = struct{}{}
}

func (s *Store) unindex(userID, id string) {
	us := &s.users[shardIndex(userID)]
	us.mu.Lock()
	defer us.mu.Unlock()
	set := us.m[userID]
	delete(set, id)
	if len(set) == 0 {
		delete(us.m, userID)
	}
}

func (s *Store) enqueueSave(sess *domain.AdminSession) {
	if s.repo == nil {
		return
	}
	if s.writer == nil {
		s.syncWrite(writeJob{op: opSave, id: sess.ID, sess: sess})
		return
	}
	s.writer.enqueue(writeJob{op: opSave, id: sess.ID, sess: sess})
}

// syncWrite is used when the writer pool is disabled. Reports success.
func (s *Store) syncWrite(j writeJob) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := j.run(ctx, s.repo); err != nil {
		log.Printf("session store: %s %s: %v", j.op, shortID(j.id), err)
		s.metrics.PersistFailure(j.op)
		return false
	}
	return true
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
