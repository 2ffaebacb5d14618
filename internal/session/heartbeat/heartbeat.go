// Package heartbeat runs one recurring task per live session that prunes
// expired or invalidated sessions and flushes activity to the durable port.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"exam-practice/backend/internal/session/domain"
	"exam-practice/backend/internal/telemetry"
)

// Sessions is the part of the session store a heartbeat needs. Tasks hold
// only a session id and always re-read the session through Peek.
type Sessions interface {
	Peek(id string) *domain.AdminSession
	Remove(ctx context.Context, id string)
	Persist(id string) bool
}

// Ticker is the subset of *time.Ticker a task uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// ExpiredFunc is called once when a tick removes a session because it passed ExpiresAt.
type ExpiredFunc func(ctx context.Context, s *domain.AdminSession)

type task struct {
	cancel context.CancelFunc
}

// Scheduler owns the heartbeat tasks, keyed by session id.
type Scheduler struct {
	sessions  Sessions
	interval  time.Duration
	newTicker TickerFunc
	nowF      func() time.Time
	onExpired ExpiredFunc
	metrics   *telemetry.Metrics

	mu      sync.Mutex
	tasks   map[string]*task
	stopped bool
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithTicker(f TickerFunc) Option         { return func(s *Scheduler) { s.newTicker = f } }
func WithClock(nowF func() time.Time) Option { return func(s *Scheduler) { s.nowF = nowF } }
func WithOnExpired(f ExpiredFunc) Option     { return func(s *Scheduler) { s.onExpired = f } }
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler returns a Scheduler ticking every interval.
func NewScheduler(sessions Sessions, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		sessions:  sessions,
		interval:  interval,
		newTicker: NewRealTicker,
		nowF:      time.Now,
		tasks:     make(map[string]*task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule starts the task for id. Scheduling an already active id is a no-op.
func (s *Scheduler) Schedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, ok := s.tasks[id]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel}
	s.tasks[id] = t
	ticker := s.newTicker(s.interval)
	s.wg.Add(1)
	go s.run(ctx, id, t, ticker)
}

func (s *Scheduler) run(ctx context.Context, id string, t *task, ticker Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()
	defer s.release(id, t)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if !s.Tick(ctx, id) {
				return
			}
		}
	}
}

// release drops t from the task map if it is still the task registered for id.
func (s *Scheduler) release(id string, t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.tasks[id]; ok && cur == t {
		delete(s.tasks, id)
	}
	t.cancel()
}

// Tick runs one heartbeat for id and reports whether the task should keep running.
// A missing, invalidated or expired session is removed (memory and durable) and
// the task stops; a live session has its activity flushed to the durable port.
func (s *Scheduler) Tick(ctx context.Context, id string) bool {
	sess := s.sessions.Peek(id)
	switch {
	case sess == nil:
		s.sessions.Remove(ctx, id)
		return false
	case !sess.IsValid:
		s.sessions.Remove(ctx, id)
		s.metrics.HeartbeatEviction()
		return false
	case s.nowF().After(sess.ExpiresAt):
		s.sessions.Remove(ctx, id)
		s.metrics.HeartbeatEviction()
		if s.onExpired != nil {
			s.onExpired(ctx, sess)
		}
		return false
	}
	s.sessions.Persist(id)
	return true
}

// Cancel stops the task for id. Cancelling an unknown or already cancelled id is a no-op.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	if ok {
		t.cancel()
	}
}

// Active reports whether a task is running for id.
func (s *Scheduler) Active(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	return ok
}

// Len returns the number of running tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every task, refuses new ones, and waits for running tasks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	tasks := s.tasks
	s.tasks = make(map[string]*task)
	s.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
	}
	s.wg.Wait()
}
