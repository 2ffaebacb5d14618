package store

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"exam-practice/backend/internal/session/domain"
	"exam-practice/backend/internal/session/repository"
	"exam-practice/backend/internal/telemetry"
)

const (
	opSave   = "save"
	opDelete = "delete"
)

type writeJob struct {
	op   string
	id   string
	sess *domain.AdminSession
	// done, if set, runs after the write succeeds.
	done func(id string)
}

func (j writeJob) run(ctx context.Context, repo repository.Repository) error {
	if j.op == opDelete {
		return repo.Delete(ctx, j.id)
	}
	return repo.Save(ctx, j.sess)
}

// writerPool applies durable writes off the request path. A session id always
// maps to the same worker, so writes for one session are applied in order.
type writerPool struct {
	workers   int
	queueSize int

	mu      sync.RWMutex
	closed  bool
	queues  []chan writeJob
	g       errgroup.Group
	done    chan struct{}
	metrics *telemetry.Metrics
}

func (p *writerPool) start(repo repository.Repository, timeout time.Duration, metrics *telemetry.Metrics) {
	p.metrics = metrics
	p.queues = make([]chan writeJob, p.workers)
	p.done = make(chan struct{})
	for i := range p.queues {
		q := make(chan writeJob, p.queueSize)
		p.queues[i] = q
		p.g.Go(func() error {
			for j := range q {
				ctx, cancel := context.WithTimeout(context.Background(), timeout)
				if err := j.run(ctx, repo); err != nil {
					log.Printf("session store: %s %s: %v", j.op, shortID(j.id), err)
					metrics.PersistFailure(j.op)
				} else if j.done != nil {
					j.done(j.id)
				}
				cancel()
			}
			return nil
		})
	}
	go func() {
		_ = p.g.Wait()
		close(p.done)
	}()
}

// enqueue never blocks. A full queue drops the write.
func (p *writerPool) enqueue(j writeJob) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || p.queues == nil {
		return
	}
	q := p.queues[xxhash.Sum64String(j.id)%uint64(len(p.queues))]
	select {
	case q <- j:
	default:
		log.Printf("session store: write queue full, dropping %s %s", j.op, shortID(j.id))
		p.metrics.PersistFailure("queue_full")
	}
}

func (p *writerPool) close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed || p.queues == nil {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
