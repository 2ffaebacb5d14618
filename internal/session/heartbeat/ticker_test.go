package heartbeat

import (
	"sync"
	"time"
)

// manualTicker fires only when the test calls Fire.
type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func (m *manualTicker) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Fire delivers one tick and blocks until the task has taken it.
func (m *manualTicker) Fire() {
	m.ch <- time.Now()
}

type manualClock struct {
	mu      sync.Mutex
	tickers map[int]*manualTicker
	n       int
}

func newManualClock() *manualClock {
	return &manualClock{tickers: make(map[int]*manualTicker)}
}

func (c *manualClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{ch: make(chan time.Time)}
	c.tickers[c.n] = t
	c.n++
	return t
}

func (c *manualClock) ticker(i int) *manualTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickers[i]
}
