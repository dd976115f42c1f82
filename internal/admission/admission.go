// Package admission enforces a per-client write-rate ceiling using a
// fixed-window counter. The memory-backed controller bounds abuse per
// process; a shared-store implementation can satisfy the same interface
// for multi-instance deployments.
package admission

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time so windows are testable.
type Clock interface {
	Now() time.Time
}

// Decision is the outcome of one admission check. Denial is a value,
// never an error.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Controller decides whether a write attempt from a client key is admitted.
type Controller interface {
	Admit(key string) Decision
}

// Config holds the window size and per-window ceiling.
type Config struct {
	Window time.Duration
	Limit  int
}

type record struct {
	count     int
	expiresAt time.Time
}

// Memory is an in-process fixed-window Controller. Construct it once per
// process and share it across handlers; a fresh instance per request
// always admits.
type Memory struct {
	mu      sync.Mutex
	records map[string]*record
	window  time.Duration
	limit   int
	clock   Clock
}

// NewMemory creates a Memory controller.
func NewMemory(cfg Config, clock Clock) *Memory {
	window := cfg.Window
	if window <= 0 {
		window = time.Hour
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 5
	}
	return &Memory{
		records: make(map[string]*record),
		window:  window,
		limit:   limit,
		clock:   clock,
	}
}

// Admit performs the read-check-increment under one lock so two concurrent
// requests from the same key can never both slip under the ceiling.
func (m *Memory) Admit(key string) Decision {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok || now.After(rec.expiresAt) {
		m.records[key] = &record{count: 1, expiresAt: now.Add(m.window)}
		return Decision{Allowed: true, Remaining: m.limit - 1}
	}
	if rec.count < m.limit {
		rec.count++
		return Decision{Allowed: true, Remaining: m.limit - rec.count}
	}
	return Decision{Allowed: false, RetryAfter: rec.expiresAt.Sub(now)}
}

// Run sweeps expired records on a cadence equal to the window size until
// the context finishes. Bounds memory; admission correctness does not
// depend on it.
func (m *Memory) Run(ctx context.Context) {
	ticker := time.NewTicker(m.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Memory) sweep() {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, rec := range m.records {
		if now.After(rec.expiresAt) {
			delete(m.records, key)
		}
	}
}

// Len reports how many keys currently hold a record.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
