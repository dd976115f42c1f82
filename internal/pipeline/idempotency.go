package pipeline

import (
	"context"
	"sync"
	"time"
)

type replayEntry struct {
	result    Result
	expiresAt time.Time
}

// Registry remembers resolved results per idempotency key so a retried
// submission is recognized as the same logical write. In-process only; the
// store's unique key is the durable backstop across instances.
type Registry struct {
	mu      sync.Mutex
	entries map[string]replayEntry
	ttl     time.Duration
	clock   Clock
}

// NewRegistry creates a Registry whose entries live for ttl.
func NewRegistry(ttl time.Duration, clock Clock) *Registry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Registry{
		entries: make(map[string]replayEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the recorded result for key, if present and fresh.
func (r *Registry) Get(key string) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	if !ok || r.clock.Now().After(entry.expiresAt) {
		return Result{}, false
	}
	return entry.result, true
}

// Put records the result for key.
func (r *Registry) Put(key string, result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = replayEntry{result: result, expiresAt: r.clock.Now().Add(r.ttl)}
}

// Run sweeps expired entries on a cadence equal to the TTL until the
// context finishes.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.entries {
		if now.After(entry.expiresAt) {
			delete(r.entries, key)
		}
	}
}
