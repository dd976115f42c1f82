package admission

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAdmitEnforcesLimitWithinWindow(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	ctrl := NewMemory(Config{Window: time.Hour, Limit: 5}, clock)

	for i := 0; i < 5; i++ {
		if d := ctrl.Admit("1.2.3.4"); !d.Allowed {
			t.Fatalf("attempt %d should be admitted", i+1)
		}
	}
	d := ctrl.Admit("1.2.3.4")
	if d.Allowed {
		t.Fatal("6th attempt within window should be denied")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("denied decision should carry RetryAfter, got %v", d.RetryAfter)
	}
}

func TestAdmitKeysAreIndependent(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	ctrl := NewMemory(Config{Window: time.Hour, Limit: 1}, clock)

	if d := ctrl.Admit("a"); !d.Allowed {
		t.Fatal("first attempt from a should be admitted")
	}
	if d := ctrl.Admit("b"); !d.Allowed {
		t.Fatal("first attempt from b should be admitted")
	}
	if d := ctrl.Admit("a"); d.Allowed {
		t.Fatal("second attempt from a should be denied")
	}
}

func TestAdmitResetsAfterWindowExpiry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	ctrl := NewMemory(Config{Window: time.Hour, Limit: 2}, clock)

	ctrl.Admit("k")
	ctrl.Admit("k")
	if d := ctrl.Admit("k"); d.Allowed {
		t.Fatal("third attempt should be denied")
	}

	clock.Advance(time.Hour + time.Second)
	if d := ctrl.Admit("k"); !d.Allowed {
		t.Fatal("attempt after window expiry should be admitted")
	}
}

// TestAdmitConcurrentSameKey drives many goroutines at one key and checks
// the admitted count never overshoots the ceiling.
func TestAdmitConcurrentSameKey(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	const limit = 5
	ctrl := NewMemory(Config{Window: time.Hour, Limit: limit}, clock)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ctrl.Admit("burst").Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != limit {
		t.Fatalf("admitted = %d, want exactly %d", admitted, limit)
	}
}

func TestSweepRemovesExpiredRecords(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	ctrl := NewMemory(Config{Window: time.Hour, Limit: 5}, clock)

	ctrl.Admit("old")
	clock.Advance(2 * time.Hour)
	ctrl.Admit("fresh")

	ctrl.sweep()
	if got := ctrl.Len(); got != 1 {
		t.Fatalf("records after sweep = %d, want 1", got)
	}
}
