package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryGetMissing(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(time.Hour, &fakeClock{now: time.Unix(1700000000, 0)})
	_, ok := reg.Get("nope")
	require.False(t, ok)
}

func TestRegistryRoundTrip(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(time.Hour, &fakeClock{now: time.Unix(1700000000, 0)})
	want := Result{Outcome: Accepted, Ref: "id-1", IdempotencyKey: "k"}
	reg.Put("k", want)

	got, ok := reg.Get("k")
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestRegistryExpiry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	reg := NewRegistry(time.Hour, clock)
	reg.Put("k", Result{Outcome: Accepted})

	clock.now = clock.now.Add(2 * time.Hour)
	_, ok := reg.Get("k")
	require.False(t, ok)

	reg.sweep()
	reg.mu.Lock()
	defer reg.mu.Unlock()
	require.Empty(t, reg.entries)
}
