package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cantikdist/edge-intake/internal/admission"
	"github.com/cantikdist/edge-intake/internal/intake"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeStore struct {
	err      error
	conflict bool
	calls    int
	last     Record
}

func (s *fakeStore) Insert(_ context.Context, rec Record) (bool, error) {
	s.calls++
	s.last = rec
	if s.err != nil {
		return false, s.err
	}
	return !s.conflict, nil
}

type fakeNotifier struct {
	err   error
	calls int
}

func (n *fakeNotifier) Notify(_ context.Context, _ Record) error {
	n.calls++
	return n.err
}

func (n *fakeNotifier) Provider() string { return "fake" }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

func validBody() []byte {
	return []byte(`{
		"businessName": "Salon Melati",
		"contactName": "Rina S",
		"phone": "081234567890",
		"city": "Surabaya",
		"category": "salon",
		"consent": true
	}`)
}

func newTestPipeline(t *testing.T, store Store, notify Notifier, limit int) *Pipeline {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	ctrl := admission.NewMemory(admission.Config{Window: time.Hour, Limit: limit}, clock)
	return New(
		ctrl,
		intake.NewValidator("62"),
		store,
		notify,
		&seqIDs{},
		clock,
		Config{StoreTimeout: time.Second, NotifyTimeout: time.Second},
		time.Hour,
		zap.NewNop(),
	)
}

func TestSubmitHappyPath(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	notify := &fakeNotifier{}
	p := newTestPipeline(t, store, notify, 5)

	res := p.Submit(context.Background(), validBody(), "1.2.3.4", "", ClientContext{UserAgent: "ua"})

	require.Equal(t, Accepted, res.Outcome)
	require.NotEmpty(t, res.Ref)
	require.NotEmpty(t, res.IdempotencyKey)
	require.Equal(t, NotifyDelivered, res.Notification)
	require.Equal(t, 1, store.calls)
	require.Equal(t, 1, notify.calls)
	require.Equal(t, "6281234567890", store.last.Lead.NormalizedPhone)
	require.True(t, store.last.Lead.Consent)
}

func TestSubmitRateLimited(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	p := newTestPipeline(t, store, &fakeNotifier{}, 1)

	first := p.Submit(context.Background(), validBody(), "9.9.9.9", "", ClientContext{})
	require.Equal(t, Accepted, first.Outcome)

	second := p.Submit(context.Background(), validBody(), "9.9.9.9", "", ClientContext{})
	require.Equal(t, RateLimited, second.Outcome)
	require.Greater(t, second.RetryAfter, time.Duration(0))
	require.Equal(t, 1, store.calls)
}

func TestSubmitValidationFailureNeverPersists(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	notify := &fakeNotifier{}
	p := newTestPipeline(t, store, notify, 5)

	body := []byte(`{
		"businessName": "Salon Melati",
		"contactName": "Rina S",
		"phone": "081234567890",
		"city": "Surabaya",
		"category": "salon",
		"consent": false
	}`)
	res := p.Submit(context.Background(), body, "1.2.3.4", "", ClientContext{})

	require.Equal(t, Invalid, res.Outcome)
	require.Contains(t, res.Fields, "consent")
	require.Zero(t, store.calls)
	require.Zero(t, notify.calls)
}

func TestSubmitHoneypotSilentSuccess(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	notify := &fakeNotifier{}
	p := newTestPipeline(t, store, notify, 5)

	body := []byte(`{
		"businessName": "Salon Melati",
		"contactName": "Rina S",
		"phone": "081234567890",
		"city": "Surabaya",
		"category": "salon",
		"consent": true,
		"website": "http://bot.example"
	}`)
	res := p.Submit(context.Background(), body, "1.2.3.4", "", ClientContext{})

	require.Equal(t, Accepted, res.Outcome)
	require.Equal(t, NotifySkipped, res.Notification)
	require.Zero(t, store.calls)
	require.Zero(t, notify.calls)
}

func TestSubmitStoreFailureFallsBackToNotifier(t *testing.T) {
	t.Parallel()

	store := &fakeStore{err: errors.New("connection refused")}
	notify := &fakeNotifier{}
	p := newTestPipeline(t, store, notify, 5)

	res := p.Submit(context.Background(), validBody(), "1.2.3.4", "", ClientContext{})

	require.Equal(t, AcceptedWithWarning, res.Outcome)
	require.Equal(t, "persistence_failed", res.Warning)
	require.Equal(t, NotifyDelivered, res.Notification)
	require.Equal(t, 1, notify.calls)
}

func TestSubmitDualFailureIsCritical(t *testing.T) {
	t.Parallel()

	store := &fakeStore{err: errors.New("connection refused")}
	notify := &fakeNotifier{err: errors.New("timeout")}
	p := newTestPipeline(t, store, notify, 5)

	res := p.Submit(context.Background(), validBody(), "1.2.3.4", "", ClientContext{})

	require.Equal(t, CriticalFailure, res.Outcome)
	require.Equal(t, NotifyFailed, res.Notification)
}

func TestSubmitNotifyFailureAfterPersistStillAccepted(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	notify := &fakeNotifier{err: errors.New("timeout")}
	p := newTestPipeline(t, store, notify, 5)

	res := p.Submit(context.Background(), validBody(), "1.2.3.4", "", ClientContext{})

	require.Equal(t, Accepted, res.Outcome)
	require.Empty(t, res.Warning)
	require.Equal(t, NotifyFailed, res.Notification)
}

// TestSubmitReplaySameKey retries a caller-supplied idempotency key and
// requires the original answer back with no second write and no second
// admission charge.
func TestSubmitReplaySameKey(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	p := newTestPipeline(t, store, &fakeNotifier{}, 1)

	first := p.Submit(context.Background(), validBody(), "1.2.3.4", "retry-key", ClientContext{})
	require.Equal(t, Accepted, first.Outcome)

	second := p.Submit(context.Background(), validBody(), "1.2.3.4", "retry-key", ClientContext{})
	require.Equal(t, first, second)
	require.Equal(t, 1, store.calls)
}

func TestSubmitStoreConflictSkipsNotification(t *testing.T) {
	t.Parallel()

	store := &fakeStore{conflict: true}
	notify := &fakeNotifier{}
	p := newTestPipeline(t, store, notify, 5)

	res := p.Submit(context.Background(), validBody(), "1.2.3.4", "", ClientContext{})

	require.Equal(t, Accepted, res.Outcome)
	require.Equal(t, NotifySkipped, res.Notification)
	require.Zero(t, notify.calls)
}
