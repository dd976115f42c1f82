// Package pipeline orchestrates the lead write path: admission, validation,
// persistence, and the notifier fallback chain.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cantikdist/edge-intake/internal/admission"
	"github.com/cantikdist/edge-intake/internal/intake"
	"github.com/cantikdist/edge-intake/internal/telemetry"
)

// Outcome is the closed result taxonomy a submission resolves to.
type Outcome string

// Submission outcomes. CriticalFailure means neither durable path
// recorded the lead and must stay distinguishable from everything else.
const (
	Accepted            Outcome = "accepted"
	AcceptedWithWarning Outcome = "accepted_with_warning"
	RateLimited         Outcome = "rate_limited"
	Invalid             Outcome = "validation_error"
	CriticalFailure     Outcome = "persistence_failed_critical"
)

// NotificationOutcome tracks what happened on the notifier leg.
type NotificationOutcome string

// Notifier outcomes per write attempt.
const (
	NotifyDelivered NotificationOutcome = "delivered"
	NotifySkipped   NotificationOutcome = "skipped"
	NotifyFailed    NotificationOutcome = "failed"
)

// ClientContext carries the client headers forwarded to collaborators.
type ClientContext struct {
	UserAgent    string
	ForwardedFor string
	RealIP       string
}

// Record is what reaches the Store and Notifier for one admitted lead.
type Record struct {
	ID             string
	IdempotencyKey string
	Lead           intake.Lead
	Client         ClientContext
	SubmittedAt    time.Time
}

// Result is the definitive answer for one submission attempt.
type Result struct {
	Outcome        Outcome
	Ref            string
	IdempotencyKey string
	RetryAfter     time.Duration
	Fields         intake.FieldErrors
	// Warning is set to "persistence_failed" when the store was down but
	// the notifier carried the lead.
	Warning      string
	Notification NotificationOutcome
}

// Store is the primary durable collaborator. Insert reports false when an
// idempotency-key conflict means the record already exists.
type Store interface {
	Insert(ctx context.Context, rec Record) (bool, error)
}

// Notifier is the fallback collaborator.
type Notifier interface {
	Notify(ctx context.Context, rec Record) error
	Provider() string
}

// IDGenerator supplies record ids and server-side idempotency keys.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Config bounds the two suspension points.
type Config struct {
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
}

// Pipeline coordinates one lead write end to end.
type Pipeline struct {
	admission admission.Controller
	validator *intake.Validator
	store     Store
	notifier  Notifier
	idGen     IDGenerator
	clock     Clock
	cfg       Config
	replays   *Registry
	logger    *zap.Logger
}

// New constructs a Pipeline. The replay registry holds results for the
// given TTL so a retried idempotency key resolves to its original answer.
func New(
	ctrl admission.Controller,
	validator *intake.Validator,
	store Store,
	notifier Notifier,
	idGen IDGenerator,
	clock Clock,
	cfg Config,
	replayTTL time.Duration,
	logger *zap.Logger,
) *Pipeline {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 8 * time.Second
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	return &Pipeline{
		admission: ctrl,
		validator: validator,
		store:     store,
		notifier:  notifier,
		idGen:     idGen,
		clock:     clock,
		cfg:       cfg,
		replays:   NewRegistry(replayTTL, clock),
		logger:    logger,
	}
}

// Replays exposes the registry so its sweep can be run alongside the
// admission sweep.
func (p *Pipeline) Replays() *Registry {
	return p.replays
}

type state int

const (
	stateAdmitting state = iota
	stateValidating
	statePersisting
	stateNotifying
	stateDone
)

// Submit runs the write state machine. Every path resolves to a definitive
// Result; collaborator errors never escape as faults.
func (p *Pipeline) Submit(ctx context.Context, raw []byte, clientKey, idemKey string, client ClientContext) Result {
	serverKey := false
	if idemKey == "" {
		if generated, err := p.idGen.NewID(); err == nil {
			idemKey = generated
			serverKey = true
		}
	}

	// A caller-supplied key that already resolved is the same logical
	// submission; hand back the original answer without re-running the
	// chain.
	if !serverKey {
		if cached, ok := p.replays.Get(idemKey); ok {
			return cached
		}
	}

	var (
		lead   intake.Lead
		rec    Record
		result Result
	)

	for st := stateAdmitting; st != stateDone; {
		switch st {
		case stateAdmitting:
			decision := p.admission.Admit(clientKey)
			if !decision.Allowed {
				telemetry.ObserveAdmissionDenied()
				result = Result{
					Outcome:        RateLimited,
					IdempotencyKey: idemKey,
					RetryAfter:     decision.RetryAfter,
				}
				st = stateDone
				break
			}
			st = stateValidating

		case stateValidating:
			var fields intake.FieldErrors
			lead, fields = p.validator.Validate(raw)
			if fields != nil {
				result = Result{Outcome: Invalid, IdempotencyKey: idemKey, Fields: fields}
				st = stateDone
				break
			}
			if lead.Trapped {
				// Silent success: no write, no notification, no tell.
				p.logger.Info("honeypot tripped", zap.String("client_key", clientKey))
				result = Result{
					Outcome:        Accepted,
					IdempotencyKey: idemKey,
					Notification:   NotifySkipped,
				}
				st = stateDone
				break
			}
			id, err := p.idGen.NewID()
			if err != nil {
				id = idemKey
			}
			rec = Record{
				ID:             id,
				IdempotencyKey: idemKey,
				Lead:           lead,
				Client:         client,
				SubmittedAt:    p.clock.Now(),
			}
			st = statePersisting

		case statePersisting:
			storeCtx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
			inserted, err := p.store.Insert(storeCtx, rec)
			cancel()
			if err != nil {
				p.logger.Warn("lead persistence failed, falling back to notifier",
					zap.String("record_id", rec.ID), zap.Error(err))
				st = stateNotifying
				break
			}
			if !inserted {
				// Durable replay guard fired: another instance already
				// recorded this key.
				result = Result{
					Outcome:        Accepted,
					Ref:            rec.ID,
					IdempotencyKey: idemKey,
					Notification:   NotifySkipped,
				}
				st = stateDone
				break
			}
			result = Result{
				Outcome:        Accepted,
				Ref:            rec.ID,
				IdempotencyKey: idemKey,
				Notification:   p.notifyBestEffort(ctx, rec),
			}
			st = stateDone

		case stateNotifying:
			notifyCtx, cancel := context.WithTimeout(ctx, p.cfg.NotifyTimeout)
			err := p.notifier.Notify(notifyCtx, rec)
			cancel()
			if err == nil {
				result = Result{
					Outcome:        AcceptedWithWarning,
					Ref:            rec.ID,
					IdempotencyKey: idemKey,
					Warning:        "persistence_failed",
					Notification:   NotifyDelivered,
				}
				st = stateDone
				break
			}
			telemetry.ObserveNotifierFailure(p.notifier.Provider())
			p.logger.Error("dual failure: lead recorded nowhere",
				zap.String("record_id", rec.ID),
				zap.String("client_key", clientKey),
				zap.Error(err))
			result = Result{
				Outcome:        CriticalFailure,
				IdempotencyKey: idemKey,
				Notification:   NotifyFailed,
			}
			st = stateDone
		}
	}

	telemetry.ObserveLeadOutcome(string(result.Outcome))
	if result.Outcome == Accepted || result.Outcome == AcceptedWithWarning {
		p.replays.Put(idemKey, result)
	}
	return result
}

// notifyBestEffort runs the post-persist notification. The durable record
// already exists, so a failure here degrades nothing for the caller.
func (p *Pipeline) notifyBestEffort(ctx context.Context, rec Record) NotificationOutcome {
	notifyCtx, cancel := context.WithTimeout(ctx, p.cfg.NotifyTimeout)
	defer cancel()
	if err := p.notifier.Notify(notifyCtx, rec); err != nil {
		telemetry.ObserveNotifierFailure(p.notifier.Provider())
		p.logger.Warn("notification failed after persist",
			zap.String("record_id", rec.ID), zap.Error(err))
		return NotifyFailed
	}
	return NotifyDelivered
}
