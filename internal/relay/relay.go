// Package relay forwards analytics events to a downstream collector on a
// best-effort basis. Nothing here may surface an error to the caller.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cantikdist/edge-intake/internal/telemetry"
)

// Config controls the upstream leg of the relay.
type Config struct {
	CollectorURL string
	Timeout      time.Duration
	MaxEventsRPS float64
	Burst        int
}

// ClientContext carries the visitor headers passed along to the collector.
type ClientContext struct {
	UserAgent    string
	ForwardedFor string
	RealIP       string
}

// Forwarder relays event payloads. Over-rate events are dropped, never
// queued, so the relay cannot build backpressure into request handling.
type Forwarder struct {
	collectorURL string
	client       *http.Client
	limiter      *rate.Limiter
	logger       *zap.Logger
}

// New creates a Forwarder. An empty collector URL yields a forwarder that
// accepts and discards everything.
func New(cfg Config, logger *zap.Logger) *Forwarder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	limit := rate.Limit(cfg.MaxEventsRPS)
	if cfg.MaxEventsRPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Forwarder{
		collectorURL: cfg.CollectorURL,
		client:       &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(limit, burst),
		logger:       logger,
	}
}

// Forward relays one payload. It never fails from the caller's
// perspective: unconfigured collector, empty or non-JSON bodies, rate
// caps, and upstream errors all resolve silently.
func (f *Forwarder) Forward(ctx context.Context, body []byte, client ClientContext) {
	if f.collectorURL == "" {
		return
	}
	if len(body) == 0 || !json.Valid(body) {
		telemetry.ObserveRelayDropped("invalid_payload")
		return
	}
	if !f.limiter.Allow() {
		telemetry.ObserveRelayDropped("rate_capped")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.collectorURL, bytes.NewReader(body))
	if err != nil {
		telemetry.ObserveRelayDropped("request_build")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if client.UserAgent != "" {
		req.Header.Set("User-Agent", client.UserAgent)
	}
	if client.ForwardedFor != "" {
		req.Header.Set("X-Forwarded-For", client.ForwardedFor)
	}
	if client.RealIP != "" {
		req.Header.Set("X-Real-IP", client.RealIP)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		telemetry.ObserveRelayDropped("upstream_error")
		f.logger.Debug("relay upstream call failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		telemetry.ObserveRelayDropped("upstream_status")
		f.logger.Debug("relay upstream rejected event", zap.Int("status", resp.StatusCode))
	}
}
