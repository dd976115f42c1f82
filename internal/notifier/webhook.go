// Package notifier implements the fallback delivery transports for lead
// records: an HTTP webhook, Cloud Pub/Sub, and a no-op for local work.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cantikdist/edge-intake/internal/pipeline"
)

// Webhook posts lead records to an operator-facing endpoint.
type Webhook struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhook creates a Webhook notifier with a bounded client timeout.
func NewWebhook(url, token string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	ID             string `json:"id"`
	IdempotencyKey string `json:"idempotencyKey"`
	BusinessName   string `json:"businessName"`
	ContactName    string `json:"contactName"`
	Phone          string `json:"phone"`
	City           string `json:"city"`
	Category       string `json:"category"`
	Email          string `json:"email,omitempty"`
	Message        string `json:"message,omitempty"`
	InitialPageURL string `json:"initialPageUrl,omitempty"`
	CurrentPageURL string `json:"currentPageUrl,omitempty"`
	UserAgent      string `json:"userAgent,omitempty"`
	ForwardedFor   string `json:"forwardedFor,omitempty"`
	RealIP         string `json:"realIp,omitempty"`
	SubmittedAt    string `json:"submittedAt"`
}

// Notify delivers one record; any non-2xx response is an error.
func (w *Webhook) Notify(ctx context.Context, rec pipeline.Record) error {
	body, err := json.Marshal(webhookPayload{
		ID:             rec.ID,
		IdempotencyKey: rec.IdempotencyKey,
		BusinessName:   rec.Lead.BusinessName,
		ContactName:    rec.Lead.ContactName,
		Phone:          rec.Lead.NormalizedPhone,
		City:           rec.Lead.City,
		Category:       rec.Lead.Category,
		Email:          rec.Lead.Email,
		Message:        rec.Lead.Message,
		InitialPageURL: rec.Lead.InitialPageURL,
		CurrentPageURL: rec.Lead.CurrentPageURL,
		UserAgent:      rec.Client.UserAgent,
		ForwardedFor:   rec.Client.ForwardedFor,
		RealIP:         rec.Client.RealIP,
		SubmittedAt:    rec.SubmittedAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// Provider names the transport for metrics and logs.
func (*Webhook) Provider() string {
	return "webhook"
}
