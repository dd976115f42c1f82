package notifier

import (
	"context"

	"github.com/cantikdist/edge-intake/internal/pipeline"
)

// Noop swallows notifications. For local development only: with a noop
// store and a noop notifier every lead lands nowhere.
type Noop struct{}

// NewNoop creates a Noop notifier.
func NewNoop() *Noop {
	return &Noop{}
}

// Notify does nothing.
func (Noop) Notify(_ context.Context, _ pipeline.Record) error {
	return nil
}

// Provider names the transport for metrics and logs.
func (Noop) Provider() string {
	return "noop"
}
