// Package noop provides a lead store that discards everything. Useful for
// local development without a database.
package noop

import (
	"context"

	"github.com/cantikdist/edge-intake/internal/pipeline"
	"github.com/cantikdist/edge-intake/internal/store/postgres"
)

// Store discards writes and reports healthy.
type Store struct{}

// New creates a no-op Store.
func New() *Store {
	return &Store{}
}

// Insert pretends the record was written.
func (Store) Insert(_ context.Context, _ pipeline.Record) (bool, error) {
	return true, nil
}

// List returns no rows.
func (Store) List(_ context.Context, _, _ int) ([]postgres.ExportRow, error) {
	return nil, nil
}

// Ping always succeeds.
func (Store) Ping(_ context.Context) error {
	return nil
}

// Close does nothing.
func (Store) Close() {}
