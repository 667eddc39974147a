// Package store defines the document store adapter interface and ships
// two implementations: a Postgres-backed adapter for production and an
// in-memory adapter for tests and single-process development.
package store

import (
	"context"

	"collabtext/internal/document"
)

// DocumentStore is the durable document collaborator the core consumes.
type DocumentStore interface {
	// GetByID loads a document record. Returns an *apperr.Error with
	// Kind apperr.NotFound if absent.
	GetByID(ctx context.Context, documentID string) (*document.Record, error)

	// Save persists content, version, and a history append atomically
	// with respect to concurrent saves to the same id. Returns an
	// *apperr.Error with Kind apperr.Transient on failure.
	Save(ctx context.Context, rec *document.Record) error

	// FindSharedOrOwned lists documents userID owns or has share access
	// to. Not on the hot edit path; used by the HTTP CRUD surface.
	FindSharedOrOwned(ctx context.Context, userID string) ([]*document.Record, error)

	// Create inserts a brand-new document record.
	Create(ctx context.Context, rec *document.Record) error
}
