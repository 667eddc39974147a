package store

import (
	"context"
	"sync"

	"collabtext/internal/apperr"
	"collabtext/internal/document"
)

// Memory is an in-process DocumentStore for tests and single-node
// development without a Postgres instance.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]*document.Record
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]*document.Record)}
}

func (m *Memory) Create(_ context.Context, rec *document.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.docs[rec.ID]; exists {
		return apperr.New(apperr.Conflict, "document already exists")
	}
	m.docs[rec.ID] = rec.Clone()
	return nil
}

func (m *Memory) GetByID(_ context.Context, documentID string) (*document.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.docs[documentID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "document not found")
	}
	return rec.Clone(), nil
}

func (m *Memory) Save(_ context.Context, rec *document.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[rec.ID]; !ok {
		return apperr.New(apperr.NotFound, "document not found")
	}
	m.docs[rec.ID] = rec.Clone()
	return nil
}

func (m *Memory) FindSharedOrOwned(_ context.Context, userID string) ([]*document.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*document.Record
	for _, rec := range m.docs {
		if rec.Owner == userID {
			out = append(out, rec.Clone())
			continue
		}
		if _, ok := rec.Shares[userID]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

var _ DocumentStore = (*Memory)(nil)
