package ot

import (
	"context"
	"sync"
	"time"

	"collabtext/internal/apperr"
	"collabtext/internal/logging"
	"collabtext/internal/store"
)

// docState bundles the per-document serialization lock with its
// operation buffer. The lock covers the whole of ProcessOperation: fetch,
// transform, apply, and the single durable write must be ordered with
// respect to any other writer on the same document.
type docState struct {
	mu     sync.Mutex
	buffer *Buffer
}

// Engine maintains per-document operation buffers and serializes
// ProcessOperation calls per document id.
type Engine struct {
	docs   store.DocumentStore
	mu     sync.Mutex // guards the states map itself, not per-doc mutation
	states map[string]*docState
}

// NewEngine constructs an Engine backed by docs.
func NewEngine(docs store.DocumentStore) *Engine {
	return &Engine{
		docs:   docs,
		states: make(map[string]*docState),
	}
}

func (e *Engine) stateFor(documentID string) *docState {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[documentID]
	if !ok {
		st = &docState{buffer: NewBuffer()}
		e.states[documentID] = st
	}
	return st
}

// DiscardBuffer removes the in-memory operation buffer for a document,
// called by the room manager when the local active-user set empties.
func (e *Engine) DiscardBuffer(documentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, documentID)
}

// ProcessOperation transforms op against any operations accepted since
// op.BaseVersion, applies it, bumps the version, and persists, all under
// the document's serialization lock, which also spans the single store
// write.
func (e *Engine) ProcessOperation(ctx context.Context, documentID string, op Operation, userID string) (Operation, uint64, error) {
	st := e.stateFor(documentID)

	st.mu.Lock()
	defer st.mu.Unlock()

	rec, err := e.docs.GetByID(ctx, documentID)
	if err != nil {
		return Operation{}, 0, err
	}

	if op.BaseVersion > rec.Version {
		return Operation{}, 0, apperr.New(apperr.InvalidBaseVersion, "baseVersion is ahead of current document version")
	}

	transformed := op
	if op.BaseVersion < rec.Version {
		for _, entry := range st.buffer.Since(op.BaseVersion) {
			transformed = Transform(transformed, entry.Op)
			if transformed.IsNoop() {
				break
			}
		}
	}

	if transformed.IsNoop() {
		return transformed, rec.Version, nil
	}

	// Only operations that actually mutate content get a history
	// snapshot; a transform that collapsed to noop does not.
	rec.AppendHistory(userID, time.Now())
	rec.Content = Apply(rec.Content, transformed)
	rec.Version++

	if err := e.docs.Save(ctx, rec); err != nil {
		return Operation{}, 0, err
	}

	st.buffer.Append(rec.Version, transformed)

	logging.WithComponent("ot").Debug().
		Str("document_id", documentID).
		Str("user_id", userID).
		Uint64("version", rec.Version).
		Msg("operation accepted")

	return transformed, rec.Version, nil
}
