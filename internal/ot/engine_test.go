package ot

import (
	"context"
	"testing"

	"collabtext/internal/apperr"
	"collabtext/internal/document"
	"collabtext/internal/store"
)

func newTestEngine(t *testing.T, content string) (*Engine, string) {
	t.Helper()
	mem := store.NewMemory()
	rec := document.NewRecord("doc-1", "Untitled", "owner-1")
	rec.Content = content
	if err := mem.Create(context.Background(), rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	return NewEngine(mem), "doc-1"
}

func TestProcessOperationBumpsVersion(t *testing.T) {
	eng, docID := newTestEngine(t, "AC")
	ctx := context.Background()

	op, version, err := eng.ProcessOperation(ctx, docID, NewInsert(1, "B", 1), "u1")
	if err != nil {
		t.Fatalf("ProcessOperation: %v", err)
	}
	if version != 2 {
		t.Fatalf("version = %d, want 2", version)
	}
	if op.Position != 1 {
		t.Fatalf("op.Position = %d, want 1", op.Position)
	}
}

// TestProcessOperationConcurrentInserts runs two same-base inserts end to
// end through the engine, including the buffer fold for the second,
// now-stale client.
func TestProcessOperationConcurrentInserts(t *testing.T) {
	eng, docID := newTestEngine(t, "AC")
	ctx := context.Background()

	if _, v1, err := eng.ProcessOperation(ctx, docID, NewInsert(1, "B", 1), "u1"); err != nil || v1 != 2 {
		t.Fatalf("u1: version=%d err=%v", v1, err)
	}

	op2, v2, err := eng.ProcessOperation(ctx, docID, NewInsert(1, "X", 1), "u2")
	if err != nil {
		t.Fatalf("u2: %v", err)
	}
	if v2 != 3 {
		t.Fatalf("v2 = %d, want 3", v2)
	}
	if op2.Position != 2 {
		t.Fatalf("op2.Position = %d, want 2", op2.Position)
	}
}

func TestProcessOperationRejectsFutureBaseVersion(t *testing.T) {
	eng, docID := newTestEngine(t, "AC")
	ctx := context.Background()

	_, _, err := eng.ProcessOperation(ctx, docID, NewInsert(0, "Z", 99), "u1")
	if !apperr.Is(err, apperr.InvalidBaseVersion) {
		t.Fatalf("err = %v, want InvalidBaseVersion", err)
	}
}

func TestProcessOperationNoopDoesNotWriteHistory(t *testing.T) {
	eng, docID := newTestEngine(t, "ABCDE")
	ctx := context.Background()

	if _, _, err := eng.ProcessOperation(ctx, docID, NewDelete(1, 3, 1), "u1"); err != nil {
		t.Fatalf("u1: %v", err)
	}

	op, version, err := eng.ProcessOperation(ctx, docID, NewDelete(2, 2, 1), "u2")
	if err != nil {
		t.Fatalf("u2: %v", err)
	}
	if !op.IsNoop() {
		t.Fatalf("op = %+v, want noop", op)
	}
	if version != 2 {
		t.Fatalf("version = %d, want 2 (unchanged)", version)
	}

	mem := eng.docs.(*store.Memory)
	rec, err := mem.GetByID(ctx, docID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(rec.History) != 1 {
		t.Fatalf("len(history) = %d, want 1 (noop must not append)", len(rec.History))
	}
}

func TestDiscardBufferResetsState(t *testing.T) {
	eng, docID := newTestEngine(t, "AC")
	ctx := context.Background()

	if _, _, err := eng.ProcessOperation(ctx, docID, NewInsert(1, "B", 1), "u1"); err != nil {
		t.Fatalf("ProcessOperation: %v", err)
	}
	if eng.stateFor(docID).buffer.Len() != 1 {
		t.Fatalf("expected buffer to have 1 entry before discard")
	}

	eng.DiscardBuffer(docID)

	if eng.stateFor(docID).buffer.Len() != 0 {
		t.Fatalf("expected fresh buffer after discard")
	}
}
