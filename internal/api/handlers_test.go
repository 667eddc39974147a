package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"collabtext/internal/apperr"
	"collabtext/internal/auth"
	"collabtext/internal/bus"
	"collabtext/internal/document"
	"collabtext/internal/ot"
	"collabtext/internal/room"
	"collabtext/internal/store"
)

type stubVerifier struct {
	identities map[string]auth.Identity
}

func (s *stubVerifier) VerifyCredential(_ context.Context, token string) (auth.Identity, error) {
	id, ok := s.identities[token]
	if !ok {
		return auth.Identity{}, apperr.New(apperr.Auth, "unknown token")
	}
	return id, nil
}

func setupTestAPI(t *testing.T) *API {
	t.Helper()
	docs := store.NewMemory()
	rec := document.NewRecord("doc1", "untitled", "alice")
	rec.Content = "hello world"
	if err := docs.Create(context.Background(), rec); err != nil {
		t.Fatalf("seed document: %v", err)
	}

	engine := ot.NewEngine(docs)
	rooms := room.NewManager("server-test", docs, bus.NewMemory(), engine)
	verifier := &stubVerifier{identities: map[string]auth.Identity{
		"alice-token": {UserID: "alice", Username: "Alice"},
		"bob-token":   {UserID: "bob", Username: "Bob"},
	}}

	return New(docs, rooms, verifier)
}

func authed(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHealthHandler(t *testing.T) {
	api := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	api.HealthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
}

func TestListDocumentsRequiresAuth(t *testing.T) {
	api := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestListDocumentsReturnsOwned(t *testing.T) {
	api := setupTestAPI(t)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/documents", nil), "alice-token")
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Documents []documentSummary `json:"documents"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Documents) != 1 || resp.Documents[0].ID != "doc1" {
		t.Fatalf("expected one document doc1, got %+v", resp.Documents)
	}
}

func TestShareDocumentRejectsNonOwner(t *testing.T) {
	api := setupTestAPI(t)

	body, _ := json.Marshal(shareRequest{UserID: "bob", Role: "editor"})
	req := authed(httptest.NewRequest(http.MethodPost, "/api/documents/doc1/share", bytes.NewReader(body)), "bob-token")
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestShareDocumentGrantsRole(t *testing.T) {
	api := setupTestAPI(t)

	body, _ := json.Marshal(shareRequest{UserID: "bob", Role: "editor"})
	req := authed(httptest.NewRequest(http.MethodPost, "/api/documents/doc1/share", bytes.NewReader(body)), "alice-token")
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	rec, err := api.docs.GetByID(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if rec.Shares["bob"] != document.RoleEditor {
		t.Fatalf("expected bob to be editor, got %v", rec.Shares["bob"])
	}
}

func TestRestoreDocumentRestoresHistoricalContent(t *testing.T) {
	api := setupTestAPI(t)

	rec, err := api.docs.GetByID(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	rec.AppendHistory("alice", time.Now()) // snapshots version 1, content "hello world"
	rec.Content = "hello everyone"
	rec.Version = 2
	if err := api.docs.Save(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	body, _ := json.Marshal(restoreRequest{Version: 1})
	req := authed(httptest.NewRequest(http.MethodPost, "/api/documents/doc1/restore", bytes.NewReader(body)), "alice-token")
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	restored, err := api.docs.GetByID(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if restored.Content != "hello world" {
		t.Fatalf("expected restored content %q, got %q", "hello world", restored.Content)
	}
}
