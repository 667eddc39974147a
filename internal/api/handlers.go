// Package api implements the HTTP surface around the realtime core:
// health, stats, document listing, sharing, and version restore.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"collabtext/internal/apperr"
	"collabtext/internal/auth"
	"collabtext/internal/document"
	"collabtext/internal/logging"
	"collabtext/internal/permission"
	"collabtext/internal/room"
	"collabtext/internal/store"
)

// API bundles the collaborators the HTTP surface needs.
type API struct {
	docs     store.DocumentStore
	rooms    *room.Manager
	verifier auth.Verifier
}

func New(docs store.DocumentStore, rooms *room.Manager, verifier auth.Verifier) *API {
	return &API{docs: docs, rooms: rooms, verifier: verifier}
}

// Router builds the mux.Router exposing every handler.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", a.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", a.StatsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/documents", a.withAuth(a.ListDocumentsHandler)).Methods(http.MethodGet)
	r.HandleFunc("/api/documents/{id}/share", a.withAuth(a.ShareDocumentHandler)).Methods(http.MethodPost)
	r.HandleFunc("/api/documents/{id}/restore", a.withAuth(a.RestoreDocumentHandler)).Methods(http.MethodPost)
	return r
}

type identityKey struct{}

// withAuth resolves the Authorization: Bearer <token> header to an
// Identity before delegating, rejecting the request otherwise.
func (a *API) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		identity, err := a.verifier.VerifyCredential(r.Context(), token)
		if err != nil {
			errorResponse(w, http.StatusUnauthorized, "invalid or missing credential")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, identity)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func identityFrom(r *http.Request) auth.Identity {
	id, _ := r.Context().Value(identityKey{}).(auth.Identity)
	return id
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.WithComponent("api").Error().Err(err).Msg("encode response")
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// statusForKind maps an apperr.Kind to its HTTP status.
func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.InvalidOperation, apperr.InvalidBaseVersion:
		return http.StatusBadRequest
	case apperr.Auth:
		return http.StatusUnauthorized
	case apperr.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, sessions := a.rooms.Stats()
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"activeRooms":    rooms,
		"activeSessions": sessions,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

type documentSummary struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Owner   string `json:"owner"`
	Version uint64 `json:"version"`
	Role    string `json:"role"`
}

// ListDocumentsHandler lists documents the caller owns or has share
// access to.
func (a *API) ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	recs, err := a.docs.FindSharedOrOwned(r.Context(), identity.UserID)
	if err != nil {
		errorResponse(w, statusForKind(apperr.KindOf(err)), err.Error())
		return
	}

	out := make([]documentSummary, 0, len(recs))
	for _, rec := range recs {
		role := permission.Resolve(rec, identity.UserID)
		out = append(out, documentSummary{
			ID: rec.ID, Title: rec.Title, Owner: rec.Owner, Version: rec.Version, Role: string(role),
		})
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"documents": out})
}

type shareRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// ShareDocumentHandler grants a share-table role, requiring owner access.
func (a *API) ShareDocumentHandler(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	documentID := mux.Vars(r)["id"]

	rec, _, err := permission.GetDocumentWithAccess(r.Context(), a.docs, documentID, identity.UserID, permission.RequireOwner)
	if err != nil {
		errorResponse(w, statusForKind(apperr.KindOf(err)), err.Error())
		return
	}

	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role := document.Role(req.Role)
	switch role {
	case document.RoleEditor, document.RoleCommenter, document.RoleViewer:
	default:
		errorResponse(w, http.StatusBadRequest, "role must be editor, commenter, or viewer")
		return
	}
	if req.UserID == "" {
		errorResponse(w, http.StatusBadRequest, "userId is required")
		return
	}

	rec.Shares[req.UserID] = role
	if err := a.docs.Save(r.Context(), rec); err != nil {
		errorResponse(w, statusForKind(apperr.KindOf(err)), err.Error())
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "shared"})
}

type restoreRequest struct {
	Version uint64 `json:"version"`
}

// RestoreDocumentHandler rolls content back to a prior history snapshot,
// requiring owner access. A bulk content replacement isn't expressible
// as a single OT operation, so connected clients pick up the restored
// content on their next join rather than via remote_operation.
func (a *API) RestoreDocumentHandler(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	documentID := mux.Vars(r)["id"]

	rec, _, err := permission.GetDocumentWithAccess(r.Context(), a.docs, documentID, identity.UserID, permission.RequireOwner)
	if err != nil {
		errorResponse(w, statusForKind(apperr.KindOf(err)), err.Error())
		return
	}

	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var target *document.VersionEntry
	for i := range rec.History {
		if rec.History[i].Version == req.Version {
			target = &rec.History[i]
			break
		}
	}
	if target == nil {
		errorResponse(w, http.StatusNotFound, "version not found in history")
		return
	}

	rec.AppendHistory(identity.UserID, time.Now())
	rec.Content = target.Content
	rec.Version++

	if err := a.docs.Save(r.Context(), rec); err != nil {
		errorResponse(w, statusForKind(apperr.KindOf(err)), err.Error())
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"message": "restored", "version": rec.Version, "content": rec.Content,
	})
}
