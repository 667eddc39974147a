package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

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

func newTestServer(t *testing.T) (*httptest.Server, *room.Manager) {
	t.Helper()
	docs := store.NewMemory()
	rec := document.NewRecord("doc1", "untitled", "alice")
	rec.Content = "hello"
	require.NoError(t, docs.Create(context.Background(), rec))

	engine := ot.NewEngine(docs)
	manager := room.NewManager("server-test", docs, bus.NewMemory(), engine)
	verifier := &stubVerifier{identities: map[string]auth.Identity{
		"alice-token": {UserID: "alice", Username: "Alice"},
	}}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(manager, verifier, w, r)
	})
	srv := httptest.NewServer(mux)
	return srv, manager
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHandshakeRejectsUnknownToken(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	if resp != nil {
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestJoinDocumentReceivesDocumentState(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	conn := dial(t, srv, "alice-token")
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{
		"event":      "join_document",
		"documentId": "doc1",
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "document_state", msg["event"])
	require.Equal(t, "hello", msg["content"])
}
