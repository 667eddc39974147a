// Package session implements the per-connection session layer:
// websocket lifecycle, handshake authentication, inbound event dispatch,
// and outbound event delivery.
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"collabtext/internal/apperr"
	"collabtext/internal/auth"
	"collabtext/internal/logging"
	"collabtext/internal/protocol"
	"collabtext/internal/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RestrictOrigin limits websocket upgrades to requests whose Origin
// header matches origin exactly. An empty or wildcard origin keeps the
// permissive default. Called once at startup, before any upgrade.
func RestrictOrigin(origin string) {
	if origin == "" || origin == "*" {
		return
	}
	upgrader.CheckOrigin = func(r *http.Request) bool {
		return r.Header.Get("Origin") == origin
	}
}

// Client is one logical session: a connected, authenticated user, its
// current document (if any), and the outbound send channel that
// serializes writes to the underlying connection.
type Client struct {
	conn     *websocket.Conn
	rooms    *room.Manager
	identity auth.Identity

	// send is never closed: the Room Manager may hold a snapshot of the
	// room taken just before this session left and call Send concurrently
	// with teardown. done signals writePump to exit instead.
	send chan []byte
	done chan struct{}

	documentID string
}

// ServeWs upgrades the HTTP connection, authenticates the handshake via
// verifier, and starts the read/write pumps. Rejected connections are
// closed before any room operation.
func ServeWs(rooms *room.Manager, verifier auth.Verifier, w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if cookie, err := r.Cookie("token"); err == nil {
			token = cookie.Value
		}
	}

	identity, err := verifier.VerifyCredential(r.Context(), token)
	if err != nil {
		logging.WithComponent("session").Warn().Err(err).Msg("handshake rejected")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.WithComponent("session").Warn().Err(err).Msg("upgrade failed")
		return
	}

	c := &Client{
		conn:     conn,
		rooms:    rooms,
		identity: identity,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}

	go c.writePump()
	go c.readPump()
}

// UserID and Username satisfy room.Emitter.
func (c *Client) UserID() string   { return c.identity.UserID }
func (c *Client) Username() string { return c.identity.Username }

// Send satisfies room.Emitter: enqueue data for the write pump, dropping
// it if the client is too far behind to keep the buffer from growing
// unbounded (a slow consumer should not block the Room Manager). Safe to
// call during and after teardown; messages to a finished session are
// dropped.
func (c *Client) Send(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		logging.WithComponent("session").Warn().Str("user_id", c.identity.UserID).Msg("send buffer full, dropping message")
	}
}

func (c *Client) readPump() {
	defer func() {
		c.leaveCurrentDocument()
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.WithComponent("session").Debug().Err(err).Msg("connection closed")
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch decodes one inbound message and routes it to the room
// manager. Unexpected errors are reported via error_message without
// closing the connection; the session stays usable.
func (c *Client) dispatch(data []byte) {
	ctx := context.Background()

	inbound, err := protocol.DecodeInbound(data)
	if err != nil {
		c.Send(mustMarshal(protocol.NewErrorMessage(err.Error())))
		return
	}

	switch msg := inbound.(type) {
	case protocol.JoinDocument:
		c.leaveCurrentDocument()
		if err := c.rooms.Join(ctx, c, msg.DocumentID); err == nil {
			c.documentID = msg.DocumentID
		}

	case protocol.LeaveDocument:
		c.leaveCurrentDocument()

	case protocol.SubmitOperation:
		if c.documentID == "" {
			c.Send(mustMarshal(protocol.NewErrorMessage(string(apperr.InvalidOperation) + ": not joined to a document")))
			return
		}
		_ = c.rooms.Operation(ctx, c, c.documentID, msg.Op)

	case protocol.MoveCursor:
		if c.documentID == "" {
			return
		}
		c.rooms.CursorMove(ctx, c, c.documentID, msg.Cursor)
	}
}

func (c *Client) leaveCurrentDocument() {
	if c.documentID == "" {
		return
	}
	c.rooms.Leave(context.Background(), c, c.documentID)
	c.documentID = ""
}

func mustMarshal(v protocol.ErrorMessageEvent) []byte {
	data, _ := json.Marshal(v)
	return data
}
