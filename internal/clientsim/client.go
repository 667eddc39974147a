// Package clientsim is a reference implementation of the client
// send-queue protocol, used by tests to exercise the server the way a
// conformant client would: at most one unacknowledged operation in
// flight, baseVersion re-stamped at send time.
package clientsim

import (
	"context"
	"encoding/json"
	"sync"

	"collabtext/internal/ot"
	"collabtext/internal/protocol"
	"collabtext/internal/room"
)

// Client simulates one end-user editor. It implements room.Emitter so it
// can Join/Operation/CursorMove directly against a room.Manager in tests,
// decoding the same JSON a real websocket client would receive.
type Client struct {
	userID   string
	username string
	manager  *room.Manager

	mu           sync.Mutex
	documentID   string
	content      string
	knownVersion uint64
	queue        []ot.Operation
	inFlight     bool
	received     []protocol.OutboundEvent
}

// New builds a simulated client bound to manager.
func New(manager *room.Manager, userID, username string) *Client {
	return &Client{manager: manager, userID: userID, username: username}
}

func (c *Client) UserID() string   { return c.userID }
func (c *Client) Username() string { return c.username }

// Content returns the client's current locally-known document text.
func (c *Client) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content
}

// KnownVersion returns the last version this client has observed.
func (c *Client) KnownVersion() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.knownVersion
}

// PendingInFlight reports whether this client currently has an
// unacknowledged operation outstanding.
func (c *Client) PendingInFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Events returns every outbound event this client has observed, in order.
func (c *Client) Events() []protocol.OutboundEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.OutboundEvent(nil), c.received...)
}

// Join joins documentID, dropping any stale queue and in-flight op: the
// fresh document_state is authoritative.
func (c *Client) Join(ctx context.Context, documentID string) error {
	c.mu.Lock()
	c.documentID = documentID
	c.queue = nil
	c.inFlight = false
	c.mu.Unlock()

	return c.manager.Join(ctx, c, documentID)
}

// Edit applies a local text change: compute the minimal operation,
// optimistically apply it, enqueue it, and kick trySendNext.
func (c *Client) Edit(ctx context.Context, next string) {
	c.mu.Lock()
	delPos, delLen, insPos, insText := diffOps(c.content, next)
	c.content = next

	var ops []ot.Operation
	if delLen > 0 {
		ops = append(ops, ot.NewDelete(delPos, delLen, 0))
	}
	if insText != "" {
		ops = append(ops, ot.NewInsert(insPos, insText, 0))
	}
	c.queue = append(c.queue, ops...)
	c.mu.Unlock()

	c.trySendNext(ctx)
}

// Send satisfies room.Emitter: decode one server-pushed event and update
// local state exactly as a real client's websocket message handler would.
func (c *Client) Send(data []byte) {
	var env struct {
		Event protocol.OutboundEvent `json:"event"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	c.mu.Lock()
	c.received = append(c.received, env.Event)
	c.mu.Unlock()

	switch env.Event {
	case protocol.EventDocumentState:
		var ev protocol.DocumentStateEvent
		_ = json.Unmarshal(data, &ev)
		c.mu.Lock()
		c.content = ev.Content
		c.knownVersion = ev.Version
		c.mu.Unlock()

	case protocol.EventOperationAck:
		var ev protocol.OperationAckEvent
		_ = json.Unmarshal(data, &ev)
		c.mu.Lock()
		if ev.Version > c.knownVersion {
			c.knownVersion = ev.Version
		}
		c.inFlight = false
		c.mu.Unlock()
		c.trySendNext(context.Background())

	case protocol.EventRemoteOperation:
		var ev protocol.RemoteOperationEvent
		_ = json.Unmarshal(data, &ev)
		c.mu.Lock()
		c.content = ot.Apply(c.content, ev.Operation)
		if ev.Version > c.knownVersion {
			c.knownVersion = ev.Version
		}
		c.mu.Unlock()
	}
}

// trySendNext: if nothing is in flight and the queue is non-empty, shift
// the head, stamp baseVersion at send time, and send.
func (c *Client) trySendNext(ctx context.Context) {
	c.mu.Lock()
	if c.inFlight || len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	op := c.queue[0]
	c.queue = c.queue[1:]
	op.BaseVersion = c.knownVersion
	c.inFlight = true
	documentID := c.documentID
	c.mu.Unlock()

	_ = c.manager.Operation(ctx, c, documentID, op)
}

var _ room.Emitter = (*Client)(nil)
