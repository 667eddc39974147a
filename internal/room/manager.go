package room

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"collabtext/internal/bus"
	"collabtext/internal/logging"
	"collabtext/internal/ot"
	"collabtext/internal/permission"
	"collabtext/internal/protocol"
	"collabtext/internal/store"
)

const presenceTTL = 300 * time.Second

func docChannel(documentID string) string      { return "doc:" + documentID }
func presenceChannel(documentID string) string { return "presence:" + documentID }
func presenceKey(documentID, userID string) string {
	return "presence:" + documentID + ":" + userID
}

// channelDocument recovers the document id from a subscribed channel name.
func channelDocument(channel string) (string, bool) {
	if id, ok := strings.CutPrefix(channel, "doc:"); ok {
		return id, true
	}
	if id, ok := strings.CutPrefix(channel, "presence:"); ok {
		return id, true
	}
	return "", false
}

// Manager owns per-document local session sets, drives the OT engine,
// and fans presence and operations out over the bus to peer instances.
type Manager struct {
	serverID   string
	docs       store.DocumentStore
	busAdapter bus.Bus
	engine     *ot.Engine
	subs       *subscriptionRegistry

	// mu guards only the rooms map itself (creation/deletion of entries),
	// not per-document mutation, which docRoom serializes internally.
	mu    sync.Mutex
	rooms map[string]*docRoom
}

func NewManager(serverID string, docs store.DocumentStore, busAdapter bus.Bus, engine *ot.Engine) *Manager {
	return &Manager{
		serverID:   serverID,
		docs:       docs,
		busAdapter: busAdapter,
		engine:     engine,
		subs:       newSubscriptionRegistry(),
		rooms:      make(map[string]*docRoom),
	}
}

// Stats reports the number of locally active rooms and the total number
// of locally connected sessions across them, for the HTTP stats endpoint.
func (m *Manager) Stats() (rooms int, sessions int) {
	m.mu.Lock()
	snapshot := make([]*docRoom, 0, len(m.rooms))
	for _, r := range m.rooms {
		snapshot = append(snapshot, r)
	}
	m.mu.Unlock()

	for _, r := range snapshot {
		sessions += len(r.snapshot())
	}
	return len(snapshot), sessions
}

func (m *Manager) roomFor(documentID string) *docRoom {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[documentID]
	if !ok {
		r = newDocRoom(documentID)
		m.rooms[documentID] = r
	}
	return r
}

// Join adds a session to a document's room: permission check, local
// registration, presence upsert, idempotent bus subscription,
// document_state emission, and user_joined fan-out.
func (m *Manager) Join(ctx context.Context, e Emitter, documentID string) error {
	rec, role, err := permission.GetDocumentWithAccess(ctx, m.docs, documentID, e.UserID(), permission.RequireRead)
	if err != nil {
		m.emitError(e, err)
		return err
	}

	r := m.roomFor(documentID)
	now := time.Now()
	r.add(e.UserID(), &localUser{emitter: e, username: e.Username(), role: role, joinedAt: now})

	entry := protocol.PresenceEntry{
		UserID: e.UserID(), Username: e.Username(), Role: string(role), JoinedAt: now,
	}
	raw, _ := json.Marshal(entry)
	if err := m.busAdapter.Set(ctx, presenceKey(documentID, e.UserID()), string(raw), presenceTTL); err != nil {
		logging.WithComponent("room").Warn().Err(err).Str("document_id", documentID).Msg("presence set failed")
	}

	if err := m.subs.Ensure(ctx, m.busAdapter, docChannel(documentID), m.busHandler(documentID)); err != nil {
		logging.WithComponent("room").Warn().Err(err).Str("channel", docChannel(documentID)).Msg("subscribe failed")
	}
	if err := m.subs.Ensure(ctx, m.busAdapter, presenceChannel(documentID), m.busHandler(documentID)); err != nil {
		logging.WithComponent("room").Warn().Err(err).Str("channel", presenceChannel(documentID)).Msg("subscribe failed")
	}

	active := m.activeUsers(ctx, documentID)
	m.emit(e, protocol.NewDocumentState(rec.ID, rec.Title, rec.Content, rec.Version, rec.Owner, string(role), active))

	joined := protocol.NewUserJoined(e.UserID(), e.Username(), string(role))
	m.broadcastLocal(r, e.UserID(), joined)
	m.publish(ctx, presenceChannel(documentID), protocol.EventUserJoined, joined)

	return nil
}

// Operation re-checks edit access against the freshly loaded document,
// runs the OT engine, acks the originator, and fans the transformed op
// out locally and over the bus. Roles may change mid-session, so the
// permission check runs on every operation, not just at join.
func (m *Manager) Operation(ctx context.Context, e Emitter, documentID string, op ot.Operation) error {
	_, _, err := permission.GetDocumentWithAccess(ctx, m.docs, documentID, e.UserID(), permission.RequireEdit)
	if err != nil {
		m.emitError(e, err)
		return err
	}

	transformed, version, err := m.engine.ProcessOperation(ctx, documentID, op, e.UserID())
	if err != nil {
		m.emitError(e, err)
		return err
	}

	m.emit(e, protocol.NewOperationAck(transformed, version, e.UserID()))

	if transformed.IsNoop() {
		return nil
	}

	r := m.roomFor(documentID)
	remote := protocol.NewRemoteOperation(transformed, version, e.UserID(), e.Username())
	m.broadcastLocal(r, e.UserID(), remote)
	m.publish(ctx, docChannel(documentID), protocol.EventRemoteOperation, remote)

	return nil
}

// CursorMove broadcasts a cursor update locally and refreshes the
// presence entry, subject to a 50ms per-(user,doc) throttle.
func (m *Manager) CursorMove(ctx context.Context, e Emitter, documentID string, cursor protocol.Cursor) {
	r := m.roomFor(documentID)
	if !r.allowCursor(e.UserID(), time.Now()) {
		return
	}

	lu, ok := r.get(e.UserID())
	if !ok {
		return
	}

	moved := protocol.NewCursorMoved(e.UserID(), e.Username(), cursor)
	m.broadcastLocal(r, e.UserID(), moved)

	entry := protocol.PresenceEntry{
		UserID: e.UserID(), Username: e.Username(), Role: string(lu.role),
		JoinedAt: lu.joinedAt, Cursor: &cursor,
	}
	raw, _ := json.Marshal(entry)
	if err := m.busAdapter.Set(ctx, presenceKey(documentID, e.UserID()), string(raw), presenceTTL); err != nil {
		logging.WithComponent("room").Warn().Err(err).Msg("presence cursor refresh failed")
	}
}

// Leave removes the session from the room, drops its presence entry, and
// broadcasts user_left. If the room is now empty it releases the bus
// subscriptions and discards the operation buffer.
func (m *Manager) Leave(ctx context.Context, e Emitter, documentID string) {
	r := m.roomFor(documentID)
	r.remove(e.UserID())

	if err := m.busAdapter.Del(ctx, presenceKey(documentID, e.UserID())); err != nil {
		logging.WithComponent("room").Warn().Err(err).Msg("presence delete failed")
	}

	left := protocol.NewUserLeft(e.UserID())
	m.broadcastLocal(r, e.UserID(), left)
	m.publish(ctx, presenceChannel(documentID), protocol.EventUserLeft, left)

	if !r.isEmpty() {
		return
	}

	if err := m.subs.Release(ctx, m.busAdapter, docChannel(documentID)); err != nil {
		logging.WithComponent("room").Warn().Err(err).Msg("unsubscribe failed")
	}
	if err := m.subs.Release(ctx, m.busAdapter, presenceChannel(documentID)); err != nil {
		logging.WithComponent("room").Warn().Err(err).Msg("unsubscribe failed")
	}
	m.engine.DiscardBuffer(documentID)

	m.mu.Lock()
	delete(m.rooms, documentID)
	m.mu.Unlock()
}

// Reconcile releases bus subscriptions for documents that no longer have
// any local participant. Leave handles the common teardown path; the
// sweep covers subscriptions orphaned by an abnormal session teardown.
func (m *Manager) Reconcile(ctx context.Context) {
	for _, channel := range m.subs.Channels() {
		documentID, ok := channelDocument(channel)
		if !ok {
			continue
		}

		m.mu.Lock()
		r, exists := m.rooms[documentID]
		m.mu.Unlock()
		if exists && !r.isEmpty() {
			continue
		}

		if err := m.subs.Release(ctx, m.busAdapter, channel); err != nil {
			logging.WithComponent("room").Warn().Err(err).Str("channel", channel).Msg("reconcile unsubscribe failed")
			continue
		}
		m.engine.DiscardBuffer(documentID)

		m.mu.Lock()
		if r, ok := m.rooms[documentID]; ok && r.isEmpty() {
			delete(m.rooms, documentID)
		}
		m.mu.Unlock()

		logging.WithComponent("room").Info().Str("channel", channel).Msg("released orphaned subscription")
	}
}

// ReconcileEvery runs Reconcile on a ticker until ctx is cancelled.
func (m *Manager) ReconcileEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reconcile(ctx)
		}
	}
}

// activeUsers scans the bus presence keys for documentID and decodes each
// live entry into the document_state activeUsers list.
func (m *Manager) activeUsers(ctx context.Context, documentID string) []protocol.ActiveUser {
	keys, err := m.busAdapter.Keys(ctx, "presence:"+documentID+":*")
	if err != nil {
		logging.WithComponent("room").Warn().Err(err).Msg("presence scan failed")
		return nil
	}

	out := make([]protocol.ActiveUser, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := m.busAdapter.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var entry protocol.PresenceEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		out = append(out, protocol.ActiveUser{
			UserID: entry.UserID, Username: entry.Username, Role: entry.Role, Cursor: entry.Cursor,
		})
	}
	return out
}

// busHandler returns the bus.Handler registered for both channels of
// documentID: drop messages originating from this instance, otherwise
// forward the payload to every local session in the room.
func (m *Manager) busHandler(documentID string) bus.Handler {
	return func(payload string) {
		msg, err := protocol.DecodeBusMessage(payload)
		if err != nil {
			logging.WithComponent("room").Warn().Err(err).Msg("malformed bus message")
			return
		}
		if msg.ServerID == m.serverID {
			return
		}

		r := m.roomFor(documentID)
		for _, lu := range r.snapshot() {
			lu.emitter.Send(msg.Payload)
		}
	}
}

func (m *Manager) broadcastLocal(r *docRoom, excludeUserID string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.WithComponent("room").Error().Err(err).Msg("marshal broadcast event")
		return
	}
	for userID, lu := range r.snapshot() {
		if userID == excludeUserID {
			continue
		}
		lu.emitter.Send(data)
	}
}

func (m *Manager) publish(ctx context.Context, channel string, event protocol.OutboundEvent, payload interface{}) {
	encoded, err := protocol.EncodeBusMessage(m.serverID, event, payload)
	if err != nil {
		logging.WithComponent("room").Error().Err(err).Msg("encode bus message")
		return
	}
	// Publish failures are logged and swallowed: the store remains the
	// source of truth and the next re-join rebuilds state.
	if err := m.busAdapter.Publish(ctx, channel, encoded); err != nil {
		logging.WithComponent("room").Warn().Err(err).Str("channel", channel).Msg("bus publish failed")
	}
}

func (m *Manager) emit(e Emitter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.WithComponent("room").Error().Err(err).Msg("marshal emit event")
		return
	}
	e.Send(data)
}

func (m *Manager) emitError(e Emitter, err error) {
	m.emit(e, protocol.NewErrorMessage(err.Error()))
}
