package room

import (
	"sync"
	"time"

	"collabtext/internal/permission"
)

// localUser is one locally-connected collaborator's entry in a room's
// localUsers map.
type localUser struct {
	emitter      Emitter
	username     string
	role         permission.Role
	joinedAt     time.Time
	lastCursorAt time.Time
}

// docRoom holds the per-document, per-instance local state: the set of
// locally connected users and their last-accepted-cursor timestamps for
// the 50ms throttle. The operation buffer itself lives in
// internal/ot.Engine, which docRoom's lifecycle drives via DiscardBuffer
// when localUsers empties.
type docRoom struct {
	mu         sync.RWMutex
	documentID string
	localUsers map[string]*localUser
}

func newDocRoom(documentID string) *docRoom {
	return &docRoom{
		documentID: documentID,
		localUsers: make(map[string]*localUser),
	}
}

func (r *docRoom) add(userID string, lu *localUser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localUsers[userID] = lu
}

func (r *docRoom) remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.localUsers, userID)
}

func (r *docRoom) isEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.localUsers) == 0
}

func (r *docRoom) get(userID string) (*localUser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lu, ok := r.localUsers[userID]
	return lu, ok
}

// snapshot returns a stable copy of the current local users, safe to range
// over after the lock is released.
func (r *docRoom) snapshot() map[string]*localUser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*localUser, len(r.localUsers))
	for k, v := range r.localUsers {
		out[k] = v
	}
	return out
}

// allowCursor applies the per-(user,doc) 50ms throttle, returning true and
// updating lastCursorAt if the cursor should be accepted.
func (r *docRoom) allowCursor(userID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	lu, ok := r.localUsers[userID]
	if !ok {
		return false
	}
	if now.Sub(lu.lastCursorAt) < 50*time.Millisecond {
		return false
	}
	lu.lastCursorAt = now
	return true
}
