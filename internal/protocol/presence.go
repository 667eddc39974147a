package protocol

import "time"

// PresenceEntry is the bus key-value payload stored at
// presence:<documentId>:<userId> with a 300s TTL.
type PresenceEntry struct {
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
	Cursor   *Cursor   `json:"cursor,omitempty"`
}
