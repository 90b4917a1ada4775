package bus

import "time"

// Message is the wire envelope delivered to connected clients. Seq is
// assigned per room by the room's dispatcher and increases monotonically, so
// a client can detect a gap after a reconnect and trigger a full re-sync.
type Message struct {
	Type       string      `json:"type"`
	Room       string      `json:"room,omitempty"`
	Seq        uint64      `json:"seq,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
	ServerTime time.Time   `json:"server_time"`
}

// Room name builders. Rooms are logical fan-out scopes, never persisted.

// AccountRoom is the private room of one account
func AccountRoom(accountID string) string {
	return "account:" + accountID
}

// EventRoom carries everything that happens within one event
func EventRoom(eventID string) string {
	return "event:" + eventID
}

// RoleRoom fans out to every connected client holding a role
func RoleRoom(role string) string {
	return "role:" + role
}
