package notifications

import (
	"encoding/json"
	"time"
)

// Notification types.
const (
	TypeGroupInvite         = "group_invite"
	TypeGroupInviteAccepted = "group_invite_accepted"
	TypeGroupInviteRefused  = "group_invite_refused"
	TypeProposalAccepted    = "proposal_accepted"
	TypeProposalRejected    = "proposal_rejected"
)

// Page bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 50
)

// Notification is a message addressed to one member.
type Notification struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      string          `json:"type"`
	Message   string          `json:"message"`
	Payload   json.RawMessage `json:"payload"`
	IsRead    bool            `json:"is_read"`
	CreatedAt time.Time       `json:"created_at"`
}

// Page is one page of a member's notifications, newest first. NextCursor is
// the created_at of the last item, to be passed back as cursor.
type Page struct {
	Items       []Notification `json:"items"`
	NextCursor  *time.Time     `json:"nextCursor"`
	UnreadCount int64          `json:"unreadCount"`
}

// MarkReadRequest marks either every unread notification or the given ids.
type MarkReadRequest struct {
	All bool     `json:"all"`
	IDs []string `json:"ids"`
}

// Published is the message sent on a member's Redis channel.
type Published struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload"`
}

// Channel returns the Redis channel of userID.
func Channel(userID string) string {
	return "notifications:" + userID
}
