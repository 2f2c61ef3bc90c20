package groups

import (
	"strings"
	"time"

	"github.com/platinummonkey/watchlist/pkg/apperr"
)

// Group member roles.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// InviteStatus is the state of a group invitation.
type InviteStatus string

// Invitation states. Every state but pending is terminal.
const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteDeclined InviteStatus = "declined"
	InviteRefused  InviteStatus = "refused"
	InviteRejected InviteStatus = "rejected"
)

// ParseAction maps a response action onto the invitation state it leads to.
func ParseAction(action string) (InviteStatus, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "accept":
		return InviteAccepted, nil
	case "decline":
		return InviteDeclined, nil
	case "refuse":
		return InviteRefused, nil
	case "reject":
		return InviteRejected, nil
	default:
		return "", apperr.ErrBadPayload.WithHint("action must be accept, decline, refuse or reject")
	}
}

// Group is a set of members sharing lists.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Invitation is an invitation to join a group.
type Invitation struct {
	ID            string       `json:"id"`
	GroupID       string       `json:"group_id"`
	InvitedUserID string       `json:"invited_user_id"`
	InvitedBy     string       `json:"invited_by"`
	Status        InviteStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
}

// InvitationView is an invitation with the names a client displays.
type InvitationView struct {
	Invitation
	GroupName       string  `json:"group_name"`
	InviterUsername *string `json:"inviter_username"`
	InvitedUsername *string `json:"invited_username"`
}

// Invitations are the caller's received and sent invitations.
type Invitations struct {
	Incoming []InvitationView `json:"incoming"`
	Outgoing []InvitationView `json:"outgoing"`
}

// AddResult reports the outcome of AddMember and Invite.
type AddResult struct {
	Already        bool   `json:"already,omitempty"`
	AlreadyInvited bool   `json:"already_invited,omitempty"`
	InviteID       string `json:"invite_id,omitempty"`
}

// RespondResult reports the state an invitation ended in.
type RespondResult struct {
	Status  InviteStatus `json:"status"`
	Changed bool         `json:"changed"`
}

// CreateGroupRequest creates a group.
type CreateGroupRequest struct {
	Name string `json:"name" validate:"notblank_trim,max=100"`
}

// MemberRequest names a member of a group, by username or id.
type MemberRequest struct {
	GroupID  string `json:"group_id" validate:"notblank_trim,uuid_rfc4122"`
	Username string `json:"username"`
	UserID   string `json:"user_id"`
}

// RespondRequest answers an invitation.
type RespondRequest struct {
	InviteID string `json:"invite_id" validate:"notblank_trim,uuid_rfc4122"`
	Action   string `json:"action" validate:"notblank_trim"`
}
