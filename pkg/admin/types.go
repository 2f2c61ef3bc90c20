package admin

import (
	"time"

	"github.com/platinummonkey/watchlist/pkg/gateway"
)

// User listing bounds.
const (
	DefaultUserLimit = 50
	MaxUserLimit     = 200
	RecentProposals  = 100
)

// UpdateUserRequest is a PATCH on another (or the calling) member. Nil
// fields are not part of the change.
type UpdateUserRequest struct {
	ID       string  `json:"id" validate:"notblank_trim,uuid_rfc4122"`
	Username *string `json:"username"`
	Role     *string `json:"role"`
	IsAdmin  *bool   `json:"is_admin"`
}

// DeleteUserRequest deletes a member account.
type DeleteUserRequest struct {
	ID string `json:"id" validate:"notblank_trim,uuid_rfc4122"`
}

// PromoteRequest grants the admin flag to a member given by id or username.
type PromoteRequest struct {
	UsernameOrID string `json:"usernameOrId" validate:"notblank_trim"`
}

// CreateListRequest creates a global list.
type CreateListRequest struct {
	Name string `json:"name" validate:"notblank_trim,max=100"`
}

// PurgeRequest hard-deletes a proposal.
type PurgeRequest struct {
	ID string `json:"id" validate:"notblank_trim,uuid_rfc4122"`
}

// UserPage is one page of the member listing.
type UserPage struct {
	Items []gateway.UserRow `json:"items"`
	Total int64             `json:"total"`
}

// ProposalRow is a proposal in the moderation overview.
type ProposalRow struct {
	ID         string    `json:"id"`
	ListID     string    `json:"list_id"`
	UserID     string    `json:"user_id"`
	AnimeTitle *string   `json:"anime_title"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// GlobalList is a list visible to every member.
type GlobalList struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
