package lists

import (
	"encoding/json"
	"time"
)

// System list names. They are created on demand and hidden from GET /lists.
const (
	NameWatched = "Animés vus"
	NameDefault = "Liste principale"
)

// Limits for the watched endpoints.
const (
	DefaultWatchedLimit = 20
	MaxWatchedLimit     = 100
	MaxWatchedIDsLimit  = 1000
)

// List is a named collection of anime.
type List struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	IsPublic  bool      `json:"is_public"`
	IsGlobal  bool      `json:"is_global"`
	GroupID   *string   `json:"group_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Info is a list with the caller's relation to it.
type Info struct {
	List     *List `json:"list"`
	IsOwner  bool  `json:"is_owner"`
	IsMember bool  `json:"is_member"`
}

// Item is an anime in a list.
type Item struct {
	ID         string          `json:"id"`
	ListID     string          `json:"list_id"`
	UserID     *string         `json:"user_id"`
	AddedBy    *string         `json:"added_by"`
	AnimeID    int64           `json:"anime_id"`
	AnimeTitle *string         `json:"anime_title"`
	AnimeData  json.RawMessage `json:"anime_data"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Watched marks an anime as seen by a member.
type Watched struct {
	ID         string          `json:"id"`
	ListID     *string         `json:"list_id,omitempty"`
	AnimeID    int64           `json:"anime_id"`
	AnimeTitle *string         `json:"anime_title"`
	AnimeData  json.RawMessage `json:"anime_data"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CreateListRequest is the body of POST /lists.
type CreateListRequest struct {
	Name     string `json:"name" validate:"notblank_trim,max=100"`
	IsPublic bool   `json:"is_public"`
}

// UpdateListRequest is the body of PATCH /lists. Absent fields are left
// unchanged.
type UpdateListRequest struct {
	ID       string  `json:"id" validate:"notblank_trim,uuid_rfc4122"`
	Name     *string `json:"name,omitempty"`
	IsPublic *bool   `json:"is_public,omitempty"`
}

// IDRequest carries a single id.
type IDRequest struct {
	ID string `json:"id" validate:"notblank_trim,uuid_rfc4122"`
}

// AddItemRequest is the body of POST /list-items.
type AddItemRequest struct {
	ListID string          `json:"list_id" validate:"notblank_trim,uuid_rfc4122"`
	Anime  json.RawMessage `json:"anime"`
}

// WatchRequest is the body of POST /watched.
type WatchRequest struct {
	Anime  json.RawMessage `json:"anime"`
	ListID string          `json:"list_id,omitempty"`
}

// UnwatchRequest is the body of DELETE /watched.
type UnwatchRequest struct {
	AnimeID int64 `json:"anime_id" validate:"gt=0"`
}
