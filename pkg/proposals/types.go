package proposals

import (
	"encoding/json"
	"time"

	"github.com/platinummonkey/watchlist/pkg/moderation"
)

// Proposal is an anime suggested for a list.
type Proposal struct {
	ID               string            `json:"id"`
	ListID           string            `json:"list_id"`
	UserID           string            `json:"user_id"`
	AnimeID          int64             `json:"anime_id"`
	AnimeTitle       *string           `json:"anime_title"`
	AnimeData        json.RawMessage   `json:"anime_data"`
	Status           moderation.Status `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	CancelledAt      *time.Time        `json:"cancelled_at,omitempty"`
	CancelledBy      *string           `json:"cancelled_by,omitempty"`
	ProposerUsername *string           `json:"proposer_username"`
}

// Buckets groups proposals by status. Cancelled proposals appear in none.
type Buckets struct {
	Pending  []Proposal `json:"pending"`
	Accepted []Proposal `json:"accepted"`
	Rejected []Proposal `json:"rejected"`
}

// Bucket splits proposals by status, keeping their order.
func Bucket(proposals []Proposal) Buckets {
	b := Buckets{Pending: []Proposal{}, Accepted: []Proposal{}, Rejected: []Proposal{}}
	for _, p := range proposals {
		switch moderation.Normalize(string(p.Status)) {
		case moderation.Pending:
			b.Pending = append(b.Pending, p)
		case moderation.Accepted:
			b.Accepted = append(b.Accepted, p)
		case moderation.Rejected:
			b.Rejected = append(b.Rejected, p)
		}
	}
	return b
}

// CreateResult is the outcome of Create. AlreadyPending is set, and
// Proposal is nil, when the anime already has a pending proposal on the list.
type CreateResult struct {
	Proposal       *Proposal
	AlreadyPending bool
}

// CreateRequest is the body of POST /proposals.
type CreateRequest struct {
	ListID string          `json:"list_id" validate:"notblank_trim,uuid_rfc4122"`
	Anime  json.RawMessage `json:"anime"`
}

// UpdateRequest is the body of PATCH /proposals/update.
type UpdateRequest struct {
	ID     string `json:"id" validate:"notblank_trim,uuid_rfc4122"`
	Status string `json:"status" validate:"notblank_trim"`
}

// DeleteRequest is the body of DELETE /proposals.
type DeleteRequest struct {
	ID string `json:"id" validate:"notblank_trim,uuid_rfc4122"`
}
