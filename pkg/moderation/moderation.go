// Package moderation holds the proposal status state machine. It performs no
// I/O: callers load the proposal and resolve the actor's access first.
//
//	pending ──> accepted | rejected | cancelled
//	accepted, rejected ──> pending (moderation owner only)
//	cancelled: terminal
package moderation

import (
	"strings"

	"github.com/platinummonkey/watchlist/pkg/apperr"
)

// Status is a proposal status.
type Status string

const (
	Pending   Status = "pending"
	Accepted  Status = "accepted"
	Rejected  Status = "rejected"
	Cancelled Status = "cancelled"

	// legacyApproved is still found in old rows and old clients.
	legacyApproved = "approved"
)

// HintSelfModeration is the hint attached to the forbidden error raised when
// a proposer votes on their own proposal.
const HintSelfModeration = "self_moderation_forbidden"

// Statuses lists the valid statuses.
func Statuses() []Status {
	return []Status{Pending, Accepted, Rejected, Cancelled}
}

// Normalize maps a stored status to its canonical form ("approved" becomes
// accepted). Unknown values are returned lowercased.
func Normalize(raw string) Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == legacyApproved {
		return Accepted
	}
	return Status(s)
}

// Parse validates a requested status.
func Parse(raw string) (Status, error) {
	s := Normalize(raw)
	switch s {
	case Pending, Accepted, Rejected, Cancelled:
		return s, nil
	default:
		return "", apperr.ErrInvalidStatus.WithHint(raw)
	}
}

// Transition describes one requested status change. Access to the list must
// already have been established.
type Transition struct {
	Current    Status
	Target     Status
	ActorID    string
	ProposerID string
	// ModerationOwner is true when the actor owns the list or the list's group.
	ModerationOwner bool
}

// Check applies the transition rules in order: cancelled is terminal, then
// the rule for the target status, then the no-op check. It returns
// noop=true when the proposal already has the target status.
func Check(t Transition) (noop bool, err error) {
	current := Normalize(string(t.Current))

	if current == Cancelled && t.Target != Cancelled {
		return false, apperr.ErrInvalidTransition
	}

	switch t.Target {
	case Accepted, Rejected:
		if t.ActorID == t.ProposerID && !t.ModerationOwner {
			return false, apperr.ErrForbidden.WithHint(HintSelfModeration)
		}
	case Pending:
		if !t.ModerationOwner {
			return false, apperr.ErrOnlyOwnerCanResetToPending
		}
	case Cancelled:
		if t.ActorID != t.ProposerID && !t.ModerationOwner {
			return false, apperr.ErrOnlyAuthorOrOwnerCanCancel
		}
	default:
		return false, apperr.ErrInvalidStatus
	}

	return current == t.Target, nil
}

// FromRaised maps a message raised by the update_proposal_status procedure
// to its error. Unknown messages return nil.
func FromRaised(msg string) error {
	switch strings.TrimSpace(msg) {
	case HintSelfModeration:
		return apperr.ErrForbidden.WithHint(HintSelfModeration)
	case "forbidden":
		return apperr.ErrForbidden
	case "invalid_status":
		return apperr.ErrInvalidStatus
	case "invalid_transition":
		return apperr.ErrInvalidTransition
	case "not_found":
		return apperr.ErrNotFound
	case "only_owner_can_reset_to_pending":
		return apperr.ErrOnlyOwnerCanResetToPending
	case "only_author_or_owner_can_cancel":
		return apperr.ErrOnlyAuthorOrOwnerCanCancel
	default:
		return nil
	}
}
