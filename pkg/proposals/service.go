package proposals

import (
	"context"
	"encoding/json"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/audit"
	"github.com/platinummonkey/watchlist/pkg/catalog"
	"github.com/platinummonkey/watchlist/pkg/gateway"
	"github.com/platinummonkey/watchlist/pkg/identity"
	"github.com/platinummonkey/watchlist/pkg/moderation"
	"github.com/platinummonkey/watchlist/pkg/notifications"
	"github.com/platinummonkey/watchlist/pkg/observability"
	"github.com/platinummonkey/watchlist/pkg/validation"
)

// Moderator is the part of the authorization gateway proposals rely on.
type Moderator interface {
	CanAccessList(ctx context.Context, listID, userID string) (bool, error)
	UpdateProposalStatus(ctx context.Context, change gateway.ProposalStatusChange) (gateway.ProposalUpdate, error)
}

// Service implements proposal creation, listing and moderation.
type Service struct {
	store    *Store
	gw       Moderator
	notifier notifications.Sender
	audit    audit.Logger
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewService creates a proposal service.
func NewService(store *Store, gw Moderator, notifier notifications.Sender, auditLogger audit.Logger, logger *observability.Logger, metrics *observability.Metrics) *Service {
	if auditLogger == nil {
		auditLogger = audit.NoOp()
	}
	if logger == nil {
		logger = observability.Default()
	}
	return &Service{store: store, gw: gw, notifier: notifier, audit: auditLogger, logger: logger, metrics: metrics}
}

func (s *Service) canAccess(ctx context.Context, listID, userID string) (bool, error) {
	if userID == "" || listID == "" {
		return false, nil
	}
	return s.gw.CanAccessList(ctx, listID, userID)
}

// Create proposes an anime for a list the caller takes part in. A pending
// proposal for the same anime is reused instead.
func (s *Service) Create(ctx context.Context, listID string, anime json.RawMessage) (*CreateResult, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	ref, ok := catalog.ParseRef(anime)
	if !ok {
		return nil, apperr.ErrBadPayload.WithHint("anime with a positive id is required")
	}

	allowed, err := s.canAccess(ctx, listID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperr.ErrForbidden
	}

	pendingID, err := s.store.PendingID(ctx, listID, ref.ID)
	if err != nil {
		return nil, err
	}
	if pendingID != "" {
		return &CreateResult{AlreadyPending: true}, nil
	}

	p, err := s.store.Insert(ctx, listID, caller.UserID, ref.ID, ref.Title.Display(), anime)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"proposal_id": p.ID,
		"list_id":     listID,
		"anime_id":    ref.ID,
	}).Info("proposal created")
	return &CreateResult{Proposal: p}, nil
}

// List returns the proposals of a list, newest first. Members read them;
// a public list is readable by anyone. Other callers get none.
func (s *Service) List(ctx context.Context, listID string) ([]Proposal, error) {
	if !validation.IsUUID(listID) {
		return []Proposal{}, nil
	}
	allowed := false
	if caller := identity.FromContext(ctx); caller != nil {
		ok, err := s.canAccess(ctx, listID, caller.UserID)
		if err != nil {
			return nil, err
		}
		allowed = ok
	}
	if !allowed {
		public, err := s.store.IsPublicList(ctx, listID)
		if err != nil {
			return nil, err
		}
		allowed = public
	}
	if !allowed {
		return []Proposal{}, nil
	}
	return s.store.ForList(ctx, listID)
}

// Buckets returns the proposals of a list grouped by status.
func (s *Service) Buckets(ctx context.Context, listID string) (Buckets, error) {
	proposals, err := s.List(ctx, listID)
	if err != nil {
		return Buckets{}, err
	}
	return Bucket(proposals), nil
}

// UpdateStatus moves a proposal to status on behalf of the caller.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (gateway.ProposalUpdate, error) {
	return s.transition(ctx, gateway.ProposalStatusChange{ProposalID: id, Status: status})
}

// Cancel cancels a proposal. Without the soft-cancel columns the proposal
// is deleted and the update reports Deleted.
func (s *Service) Cancel(ctx context.Context, id string) (gateway.ProposalUpdate, error) {
	return s.transition(ctx, gateway.ProposalStatusChange{
		ProposalID:         id,
		Status:             string(moderation.Cancelled),
		HardDeleteFallback: true,
	})
}

func (s *Service) transition(ctx context.Context, change gateway.ProposalStatusChange) (upd gateway.ProposalUpdate, err error) {
	defer func() { s.observe(ctx, change.ProposalID, err) }()

	caller, err := identity.Require(ctx)
	if err != nil {
		return gateway.ProposalUpdate{}, err
	}
	change.ActorID = caller.UserID

	upd, err = s.gw.UpdateProposalStatus(ctx, change)
	if err != nil {
		return gateway.ProposalUpdate{}, err
	}
	if !upd.Changed {
		return upd, nil
	}

	s.metrics.ObserveProposalTransition(string(upd.Status))
	audit.LogDataMutation(ctx, s.audit, audit.EventTypeProposalStatus, caller.UserID, audit.ResourceTypeProposal, upd.ProposalID,
		&audit.ChangeDetails{
			Before: map[string]interface{}{"status": string(upd.Previous)},
			After:  map[string]interface{}{"status": string(upd.Status), "deleted": upd.Deleted},
		}, "proposal status changed")
	s.logger.WithFields(map[string]interface{}{
		"proposal_id": upd.ProposalID,
		"from":        upd.Previous,
		"to":          upd.Status,
		"deleted":     upd.Deleted,
	}).Info("proposal status changed")

	if upd.ProposerID != caller.UserID {
		s.notifyProposer(ctx, upd)
	}
	return upd, nil
}

func (s *Service) notifyProposer(ctx context.Context, upd gateway.ProposalUpdate) {
	if s.notifier == nil {
		return
	}
	var kind, message string
	switch upd.Status {
	case moderation.Accepted:
		kind, message = notifications.TypeProposalAccepted, "Proposition acceptée : "+upd.AnimeTitle
	case moderation.Rejected:
		kind, message = notifications.TypeProposalRejected, "Proposition refusée : "+upd.AnimeTitle
	default:
		return
	}
	s.notifier.Notify(ctx, upd.ProposerID, kind, message, map[string]interface{}{
		"proposal_id": upd.ProposalID,
		"list_id":     upd.ListID,
		"anime_id":    upd.AnimeID,
	})
}

// observe records the outcome of a moderation request. Refusals are also
// written to the audit trail.
func (s *Service) observe(ctx context.Context, proposalID string, err error) {
	kind := ""
	if err != nil {
		kind = string(apperr.KindOf(err))
	}
	s.metrics.ObserveAuthz("proposal_status", kind)
	if err != nil && apperr.From(err).HTTPStatus() == 403 {
		audit.LogDenied(ctx, s.audit, audit.EventTypeAccessDenied, audit.ResourceTypeProposal, proposalID, kind)
	}
}
