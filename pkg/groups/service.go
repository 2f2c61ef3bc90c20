package groups

import (
	"context"
	"strings"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/audit"
	"github.com/platinummonkey/watchlist/pkg/gateway"
	"github.com/platinummonkey/watchlist/pkg/identity"
	"github.com/platinummonkey/watchlist/pkg/notifications"
	"github.com/platinummonkey/watchlist/pkg/observability"
)

// Directory answers group membership questions through the authorization
// gateway.
type Directory interface {
	ListMyGroups(ctx context.Context, userID string) ([]gateway.GroupRow, error)
	GroupRole(ctx context.Context, groupID, userID string) (string, error)
	GroupMembers(ctx context.Context, groupID string) ([]gateway.MemberRow, error)
	ProfileIDByUsername(ctx context.Context, username string) (string, error)
}

// Service implements group membership and invitations.
type Service struct {
	store    *Store
	dir      Directory
	notifier notifications.Sender
	audit    audit.Logger
	logger   *observability.Logger
}

// NewService creates a group service.
func NewService(store *Store, dir Directory, notifier notifications.Sender, auditLogger audit.Logger, logger *observability.Logger) *Service {
	if auditLogger == nil {
		auditLogger = audit.NoOp()
	}
	if logger == nil {
		logger = observability.Default()
	}
	return &Service{store: store, dir: dir, notifier: notifier, audit: auditLogger, logger: logger}
}

func (s *Service) notify(ctx context.Context, userID, kind, message string, payload map[string]interface{}) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, kind, message, payload)
	}
}

// requireRole returns the caller and its role in groupID; callers without a
// role get forbidden.
func (s *Service) requireRole(ctx context.Context, groupID string) (*identity.Caller, string, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, "", err
	}
	role, err := s.dir.GroupRole(ctx, groupID, caller.UserID)
	if err != nil {
		return nil, "", err
	}
	if role == "" {
		return nil, "", apperr.ErrForbidden
	}
	return caller, role, nil
}

// resolveUsername returns the id of username, or user_not_found.
func (s *Service) resolveUsername(ctx context.Context, username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", apperr.ErrBadPayload.WithHint("username is required")
	}
	id, err := s.dir.ProfileIDByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", apperr.ErrUserNotFound
	}
	return id, nil
}

// CreateGroup creates a group owned by the caller.
func (s *Service) CreateGroup(ctx context.Context, name string) (*Group, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > 100 {
		return nil, apperr.ErrBadPayload.WithHint("name must be 1 to 100 characters")
	}

	g, err := s.store.CreateGroup(ctx, name, caller.UserID)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"group_id": g.ID,
		"owner_id": caller.UserID,
	}).Info("group created")
	return g, nil
}

// ListMyGroups returns the groups the caller owns or belongs to. Anonymous
// callers get none.
func (s *Service) ListMyGroups(ctx context.Context) ([]gateway.GroupRow, error) {
	caller := identity.FromContext(ctx)
	if caller == nil {
		return []gateway.GroupRow{}, nil
	}
	return s.dir.ListMyGroups(ctx, caller.UserID)
}

// ListMembers returns the members of a group the caller belongs to.
func (s *Service) ListMembers(ctx context.Context, groupID string) ([]gateway.MemberRow, error) {
	if _, _, err := s.requireRole(ctx, groupID); err != nil {
		return nil, err
	}
	return s.dir.GroupMembers(ctx, groupID)
}

// AddMember adds the member named username to a group the caller belongs
// to.
func (s *Service) AddMember(ctx context.Context, groupID, username string) (*AddResult, error) {
	caller, _, err := s.requireRole(ctx, groupID)
	if err != nil {
		return nil, err
	}
	targetID, err := s.resolveUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	member, err := s.store.IsMember(ctx, groupID, targetID)
	if err != nil {
		return nil, err
	}
	if member {
		return &AddResult{Already: true}, nil
	}

	added, err := s.store.AddMember(ctx, groupID, targetID)
	if err != nil {
		return nil, err
	}
	if !added {
		return &AddResult{Already: true}, nil
	}

	audit.LogDataMutation(ctx, s.audit, audit.EventTypeGroupMemberAdd, caller.UserID, audit.ResourceTypeGroup, groupID,
		&audit.ChangeDetails{After: map[string]interface{}{"user_id": targetID, "role": RoleMember}}, "member added")
	return &AddResult{}, nil
}

// Invite invites the member named username to a group the caller belongs
// to and notifies them.
func (s *Service) Invite(ctx context.Context, groupID, username string) (*AddResult, error) {
	caller, _, err := s.requireRole(ctx, groupID)
	if err != nil {
		return nil, err
	}
	targetID, err := s.resolveUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	member, err := s.store.IsMember(ctx, groupID, targetID)
	if err != nil {
		return nil, err
	}
	if member {
		return &AddResult{Already: true}, nil
	}

	pending, err := s.store.PendingInvitation(ctx, groupID, targetID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return &AddResult{AlreadyInvited: true, InviteID: pending.ID}, nil
	}

	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	inv, err := s.store.CreateInvitation(ctx, groupID, targetID, caller.UserID)
	if err != nil {
		return nil, err
	}

	audit.LogDataMutation(ctx, s.audit, audit.EventTypeGroupInvite, caller.UserID, audit.ResourceTypeInvitation, inv.ID,
		&audit.ChangeDetails{After: map[string]interface{}{"group_id": groupID, "invited_user_id": targetID}}, "member invited")
	s.notify(ctx, targetID, notifications.TypeGroupInvite, "Invitation au groupe "+g.Name, map[string]interface{}{
		"group_id":   groupID,
		"invite_id":  inv.ID,
		"inviter_id": caller.UserID,
	})
	return &AddResult{InviteID: inv.ID}, nil
}

// RespondInvite accepts or declines an invitation addressed to the caller.
// Answering an invitation that is no longer pending changes nothing, so a
// retried answer is harmless.
func (s *Service) RespondInvite(ctx context.Context, inviteID, action string) (*RespondResult, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	target, err := ParseAction(action)
	if err != nil {
		return nil, err
	}

	inv, err := s.store.GetInvitation(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if inv.InvitedUserID != caller.UserID {
		return nil, apperr.ErrForbidden
	}
	if inv.Status != InvitePending {
		return &RespondResult{Status: inv.Status}, nil
	}

	if target == InviteAccepted {
		if _, err := s.store.AddMember(ctx, inv.GroupID, caller.UserID); err != nil {
			return nil, err
		}
	}
	changed, err := s.store.ResolveInvitation(ctx, inv.ID, target)
	if err != nil {
		return nil, err
	}
	if !changed {
		current, err := s.store.GetInvitation(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		return &RespondResult{Status: current.Status}, nil
	}

	audit.LogDataMutation(ctx, s.audit, audit.EventTypeGroupInviteRespond, caller.UserID, audit.ResourceTypeInvitation, inv.ID,
		&audit.ChangeDetails{
			Before: map[string]interface{}{"status": string(InvitePending)},
			After:  map[string]interface{}{"status": string(target)},
		}, "invitation answered")

	kind, message := notifications.TypeGroupInviteRefused, "Invitation refusée"
	if target == InviteAccepted {
		kind, message = notifications.TypeGroupInviteAccepted, "Invitation acceptée"
	}
	s.notify(ctx, inv.InvitedBy, kind, message, map[string]interface{}{
		"group_id":  inv.GroupID,
		"invite_id": inv.ID,
		"user_id":   caller.UserID,
	})
	return &RespondResult{Status: target, Changed: true}, nil
}

// ListInvitations returns the caller's received and sent invitations.
func (s *Service) ListInvitations(ctx context.Context, status string) (*Invitations, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	filter := InviteStatus(strings.ToLower(strings.TrimSpace(status)))

	incoming, err := s.store.ListInvitations(ctx, caller.UserID, true, filter)
	if err != nil {
		return nil, err
	}
	outgoing, err := s.store.ListInvitations(ctx, caller.UserID, false, filter)
	if err != nil {
		return nil, err
	}
	return &Invitations{Incoming: incoming, Outgoing: outgoing}, nil
}

// RemoveMember removes userID from a group. Members may leave, except the
// only owner. The owner may remove anyone; group admins only plain members.
func (s *Service) RemoveMember(ctx context.Context, groupID, userID string) error {
	caller, callerRole, err := s.requireRole(ctx, groupID)
	if err != nil {
		return err
	}

	if userID == caller.UserID {
		if callerRole == RoleOwner {
			owners, err := s.store.CountOwners(ctx, groupID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return apperr.ErrLastOwnerProtected.WithHint("transfer ownership before leaving")
			}
		}
	} else {
		targetRole, err := s.dir.GroupRole(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if targetRole == "" {
			return apperr.ErrNotFound
		}
		switch callerRole {
		case RoleOwner:
		case RoleAdmin:
			if targetRole != RoleMember {
				return apperr.ErrForbidden
			}
		default:
			return apperr.ErrForbidden
		}
	}

	removed, err := s.store.RemoveMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.ErrNotFound
	}

	audit.LogDataMutation(ctx, s.audit, audit.EventTypeGroupMemberRemove, caller.UserID, audit.ResourceTypeGroup, groupID,
		&audit.ChangeDetails{Before: map[string]interface{}{"user_id": userID}}, "member removed")
	return nil
}
