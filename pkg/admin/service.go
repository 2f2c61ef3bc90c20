package admin

import (
	"context"
	"errors"
	"strings"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/audit"
	"github.com/platinummonkey/watchlist/pkg/gateway"
	"github.com/platinummonkey/watchlist/pkg/identity"
	"github.com/platinummonkey/watchlist/pkg/observability"
	"github.com/platinummonkey/watchlist/pkg/profiles"
	"github.com/platinummonkey/watchlist/pkg/rbac"
	"github.com/platinummonkey/watchlist/pkg/roles"
	"github.com/platinummonkey/watchlist/pkg/validation"
)

// FlagInvalidator drops cached identity flags.
type FlagInvalidator interface {
	Invalidate(ctx context.Context, userIDs ...string)
}

// RoleLookup finds registry roles.
type RoleLookup interface {
	GetRole(ctx context.Context, name string) (*rbac.Role, error)
}

// UserLister pages members.
type UserLister interface {
	AdminListUsers(ctx context.Context, search string, limit, offset int) ([]gateway.UserRow, int64, error)
}

// Deps are the collaborators of the admin service.
type Deps struct {
	Profiles *profiles.Store
	Store    *Store
	Users    UserLister
	Roles    RoleLookup
	Accounts identity.AccountDeleter
	Flags    FlagInvalidator
	Perms    rbac.Checker
	Audit    audit.Logger
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

// Service implements user administration under the role hierarchy.
type Service struct {
	Deps
}

// NewService creates an admin service.
func NewService(deps Deps) *Service {
	if deps.Audit == nil {
		deps.Audit = audit.NoOp()
	}
	if deps.Logger == nil {
		deps.Logger = observability.Default()
	}
	return &Service{Deps: deps}
}

// observe records the outcome of an admin operation. Refusals are also
// written to the audit trail.
func (s *Service) observe(ctx context.Context, operation, targetID string, err error) {
	kind := ""
	if err != nil {
		kind = string(apperr.KindOf(err))
	}
	s.Metrics.ObserveAuthz(operation, kind)
	if err != nil && apperr.From(err).HTTPStatus() == 403 {
		audit.LogDenied(ctx, s.Audit, audit.EventTypeAccessDenied, audit.ResourceTypeUser, targetID, kind)
	}
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.Flags != nil {
		s.Flags.Invalidate(ctx, userID)
	}
	if s.Perms != nil {
		s.Perms.Invalidate(userID)
	}
}

// ListUsers pages members newest first.
func (s *Service) ListUsers(ctx context.Context, search string, limit, offset int) (*UserPage, error) {
	if _, err := identity.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxUserLimit {
		limit = MaxUserLimit
	}
	if offset < 0 {
		offset = 0
	}

	items, total, err := s.Users.AdminListUsers(ctx, strings.TrimSpace(search), limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []gateway.UserRow{}
	}
	return &UserPage{Items: items, Total: total}, nil
}

// UpdateUser applies a role, admin-flag or username change to a member.
func (s *Service) UpdateUser(ctx context.Context, req UpdateUserRequest) (err error) {
	defer func() { s.observe(ctx, "update_user", req.ID, err) }()

	actor, err := identity.RequireAdmin(ctx)
	if err != nil {
		return err
	}

	target, err := s.Profiles.Get(ctx, req.ID)
	if err != nil {
		return err
	}

	patch, err := s.plan(ctx, actor, target, req)
	if err != nil {
		return err
	}

	if patch.Username != nil {
		taken, err := s.Profiles.UsernameTaken(ctx, *patch.Username, target.ID)
		if err != nil {
			return err
		}
		if taken {
			return apperr.ErrUsernameTaken
		}
	}

	if err := s.Profiles.Apply(ctx, target.ID, patch); err != nil {
		return err
	}
	s.invalidate(ctx, target.ID)

	audit.LogDataMutation(ctx, s.Audit, audit.EventTypeAdminUserUpdate, actor.UserID, audit.ResourceTypeUser, target.ID,
		patchChanges(target, patch), "member updated")
	return nil
}

// plan runs the hierarchy rules in order and derives the persisted patch.
func (s *Service) plan(ctx context.Context, actor *identity.Caller, target *profiles.Profile, req UpdateUserRequest) (profiles.Patch, error) {
	var patch profiles.Patch
	self := actor.UserID == target.ID
	targetRole, _ := roles.Normalize(target.Role)
	targetRank := roles.RankOf(targetRole)

	if targetRole == roles.Owner && !self {
		return patch, apperr.ErrForbiddenOwnerOnly
	}
	if err := roles.CanActOn(actor.Rank, actor.UserID, targetRank, target.ID); err != nil {
		return patch, err
	}

	changingRole := req.Role != nil
	var newRole roles.Role
	if changingRole {
		newRole = roles.Parse(*req.Role)
		if !roles.IsBuiltin(newRole) {
			if err := s.requireRegistryRole(ctx, string(newRole)); err != nil {
				return patch, err
			}
		}
		if err := roles.CanGrant(actor.Rank, actor.UserID, target.ID, newRole, actor.IsOwner); err != nil {
			return patch, err
		}
	}

	if targetRole == roles.Owner && self {
		demote := (changingRole && newRole != roles.Owner) || (req.IsAdmin != nil && !*req.IsAdmin)
		if demote {
			owners, err := s.Profiles.CountOwners(ctx)
			if err != nil {
				return patch, err
			}
			if owners <= 1 {
				return patch, apperr.ErrLastOwnerProtected
			}
		}
	}

	if changingRole {
		role := string(newRole)
		isAdmin := roles.IsAdminRole(newRole)
		patch.Role = &role
		patch.IsAdmin = &isAdmin
	}

	if req.IsAdmin != nil {
		if targetRole == roles.Owner && !*req.IsAdmin {
			return patch, apperr.ErrOwnerAlwaysAdmin
		}
		if !changingRole {
			switch {
			case *req.IsAdmin && targetRole == roles.Owner:
				// the owner already holds the flag
			case *req.IsAdmin:
				if actor.Rank <= roles.RankAdmin {
					return patch, apperr.ErrForbiddenCannotGrantEqualOrHigher
				}
				role, isAdmin := string(roles.Admin), true
				patch.Role, patch.IsAdmin = &role, &isAdmin
			default:
				role, isAdmin := string(roles.User), false
				patch.Role, patch.IsAdmin = &role, &isAdmin
			}
		}
	}

	if req.Username != nil {
		name, err := profiles.NormalizeUsername(*req.Username)
		if err != nil {
			return patch, err
		}
		patch.Username = &name
	}

	if patch.Empty() {
		return patch, apperr.ErrNoChanges
	}
	return patch, nil
}

func (s *Service) requireRegistryRole(ctx context.Context, name string) error {
	if s.Roles == nil {
		return apperr.ErrBadPayload.WithHint("unknown role")
	}
	_, err := s.Roles.GetRole(ctx, name)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.ErrBadPayload.WithHint("unknown role")
	}
	return err
}

func patchChanges(before *profiles.Profile, patch profiles.Patch) *audit.ChangeDetails {
	c := &audit.ChangeDetails{Before: map[string]interface{}{}, After: map[string]interface{}{}}
	if patch.Role != nil {
		c.Before["role"] = before.Role
		c.After["role"] = *patch.Role
	}
	if patch.IsAdmin != nil {
		c.Before["is_admin"] = before.IsAdmin
		c.After["is_admin"] = *patch.IsAdmin
	}
	if patch.Username != nil {
		if before.Username != nil {
			c.Before["username"] = *before.Username
		}
		c.After["username"] = *patch.Username
	}
	return c
}

// DeleteUser deletes a member account at the identity provider, then its
// profile.
func (s *Service) DeleteUser(ctx context.Context, id string) (err error) {
	defer func() { s.observe(ctx, "delete_user", id, err) }()

	actor, err := identity.RequireAdmin(ctx)
	if err != nil {
		return err
	}

	target, err := s.Profiles.Get(ctx, id)
	if err != nil {
		return err
	}
	targetRole, _ := roles.Normalize(target.Role)
	if err := roles.CanActOn(actor.Rank, actor.UserID, roles.RankOf(targetRole), target.ID); err != nil {
		return err
	}

	if targetRole == roles.Owner {
		if !actor.IsOwner {
			return apperr.ErrForbiddenOwnerOnly
		}
		owners, err := s.Profiles.CountOwners(ctx)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return apperr.ErrLastOwnerProtected
		}
	}

	if s.Accounts == nil {
		return apperr.ErrServiceRoleAbsent.WithHint(identity.HintServiceKeyMissing)
	}
	if err := s.Accounts.DeleteUser(ctx, target.ID); err != nil {
		return err
	}
	if err := s.Profiles.Delete(ctx, target.ID); err != nil {
		return err
	}
	s.invalidate(ctx, target.ID)

	audit.LogAdminAction(ctx, s.Audit, audit.EventTypeAdminUserDelete, actor.UserID, target.ID, "member deleted")
	s.Logger.WithFields(map[string]interface{}{
		"actor_id":  actor.UserID,
		"target_id": target.ID,
	}).Info("member deleted")
	return nil
}

// Promote grants the admin flag to the member named by a uuid or a
// username, through the same rules as UpdateUser.
func (s *Service) Promote(ctx context.Context, usernameOrID string) (string, error) {
	if _, err := identity.RequireAdmin(ctx); err != nil {
		return "", err
	}

	key := strings.TrimSpace(usernameOrID)
	id := key
	if !validation.IsUUID(key) {
		p, err := s.Profiles.GetByUsername(ctx, key)
		if err != nil {
			return "", err
		}
		id = p.ID
	}

	isAdmin := true
	if err := s.UpdateUser(ctx, UpdateUserRequest{ID: id, IsAdmin: &isAdmin}); err != nil {
		return "", err
	}
	audit.LogAdminAction(ctx, s.Audit, audit.EventTypeAdminUserPromote, identity.FromContext(ctx).UserID, id, "member promoted")
	return id, nil
}

// requireAdminOr allows admins and members holding perm.
func (s *Service) requireAdminOr(ctx context.Context, operation string, perm rbac.Permission) (*identity.Caller, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	if caller.IsAdmin {
		return caller, nil
	}
	if s.Perms != nil {
		ok, err := s.Perms.HasPermission(ctx, caller.UserID, perm)
		if err != nil {
			return nil, err
		}
		if ok {
			return caller, nil
		}
	}
	s.observe(ctx, operation, caller.UserID, apperr.ErrForbidden)
	return nil, apperr.ErrForbidden
}

// CreateGlobalList creates a public list visible to every member.
func (s *Service) CreateGlobalList(ctx context.Context, name string) (*GlobalList, error) {
	caller, err := s.requireAdminOr(ctx, "create_global_list", rbac.PermManageLists)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.ErrBadPayload.WithHint("name is required")
	}

	l, err := s.Store.CreateGlobalList(ctx, caller.UserID, name)
	if err != nil {
		return nil, err
	}
	audit.LogDataMutation(ctx, s.Audit, audit.EventTypeAdminGlobalList, caller.UserID, audit.ResourceTypeList, l.ID,
		&audit.ChangeDetails{After: map[string]interface{}{"name": name}}, "global list created")
	return l, nil
}

// GlobalLists returns every global list.
func (s *Service) GlobalLists(ctx context.Context) ([]GlobalList, error) {
	if _, err := s.requireAdminOr(ctx, "global_lists", rbac.PermManageLists); err != nil {
		return nil, err
	}
	return s.Store.GlobalLists(ctx)
}

// RecentProposals returns the latest proposals of every list.
func (s *Service) RecentProposals(ctx context.Context) ([]ProposalRow, error) {
	if _, err := s.requireAdminOr(ctx, "recent_proposals", rbac.PermDeleteProposalsAny); err != nil {
		return nil, err
	}
	return s.Store.RecentProposals(ctx, RecentProposals)
}

// PurgeProposal hard-deletes a proposal.
func (s *Service) PurgeProposal(ctx context.Context, id string) error {
	caller, err := s.requireAdminOr(ctx, "purge_proposal", rbac.PermDeleteProposalsAny)
	if err != nil {
		return err
	}

	found, err := s.Store.DeleteProposal(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return apperr.ErrNotFound
	}
	audit.LogDataMutation(ctx, s.Audit, audit.EventTypeAdminPurge, caller.UserID, audit.ResourceTypeProposal, id, nil, "proposal purged")
	return nil
}
