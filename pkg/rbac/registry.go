package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/audit"
	"github.com/platinummonkey/watchlist/pkg/identity"
	"github.com/platinummonkey/watchlist/pkg/observability"
	"github.com/platinummonkey/watchlist/pkg/roles"
)

// Registry manages roles and their permission sets. Every operation is
// reserved to the owner and to admins.
type Registry struct {
	store   *Store
	checker Checker
	audit   audit.Logger
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRegistry creates a registry service.
func NewRegistry(store *Store, checker Checker, auditLogger audit.Logger, logger *observability.Logger, metrics *observability.Metrics) *Registry {
	if auditLogger == nil {
		auditLogger = audit.NoOp()
	}
	if logger == nil {
		logger = observability.Default()
	}
	return &Registry{store: store, checker: checker, audit: auditLogger, logger: logger, metrics: metrics}
}

func (r *Registry) authorize(ctx context.Context, operation string) (*identity.Caller, error) {
	caller, err := identity.Require(ctx)
	if err == nil && !caller.CanManageRoles() {
		err = apperr.ErrForbidden
	}
	if err != nil {
		r.metrics.ObserveAuthz(operation, string(apperr.KindOf(err)))
		if errors.Is(err, apperr.ErrForbidden) {
			audit.LogDenied(ctx, r.audit, audit.EventTypeAccessDenied, audit.ResourceTypeRole, operation, string(apperr.KindForbidden))
		}
		return nil, err
	}
	return caller, nil
}

func (r *Registry) deny(operation string, err error) error {
	r.metrics.ObserveAuthz(operation, string(apperr.KindOf(err)))
	return err
}

// ListRoles returns every role, system roles first, plus the permission keys.
func (r *Registry) ListRoles(ctx context.Context) (*RoleList, error) {
	if _, err := r.authorize(ctx, "list_roles"); err != nil {
		return nil, err
	}

	items, err := r.store.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Role{}
	}
	return &RoleList{Items: items, AllPerms: AllPermissions()}, nil
}

// CreateRole creates a custom role.
func (r *Registry) CreateRole(ctx context.Context, req CreateRoleRequest) (*Role, error) {
	caller, err := r.authorize(ctx, "create_role")
	if err != nil {
		return nil, err
	}

	name := canonicalName(req.Name)
	if name == "" {
		return nil, apperr.ErrBadPayload.WithHint("name is required")
	}
	perms, err := ParsePermissions(req.Perms)
	if err != nil {
		return nil, r.deny("create_role", err)
	}

	if _, err := r.store.GetRole(ctx, name); err == nil {
		return nil, r.deny("create_role", apperr.ErrConflict.WithHint("role already exists"))
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	role := &Role{Name: name, Description: req.Description, Perms: perms}
	if err := r.store.CreateRole(ctx, role); err != nil {
		return nil, r.deny("create_role", err)
	}
	r.metrics.ObserveAuthz("create_role", "")
	r.checker.InvalidateAll()

	audit.LogDataMutation(ctx, r.audit, audit.EventTypeRoleCreate, caller.UserID, audit.ResourceTypeRole, name,
		&audit.ChangeDetails{After: map[string]interface{}{"perms": perms}}, "role created")
	return role, nil
}

// UpdateRole edits the description and/or the permission set of a role.
// The owner role is locked.
func (r *Registry) UpdateRole(ctx context.Context, req UpdateRoleRequest) error {
	caller, err := r.authorize(ctx, "update_role")
	if err != nil {
		return err
	}

	name := canonicalName(req.Name)
	if name == "" {
		return apperr.ErrBadPayload.WithHint("name is required")
	}
	if name == string(roles.Owner) {
		return r.deny("update_role", apperr.ErrOwnerLocked)
	}

	existing, err := r.store.GetRole(ctx, name)
	if err != nil {
		return r.deny("update_role", err)
	}

	var perms []Permission
	if req.Perms != nil {
		perms, err = ParsePermissions(*req.Perms)
		if err != nil {
			return r.deny("update_role", err)
		}
	}

	if err := r.store.UpdateRole(ctx, name, req.Description, perms, req.Perms != nil); err != nil {
		return err
	}
	r.metrics.ObserveAuthz("update_role", "")
	r.checker.InvalidateAll()

	changes := &audit.ChangeDetails{
		Before: map[string]interface{}{"perms": existing.Perms},
		After:  map[string]interface{}{},
	}
	if req.Perms != nil {
		changes.After["perms"] = perms
	}
	if req.Description != nil {
		changes.After["description"] = *req.Description
	}
	audit.LogDataMutation(ctx, r.audit, audit.EventTypeRoleUpdate, caller.UserID, audit.ResourceTypeRole, name, changes, "role updated")
	return nil
}

// DeleteRole deletes a custom role no member holds.
func (r *Registry) DeleteRole(ctx context.Context, name string) error {
	caller, err := r.authorize(ctx, "delete_role")
	if err != nil {
		return err
	}

	name = canonicalName(name)
	if name == "" {
		return apperr.ErrBadPayload.WithHint("name is required")
	}

	role, err := r.store.GetRole(ctx, name)
	if err != nil {
		return r.deny("delete_role", err)
	}
	if role.IsSystem || name == string(roles.Owner) {
		return r.deny("delete_role", apperr.ErrSystemRoleLocked)
	}

	n, err := r.store.CountMembers(ctx, name)
	if err != nil {
		return err
	}
	if n > 0 {
		return r.deny("delete_role", apperr.ErrRoleInUse.WithDetail(map[string]int{"members": n}))
	}

	if err := r.store.DeleteRole(ctx, name); err != nil {
		return err
	}
	r.metrics.ObserveAuthz("delete_role", "")
	r.checker.InvalidateAll()

	audit.LogDataMutation(ctx, r.audit, audit.EventTypeRoleDelete, caller.UserID, audit.ResourceTypeRole, name, nil, "role deleted")
	r.logger.WithFields(map[string]interface{}{"role": name, "actor_id": caller.UserID}).Info("role deleted")
	return nil
}

// MemberPermissions returns the effective permissions of userID.
func (r *Registry) MemberPermissions(ctx context.Context, userID string) ([]Permission, error) {
	if _, err := r.authorize(ctx, "member_permissions"); err != nil {
		return nil, err
	}
	return r.checker.EffectivePermissions(ctx, userID)
}

// canonicalName is the stored form of a role name: trimmed and lowercased,
// with built-in spellings folded onto the built-in role. Member profiles hold
// the same form, so lookups never depend on the case a caller typed.
func canonicalName(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	return string(roles.Parse(raw))
}
