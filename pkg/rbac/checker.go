package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/watchlist/pkg/observability"
	"github.com/platinummonkey/watchlist/pkg/roles"
)

// Checker resolves the effective permissions of members.
type Checker interface {
	// EffectivePermissions returns every permission userID holds.
	EffectivePermissions(ctx context.Context, userID string) ([]Permission, error)

	// HasPermission reports whether userID holds perm.
	HasPermission(ctx context.Context, userID string, perm Permission) (bool, error)

	// Invalidate drops cached permissions of the given members.
	Invalidate(userIDs ...string)

	// InvalidateAll drops every cached entry.
	InvalidateAll()
}

// PermissionChecker implements Checker over the registry with an expiring
// LRU cache keyed by member.
type PermissionChecker struct {
	store   *Store
	cache   *expirable.LRU[string, []Permission]
	metrics *observability.Metrics
}

// NewPermissionChecker creates a permission checker. A non-positive ttl or
// size disables caching.
func NewPermissionChecker(store *Store, size int, ttl time.Duration, metrics *observability.Metrics) *PermissionChecker {
	pc := &PermissionChecker{store: store, metrics: metrics}
	if size > 0 && ttl > 0 {
		pc.cache = expirable.NewLRU[string, []Permission](size, nil, ttl)
	}
	return pc
}

// EffectivePermissions implements Checker. The owner holds every key. The
// stored role is reduced to its canonical name first, so built-in spellings
// and custom roles resolve the same way the registry stores them.
func (pc *PermissionChecker) EffectivePermissions(ctx context.Context, userID string) ([]Permission, error) {
	if pc.cache != nil {
		if perms, ok := pc.cache.Get(userID); ok {
			pc.metrics.ObserveCache("permissions", true)
			return perms, nil
		}
		pc.metrics.ObserveCache("permissions", false)
	}

	raw, found, err := pc.store.MemberRole(ctx, userID)
	if err != nil {
		return nil, err
	}

	var perms []Permission
	role := roles.Parse(raw)
	switch {
	case !found:
		perms, err = pc.store.RolePermissions(ctx, string(roles.User))
	case role == roles.Owner:
		perms = AllPermissions()
	default:
		perms, err = pc.store.RolePermissions(ctx, string(role))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}

	if pc.cache != nil {
		pc.cache.Add(userID, perms)
	}
	return perms, nil
}

// HasPermission implements Checker.
func (pc *PermissionChecker) HasPermission(ctx context.Context, userID string, perm Permission) (bool, error) {
	perms, err := pc.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == perm {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate implements Checker.
func (pc *PermissionChecker) Invalidate(userIDs ...string) {
	if pc == nil || pc.cache == nil {
		return
	}
	for _, id := range userIDs {
		pc.cache.Remove(id)
	}
}

// InvalidateAll implements Checker.
func (pc *PermissionChecker) InvalidateAll() {
	if pc == nil || pc.cache == nil {
		return
	}
	pc.cache.Purge()
}
