package rbac

import (
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/watchlist/pkg/apperr"
)

// Permission is a key from the closed permission set.
type Permission string

const (
	PermDeleteProposalsAny Permission = "delete_proposals_any"
	PermDeleteProfile      Permission = "delete_profile"
	PermManageLists        Permission = "manage_lists"
	PermChangeUsername     Permission = "change_username"
	PermManageRoles        Permission = "manage_roles"
)

var allPermissions = []Permission{
	PermDeleteProposalsAny,
	PermDeleteProfile,
	PermManageLists,
	PermChangeUsername,
	PermManageRoles,
}

// AllPermissions returns every permission key.
func AllPermissions() []Permission {
	out := make([]Permission, len(allPermissions))
	copy(out, allPermissions)
	return out
}

// IsValid reports whether p belongs to the permission set.
func (p Permission) IsValid() bool {
	for _, known := range allPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePermissions validates raw keys. Unknown keys yield invalid_perms with
// the offending keys as detail. Duplicates are dropped and the result is
// sorted.
func ParsePermissions(raw []string) ([]Permission, error) {
	seen := make(map[Permission]bool, len(raw))
	var invalid []string
	out := make([]Permission, 0, len(raw))
	for _, r := range raw {
		p := Permission(strings.TrimSpace(r))
		if !p.IsValid() {
			invalid = append(invalid, r)
			continue
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	if len(invalid) > 0 {
		return nil, apperr.ErrInvalidPerms.WithDetail(invalid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Role is a registry role with its permission set.
type Role struct {
	Name        string       `json:"name"`
	Description *string      `json:"description"`
	IsSystem    bool         `json:"is_system"`
	CreatedAt   time.Time    `json:"created_at"`
	Perms       []Permission `json:"perms"`
}

// RoleList is the registry listing.
type RoleList struct {
	Items    []Role       `json:"items"`
	AllPerms []Permission `json:"allPerms"`
}

// CreateRoleRequest creates a custom role.
type CreateRoleRequest struct {
	Name        string   `json:"name" validate:"notblank_trim,max=64"`
	Description *string  `json:"description"`
	Perms       []string `json:"perms"`
}

// UpdateRoleRequest edits a role. Nil fields are left untouched; a non-nil
// Perms replaces the whole set.
type UpdateRoleRequest struct {
	Name        string    `json:"name" validate:"notblank_trim"`
	Description *string   `json:"description"`
	Perms       *[]string `json:"perms"`
}

// DeleteRoleRequest deletes a custom role.
type DeleteRoleRequest struct {
	Name string `json:"name" validate:"notblank_trim"`
}
