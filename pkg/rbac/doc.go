// Package rbac implements the role and permission registry.
//
// # Roles
//
// Roles are named rows in the roles table. The six built-in roles (owner,
// admin, moderator, member, user, guest) are seeded as system roles and can
// never be deleted; the owner role's permission set cannot be edited either.
// Owners and admins may create custom roles and edit descriptions and
// permission sets of the others.
//
// # Permissions
//
// Permissions come from a closed set:
//
//	delete_proposals_any  purge any proposal
//	delete_profile        delete member accounts
//	manage_lists          create global lists
//	change_username       rename members
//	manage_roles          edit the registry
//
// Unknown keys are rejected with invalid_perms and the offending keys as
// detail.
//
// # Checking permissions
//
// PermissionChecker resolves a member's stored role to its permission set.
// The owner implicitly holds every key. Results are cached per member in an
// expiring LRU; registry writes purge the cache and admin role changes
// invalidate the affected member.
//
//	checker := rbac.NewPermissionChecker(store, 1024, time.Minute, metrics)
//	ok, err := checker.HasPermission(ctx, userID, rbac.PermManageLists)
//
// PermissionMiddleware.RequireAdminOr lets admins through and otherwise
// requires a permission.
package rbac
