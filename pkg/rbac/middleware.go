package rbac

import (
	"net/http"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/httputil"
	"github.com/platinummonkey/watchlist/pkg/identity"
)

// PermissionMiddleware gates routes on registry permissions.
type PermissionMiddleware struct {
	checker Checker
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(checker Checker) *PermissionMiddleware {
	return &PermissionMiddleware{checker: checker}
}

// RequireAdminOr lets admins through and otherwise requires perm.
func (pm *PermissionMiddleware) RequireAdminOr(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := identity.Require(r.Context())
			if err != nil {
				httputil.WriteAppError(w, r, err)
				return
			}
			if caller.IsAdmin {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := pm.checker.HasPermission(r.Context(), caller.UserID, perm)
			if err != nil {
				httputil.WriteAppError(w, r, err)
				return
			}
			if !allowed {
				httputil.WriteAppError(w, r, apperr.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminOr reports whether the caller is an admin or holds perm.
func AdminOr(r *http.Request, checker Checker, perm Permission) (bool, error) {
	caller, err := identity.Require(r.Context())
	if err != nil {
		return false, err
	}
	if caller.IsAdmin {
		return true, nil
	}
	return checker.HasPermission(r.Context(), caller.UserID, perm)
}
