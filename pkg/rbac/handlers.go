package rbac

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/watchlist/pkg/httputil"
)

// Handlers provides HTTP handlers for the role registry
type Handlers struct {
	registry *Registry
}

// NewHandlers creates new registry handlers
func NewHandlers(registry *Registry) *Handlers {
	return &Handlers{registry: registry}
}

// RegisterRoutes registers all registry routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/admin/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/admin/roles", h.UpdateRole).Methods("PATCH")
	router.HandleFunc("/admin/roles", h.DeleteRole).Methods("DELETE")
	router.HandleFunc("/admin/users/{id}/permissions", h.GetUserPermissions).Methods("GET")
}

// ListRoles handles GET /admin/roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	list, err := h.registry.ListRoles(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// CreateRole handles POST /admin/roles
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	role, err := h.registry.CreateRole(r.Context(), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, map[string]interface{}{"role": role})
}

// UpdateRole handles PATCH /admin/roles
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoleRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.registry.UpdateRole(r.Context(), req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, nil)
}

// DeleteRole handles DELETE /admin/roles
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	var req DeleteRoleRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.registry.DeleteRole(r.Context(), req.Name); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, nil)
}

// GetUserPermissions handles GET /admin/users/{id}/permissions
func (h *Handlers) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	perms, err := h.registry.MemberPermissions(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"user_id": userID, "perms": perms})
}
