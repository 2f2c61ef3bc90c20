package admin

import (
	"math"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/watchlist/pkg/httputil"
)

// Handlers provides HTTP handlers for user administration
type Handlers struct {
	service *Service
}

// NewHandlers creates new admin handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers all admin routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/users", h.ListUsers).Methods("GET")
	router.HandleFunc("/admin/users", h.UpdateUser).Methods("PATCH")
	router.HandleFunc("/admin/users", h.DeleteUser).Methods("DELETE")
	router.HandleFunc("/admin/promote", h.Promote).Methods("POST")
	router.HandleFunc("/admin/lists", h.GlobalLists).Methods("GET")
	router.HandleFunc("/admin/lists", h.CreateGlobalList).Methods("POST")
	router.HandleFunc("/admin/proposals", h.RecentProposals).Methods("GET")
	router.HandleFunc("/admin/proposals", h.PurgeProposal).Methods("DELETE")
}

// ListUsers handles GET /admin/users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := httputil.ParseQueryClamped(r, "limit", DefaultUserLimit, 1, MaxUserLimit)
	offset := httputil.ParseQueryClamped(r, "offset", 0, 0, math.MaxInt32)
	search := httputil.ParseQueryString(r, "search", "")

	page, err := h.service.ListUsers(r.Context(), search, limit, offset)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, page)
}

// UpdateUser handles PATCH /admin/users
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.service.UpdateUser(r.Context(), req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, nil)
}

// DeleteUser handles DELETE /admin/users
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	var req DeleteUserRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.service.DeleteUser(r.Context(), req.ID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, nil)
}

// Promote handles POST /admin/promote
func (h *Handlers) Promote(w http.ResponseWriter, r *http.Request) {
	var req PromoteRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	id, err := h.service.Promote(r.Context(), req.UsernameOrID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, map[string]interface{}{"id": id})
}

// GlobalLists handles GET /admin/lists
func (h *Handlers) GlobalLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.service.GlobalLists(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"items": lists})
}

// CreateGlobalList handles POST /admin/lists
func (h *Handlers) CreateGlobalList(w http.ResponseWriter, r *http.Request) {
	var req CreateListRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	list, err := h.service.CreateGlobalList(r.Context(), req.Name)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, map[string]interface{}{"list": list})
}

// RecentProposals handles GET /admin/proposals
func (h *Handlers) RecentProposals(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.RecentProposals(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"items": items})
}

// PurgeProposal handles DELETE /admin/proposals
func (h *Handlers) PurgeProposal(w http.ResponseWriter, r *http.Request) {
	var req PurgeRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.service.PurgeProposal(r.Context(), req.ID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, nil)
}
