package profiles

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/watchlist/pkg/gateway"
	"github.com/platinummonkey/watchlist/pkg/httputil"
	"github.com/platinummonkey/watchlist/pkg/identity"
)

// Handlers provides HTTP handlers for profiles and member lookup.
type Handlers struct {
	service *Service
}

// NewHandlers creates profile handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers profile routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/profile", h.GetProfile).Methods("GET")
	router.HandleFunc("/profile", h.UpdateProfile).Methods("PATCH")
	router.HandleFunc("/profile/check-username", h.CheckUsername).Methods("GET")
	router.HandleFunc("/users/suggest", h.Suggest).Methods("GET")
	router.HandleFunc("/users", h.ListUsers).Methods("GET")
}

// GetProfile handles GET /profile
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	caller, err := identity.Require(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	profile, err := h.service.Me(r.Context(), caller.UserID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"profile": profile})
}

// UpdateProfile handles PATCH /profile
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, err := identity.Require(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req struct {
		Username string `json:"username"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	name, err := h.service.UpdateUsername(r.Context(), caller.UserID, req.Username)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, map[string]interface{}{"username": name})
}

// CheckUsername handles GET /profile/check-username?u=
func (h *Handlers) CheckUsername(w http.ResponseWriter, r *http.Request) {
	var userID string
	if c := identity.FromContext(r.Context()); c != nil {
		userID = c.UserID
	}

	available, err := h.service.UsernameAvailable(r.Context(), userID, r.URL.Query().Get("u"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"available": available})
}

// Suggest handles GET /users/suggest?q=. Anonymous callers get no
// suggestions.
func (h *Handlers) Suggest(w http.ResponseWriter, r *http.Request) {
	if identity.FromContext(r.Context()) == nil {
		httputil.WriteSuccess(w, map[string]interface{}{"items": []gateway.Suggestion{}})
		return
	}

	items, err := h.service.Suggest(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"items": items})
}

// ListUsers handles GET /users?q=&limit=
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	if _, err := identity.Require(r.Context()); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	limit := httputil.ParseQueryClamped(r, "limit", SearchLimitDefault, 1, SearchLimitMax)
	items, err := h.service.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"items": items})
}
