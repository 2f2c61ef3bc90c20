package identity

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/watchlist/pkg/httputil"
)

// Handlers serves the identity endpoints.
type Handlers struct{}

// NewHandlers creates identity handlers.
func NewHandlers() *Handlers {
	return &Handlers{}
}

// RegisterRoutes registers identity routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/me", h.me).Methods("GET")
	router.HandleFunc("/admin/whoami", h.whoami).Methods("GET")
}

type meUser struct {
	ID    string  `json:"id"`
	Email *string `json:"email"`
}

// me handles GET /auth/me
func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	c := FromContext(r.Context())
	if c == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"user": nil})
		return
	}

	user := meUser{ID: c.UserID}
	if c.Email != "" {
		email := c.Email
		user.Email = &email
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// whoami handles GET /admin/whoami. Anonymous callers are simply not admins.
func (h *Handlers) whoami(w http.ResponseWriter, r *http.Request) {
	c := FromContext(r.Context())
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"is_admin": c != nil && c.IsAdmin})
}
