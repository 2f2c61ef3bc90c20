package notifications

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/httputil"
	"github.com/platinummonkey/watchlist/pkg/identity"
)

// Handlers provides HTTP handlers for notifications
type Handlers struct {
	service *Service
}

// NewHandlers creates new notification handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers notification routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/notifications", h.List).Methods("GET")
	router.HandleFunc("/notifications", h.MarkRead).Methods("PATCH")
}

// List handles GET /notifications
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	if httputil.ParseQueryFlag(r, "unread") {
		n, err := h.service.UnreadCount(r.Context())
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		httputil.WriteSuccess(w, map[string]interface{}{"unreadCount": n})
		return
	}

	var cursor *time.Time
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			httputil.WriteAppError(w, r, apperr.ErrBadPayload.WithHint("cursor must be an RFC3339 timestamp"))
			return
		}
		cursor = &t
	}
	limit := httputil.ParseQueryClamped(r, "limit", DefaultLimit, 1, MaxLimit)

	page, err := h.service.Page(r.Context(), limit, cursor)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, page)
}

// MarkRead handles PATCH /notifications
func (h *Handlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	if _, err := identity.Require(r.Context()); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req MarkReadRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.service.MarkRead(r.Context(), req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, nil)
}
