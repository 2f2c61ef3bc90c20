package news

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/watchlist/pkg/httputil"
	"github.com/platinummonkey/watchlist/pkg/observability"
)

// Handlers serves the news feed
type Handlers struct {
	service *Service
}

// NewHandlers creates new news handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the news routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/news", h.GetNews).Methods("GET")
}

// GetNews handles GET /news. A failing feed yields an empty list and the
// error message, still with status 200.
func (h *Handlers) GetNews(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Latest(r.Context())
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("news feed unavailable")
		httputil.WriteSuccess(w, map[string]interface{}{"items": []Item{}, "error": err.Error()})
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"items": items})
}
