package catalog

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/watchlist/pkg/httputil"
)

// Handlers serves anime search and the season calendar
type Handlers struct {
	client *Client
	now    func() time.Time
}

// NewHandlers creates new catalog handlers
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client, now: time.Now}
}

// RegisterRoutes registers the catalog routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/search", h.Search).Methods("GET")
	router.HandleFunc("/calendar", h.Calendar).Methods("GET")
}

// Search handles GET /search?q=
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	items, err := h.client.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"items": items})
}

// Calendar handles GET /calendar. With a valid season and year it returns
// that season; otherwise the next four seasons grouped.
func (h *Handlers) Calendar(w http.ResponseWriter, r *http.Request) {
	season, okSeason := ParseSeason(r.URL.Query().Get("season"))
	year, errYear := strconv.Atoi(r.URL.Query().Get("year"))

	if okSeason && errYear == nil {
		items, err := h.client.Season(r.Context(), season, year)
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		httputil.WriteSuccess(w, map[string]interface{}{"season": season, "year": year, "items": items})
		return
	}

	groups, err := h.client.Calendar(r.Context(), h.now())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"groups": groups})
}
