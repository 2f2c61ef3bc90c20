package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/watchlist/pkg/httputil"
)

// Searcher reads back recorded events.
type Searcher interface {
	Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error)
	GetStats(ctx context.Context, filter SearchFilter) (*AuditStats, error)
}

// Handlers provides HTTP handlers for audit log API
type Handlers struct {
	store Searcher
}

// NewHandlers creates new audit handlers
func NewHandlers(store Searcher) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers audit log routes. The caller guards router with
// the admin middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/audit/events", h.listEvents).Methods("GET")
	router.HandleFunc("/admin/audit/stats", h.getStats).Methods("GET")
}

// listEvents handles GET /admin/audit/events
func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// getStats handles GET /admin/audit/stats
func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context(), parseFilter(r))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func parseTime(r *http.Request, key string) *time.Time {
	if raw := r.URL.Query().Get(key); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return &t
		}
	}
	return nil
}

// parseFilter parses search filter from query parameters
func parseFilter(r *http.Request) SearchFilter {
	query := r.URL.Query()
	filter := SearchFilter{
		StartTime:    parseTime(r, "start_time"),
		EndTime:      parseTime(r, "end_time"),
		ActorID:      strings.TrimSpace(query.Get("actor_id")),
		Status:       EventStatus(query.Get("status")),
		ResourceType: ResourceType(query.Get("resource_type")),
		ResourceID:   query.Get("resource_id"),
		Limit:        httputil.ParseQueryClamped(r, "limit", 100, 1, 500),
		Offset:       httputil.ParseQueryClamped(r, "offset", 0, 0, 1<<30),
	}

	for _, et := range strings.Split(query.Get("event_types"), ",") {
		if et = strings.TrimSpace(et); et != "" {
			filter.EventTypes = append(filter.EventTypes, EventType(et))
		}
	}

	return filter
}
