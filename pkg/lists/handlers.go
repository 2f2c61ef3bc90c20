package lists

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/httputil"
	"github.com/platinummonkey/watchlist/pkg/identity"
)

// Handlers provides HTTP handlers for lists, list items and watched markers
type Handlers struct {
	service *Service
}

// NewHandlers creates new list handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers all list routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/lists", h.ListLists).Methods("GET")
	router.HandleFunc("/lists", h.CreateList).Methods("POST")
	router.HandleFunc("/lists", h.UpdateList).Methods("PATCH")
	router.HandleFunc("/lists", h.DeleteList).Methods("DELETE")
	router.HandleFunc("/lists/info", h.Info).Methods("GET")
	router.HandleFunc("/lists/ensure-default", h.EnsureDefault).Methods("GET")
	router.HandleFunc("/lists/ensure-watched", h.EnsureWatched).Methods("POST")

	router.HandleFunc("/list-items", h.ListItems).Methods("GET")
	router.HandleFunc("/list-items", h.AddItem).Methods("POST")
	router.HandleFunc("/list-items", h.RemoveItem).Methods("DELETE")

	router.HandleFunc("/watched", h.RecentWatched).Methods("GET")
	router.HandleFunc("/watched", h.MarkWatched).Methods("POST")
	router.HandleFunc("/watched", h.Unwatch).Methods("DELETE")
	router.HandleFunc("/watched/all", h.AllWatched).Methods("GET")
	router.HandleFunc("/watched/ids", h.WatchedIDs).Methods("GET")
}

// ListLists handles GET /lists
func (h *Handlers) ListLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.service.Lists(r.Context(), httputil.ParseQueryFlag(r, "include_global"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"lists": lists})
}

// CreateList handles POST /lists
func (h *Handlers) CreateList(w http.ResponseWriter, r *http.Request) {
	var req CreateListRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	list, err := h.service.CreateList(r.Context(), req.Name, req.IsPublic)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, map[string]interface{}{"list": list})
}

// UpdateList handles PATCH /lists
func (h *Handlers) UpdateList(w http.ResponseWriter, r *http.Request) {
	var req UpdateListRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	list, err := h.service.UpdateList(r.Context(), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, map[string]interface{}{"list": list})
}

// DeleteList handles DELETE /lists
func (h *Handlers) DeleteList(w http.ResponseWriter, r *http.Request) {
	var req IDRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.service.DeleteList(r.Context(), req.ID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, nil)
}

// Info handles GET /lists/info?id=
func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	id := httputil.ParseQueryString(r, "id", "")
	if id == "" {
		httputil.WriteAppError(w, r, apperr.ErrBadPayload.WithHint("id is required"))
		return
	}

	info, err := h.service.Info(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, info)
}

// EnsureDefault handles GET /lists/ensure-default
func (h *Handlers) EnsureDefault(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.EnsureDefault(r.Context(), httputil.ParseQueryString(r, "group_id", ""))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"listId": id})
}

// EnsureWatched handles POST /lists/ensure-watched
func (h *Handlers) EnsureWatched(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.EnsureWatched(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, map[string]interface{}{"listId": id})
}

// ListItems handles GET /list-items?list_id=
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	listID := httputil.ParseQueryString(r, "list_id", "")
	if listID == "" {
		httputil.WriteAppError(w, r, apperr.ErrBadPayload.WithHint("list_id is required"))
		return
	}

	items, err := h.service.Items(r.Context(), listID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"items": items})
}

// AddItem handles POST /list-items
func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	duplicate, err := h.service.AddItem(r.Context(), req.ListID, req.Anime)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if duplicate {
		httputil.WriteOK(w, map[string]interface{}{"duplicate": true})
		return
	}
	httputil.WriteOK(w, nil)
}

// RemoveItem handles DELETE /list-items
func (h *Handlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	var req IDRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.service.RemoveItem(r.Context(), req.ID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, nil)
}

// RecentWatched handles GET /watched?limit=
func (h *Handlers) RecentWatched(w http.ResponseWriter, r *http.Request) {
	limit := httputil.ParseQueryClamped(r, "limit", DefaultWatchedLimit, 1, MaxWatchedLimit)
	h.writeWatched(w, r, "", limit)
}

// AllWatched handles GET /watched/all
func (h *Handlers) AllWatched(w http.ResponseWriter, r *http.Request) {
	h.writeWatched(w, r, "", 0)
}

func (h *Handlers) writeWatched(w http.ResponseWriter, r *http.Request, listID string, limit int) {
	items, err := h.service.Watched(r.Context(), listID, limit)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"items": items})
}

// WatchedIDs handles GET /watched/ids. By default it returns the distinct
// anime ids; with list_id or mode=items it returns the markers.
func (h *Handlers) WatchedIDs(w http.ResponseWriter, r *http.Request) {
	if identity.FromContext(r.Context()) == nil {
		httputil.WriteSuccess(w, map[string]interface{}{"ids": []int64{}, "items": []Watched{}})
		return
	}

	listID := httputil.ParseQueryString(r, "list_id", "")
	limit := httputil.ParseQueryClamped(r, "limit", 0, 0, MaxWatchedIDsLimit)

	items, err := h.service.Watched(r.Context(), listID, limit)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if listID != "" || httputil.ParseQueryString(r, "mode", "") == "items" {
		httputil.WriteSuccess(w, map[string]interface{}{"items": items})
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"ids": DistinctAnimeIDs(items)})
}

// MarkWatched handles POST /watched
func (h *Handlers) MarkWatched(w http.ResponseWriter, r *http.Request) {
	var req WatchRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.service.MarkWatched(r.Context(), req.Anime, req.ListID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, nil)
}

// Unwatch handles DELETE /watched
func (h *Handlers) Unwatch(w http.ResponseWriter, r *http.Request) {
	var req UnwatchRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.service.Unwatch(r.Context(), req.AnimeID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, nil)
}
