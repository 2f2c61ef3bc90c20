package proposals

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/watchlist/pkg/httputil"
)

// Handlers provides HTTP handlers for proposals
type Handlers struct {
	service *Service
}

// NewHandlers creates new proposal handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers all proposal routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/proposals", h.ListProposals).Methods("GET")
	router.HandleFunc("/proposals", h.CreateProposal).Methods("POST")
	router.HandleFunc("/proposals", h.CancelProposal).Methods("DELETE")
	router.HandleFunc("/proposals/buckets", h.GetBuckets).Methods("GET")
	router.HandleFunc("/proposals/update", h.UpdateStatus).Methods("PATCH")
}

// ListProposals handles GET /proposals?list_id=
func (h *Handlers) ListProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := h.service.List(r.Context(), httputil.ParseQueryString(r, "list_id", ""))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"proposals": proposals})
}

// GetBuckets handles GET /proposals/buckets?list_id=
func (h *Handlers) GetBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.service.Buckets(r.Context(), httputil.ParseQueryString(r, "list_id", ""))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, buckets)
}

// CreateProposal handles POST /proposals
func (h *Handlers) CreateProposal(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	res, err := h.service.Create(r.Context(), req.ListID, req.Anime)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if res.AlreadyPending {
		httputil.WriteOK(w, map[string]interface{}{"info": "already_pending"})
		return
	}
	httputil.WriteOK(w, map[string]interface{}{"proposal": res.Proposal})
}

// UpdateStatus handles PATCH /proposals/update
func (h *Handlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	upd, err := h.service.UpdateStatus(r.Context(), req.ID, req.Status)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, map[string]interface{}{"status": upd.Status})
}

// CancelProposal handles DELETE /proposals
func (h *Handlers) CancelProposal(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	upd, err := h.service.Cancel(r.Context(), req.ID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if upd.Deleted {
		httputil.WriteOK(w, map[string]interface{}{"deleted": true})
		return
	}
	httputil.WriteOK(w, map[string]interface{}{"status": upd.Status})
}
