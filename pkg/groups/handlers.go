package groups

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/httputil"
)

// Handlers provides HTTP handlers for groups
type Handlers struct {
	service *Service
}

// NewHandlers creates new group handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers all group routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/groups", h.ListMyGroups).Methods("GET")
	router.HandleFunc("/groups", h.CreateGroup).Methods("POST")
	router.HandleFunc("/groups/members", h.ListMembers).Methods("GET")
	router.HandleFunc("/groups/members", h.AddMember).Methods("POST")
	router.HandleFunc("/groups/members", h.RemoveMember).Methods("DELETE")
	router.HandleFunc("/groups/invites", h.Invite).Methods("POST")
	router.HandleFunc("/groups/invitations", h.ListInvitations).Methods("GET")
	router.HandleFunc("/groups/invitations", h.RespondInvite).Methods("PATCH")
}

// ListMyGroups handles GET /groups
func (h *Handlers) ListMyGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListMyGroups(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"groups": groups})
}

// CreateGroup handles POST /groups
func (h *Handlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	group, err := h.service.CreateGroup(r.Context(), req.Name)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, map[string]interface{}{"group": group})
}

// ListMembers handles GET /groups/members?group_id=
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	groupID := httputil.ParseQueryString(r, "group_id", "")
	if groupID == "" {
		httputil.WriteAppError(w, r, apperr.ErrBadPayload.WithHint("group_id is required"))
		return
	}

	members, err := h.service.ListMembers(r.Context(), groupID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"members": members})
}

// AddMember handles POST /groups/members
func (h *Handlers) AddMember(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	res, err := h.service.AddMember(r.Context(), req.GroupID, req.Username)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	writeAddResult(w, res)
}

// RemoveMember handles DELETE /groups/members
func (h *Handlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if req.UserID == "" {
		httputil.WriteAppError(w, r, apperr.ErrBadPayload.WithHint("user_id is required"))
		return
	}

	if err := h.service.RemoveMember(r.Context(), req.GroupID, req.UserID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, nil)
}

// Invite handles POST /groups/invites
func (h *Handlers) Invite(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	res, err := h.service.Invite(r.Context(), req.GroupID, req.Username)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	writeAddResult(w, res)
}

// ListInvitations handles GET /groups/invitations
func (h *Handlers) ListInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := h.service.ListInvitations(r.Context(), httputil.ParseQueryString(r, "status", ""))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, invitations)
}

// RespondInvite handles PATCH /groups/invitations
func (h *Handlers) RespondInvite(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	res, err := h.service.RespondInvite(r.Context(), req.InviteID, req.Action)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, map[string]interface{}{"status": res.Status, "changed": res.Changed})
}

func writeAddResult(w http.ResponseWriter, res *AddResult) {
	fields := map[string]interface{}{}
	if res.Already {
		fields["already"] = true
	}
	if res.AlreadyInvited {
		fields["already_invited"] = true
	}
	if res.InviteID != "" {
		fields["invite_id"] = res.InviteID
	}
	httputil.WriteOK(w, fields)
}
