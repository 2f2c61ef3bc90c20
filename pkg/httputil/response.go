package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/observability"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteOK writes {"ok": true} merged with the given fields.
func WriteOK(w http.ResponseWriter, fields map[string]interface{}) error {
	body := map[string]interface{}{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	return WriteJSON(w, http.StatusOK, body)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  apperr.Kind `json:"error"`
	Hint   string      `json:"hint,omitempty"`
	Detail interface{} `json:"detail,omitempty"`
}

// WriteAppError renders err as {"error": kind, ...}. Errors that are not
// *apperr.Error become server_error; their message is logged, not returned.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	if e.Kind == apperr.KindServerError || e.Kind == apperr.KindUpstream {
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("path", r.URL.Path).
			Error("request failed")
	}
	WriteJSON(w, e.HTTPStatus(), ErrorResponse{
		Error:  e.Kind,
		Hint:   e.Hint,
		Detail: e.Detail,
	})
}

// WriteErrorKind writes a bare error kind with its bound status.
func WriteErrorKind(w http.ResponseWriter, kind apperr.Kind) {
	WriteJSON(w, kind.HTTPStatus(), ErrorResponse{Error: kind})
}

// WriteBadRequest writes a bad_payload error with a hint (400)
func WriteBadRequest(w http.ResponseWriter, hint string) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: apperr.KindBadPayload, Hint: hint})
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter) {
	WriteErrorKind(w, apperr.KindUnauthorized)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter) {
	WriteErrorKind(w, apperr.KindForbidden)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
