package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteOK(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, WriteOK(w, map[string]interface{}{"status": "accepted"}))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "accepted", body["status"])
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   apperr.Kind
		wantHint   string
	}{
		{"owner unique", apperr.ErrOwnerUnique, http.StatusForbidden, apperr.KindOwnerUnique, ""},
		{"last owner", apperr.ErrLastOwnerProtected, http.StatusConflict, apperr.KindLastOwnerProtected, ""},
		{"hint kept", apperr.ErrBadPayload.WithHint("name required"), http.StatusBadRequest, apperr.KindBadPayload, "name required"},
		{"no changes", apperr.ErrNoChanges, http.StatusBadRequest, apperr.KindNoChanges, ""},
		{"foreign error hidden", errors.New("pq: connection refused"), http.StatusInternalServerError, apperr.KindServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)

			WriteAppError(w, r, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.wantKind, body.Error)
			assert.Equal(t, tt.wantHint, body.Hint)
			assert.NotContains(t, w.Body.String(), "connection refused")
		})
	}
}

func TestWriteAppError_Detail(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", nil)

	WriteAppError(w, r, apperr.ErrBadPayload.WithDetail(map[string]string{"name": "is required"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"bad_payload","detail":{"name":"is required"}}`, w.Body.String())
}

func TestWriteErrorKindHelpers(t *testing.T) {
	w := httptest.NewRecorder()
	WriteUnauthorized(w)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperr.KindUnauthorized, decodeError(t, w).Error)

	w = httptest.NewRecorder()
	WriteForbidden(w)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	WriteBadRequest(w, "invalid id")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid id", decodeError(t, w).Hint)

	w = httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
