package profiles

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/watchlist/pkg/gateway"
	"github.com/platinummonkey/watchlist/pkg/identity"
	"github.com/platinummonkey/watchlist/pkg/roles"
	"github.com/platinummonkey/watchlist/pkg/storage/sqltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHandlers(t *testing.T) (*mux.Router, *sql.DB, *sqltest.Fixtures) {
	t.Helper()
	db := sqltest.Open(t)
	fx := sqltest.NewFixtures(t, db)
	service := NewService(NewStore(db), gateway.NewManual(db), nil)
	router := mux.NewRouter()
	NewHandlers(service).RegisterRoutes(router)
	return router, db, fx
}

func doRequest(router http.Handler, method, path string, body interface{}, userID string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req = req.WithContext(identity.WithCaller(context.Background(), identity.NewCaller(userID, "", roles.User, false)))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestGetProfile(t *testing.T) {
	router, _, fx := setupHandlers(t)
	id := fx.Profile("alice", "member", false)

	rr := doRequest(router, "GET", "/profile", nil, id)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Profile Profile `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, id, body.Profile.ID)
	assert.Equal(t, "member", body.Profile.Role)

	rr = doRequest(router, "GET", "/profile", nil, "no-profile-yet")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "user", body.Profile.Role)
	assert.Nil(t, body.Profile.Username)

	rr = doRequest(router, "GET", "/profile", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUpdateProfile(t *testing.T) {
	router, _, fx := setupHandlers(t)
	alice := fx.Profile("alice", "member", false)
	bob := fx.Profile("bob", "member", false)

	tests := []struct {
		name     string
		userID   string
		username string
		status   int
		kind     string
	}{
		{"ok", bob, "  bobby ", http.StatusOK, ""},
		{"keep own name", alice, "Alice", http.StatusOK, ""},
		{"taken", bob, "ALICE", http.StatusConflict, "username_taken"},
		{"too short", bob, "ab", http.StatusBadRequest, "username_length"},
		{"blank", bob, "   ", http.StatusBadRequest, "username_invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(router, "PATCH", "/profile", map[string]string{"username": tt.username}, tt.userID)
			assert.Equal(t, tt.status, rr.Code)
			if tt.kind != "" {
				var body map[string]interface{}
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
				assert.Equal(t, tt.kind, body["error"])
			}
		})
	}

	rr := doRequest(router, "PATCH", "/profile", map[string]string{"username": "x"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCheckUsername(t *testing.T) {
	router, _, fx := setupHandlers(t)
	alice := fx.Profile("alice", "member", false)

	tests := []struct {
		path   string
		userID string
		want   string
	}{
		{"/profile/check-username?u=al", "", `{"available":false}`},
		{"/profile/check-username?u=ALICE", "", `{"available":false}`},
		{"/profile/check-username?u=alice", alice, `{"available":true}`},
		{"/profile/check-username?u=zelda", "", `{"available":true}`},
	}
	for _, tt := range tests {
		rr := doRequest(router, "GET", tt.path, nil, tt.userID)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, tt.want, rr.Body.String(), tt.path)
	}
}

func TestSuggestAndListUsers(t *testing.T) {
	router, _, fx := setupHandlers(t)
	me := fx.Profile("me", "member", false)
	fx.Profile("Albert", "member", false)
	fx.Profile("alice", "member", false)
	fx.Profile("bob", "member", false)

	var body struct {
		Items []gateway.Suggestion `json:"items"`
	}

	rr := doRequest(router, "GET", "/users/suggest?q=al", nil, me)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)

	rr = doRequest(router, "GET", "/users/suggest?q=al", nil, "")
	assert.JSONEq(t, `{"items":[]}`, rr.Body.String())

	rr = doRequest(router, "GET", "/users/suggest?q=", nil, me)
	assert.JSONEq(t, `{"items":[]}`, rr.Body.String())

	rr = doRequest(router, "GET", "/users?limit=2", nil, me)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, body.Items, 2)

	rr = doRequest(router, "GET", "/users?q=b", nil, me)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "bob", body.Items[0].Username)

	rr = doRequest(router, "GET", "/users", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
