package rbac

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/watchlist/pkg/audit"
	"github.com/platinummonkey/watchlist/pkg/identity"
	"github.com/platinummonkey/watchlist/pkg/roles"
	"github.com/platinummonkey/watchlist/pkg/storage/sqltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAuditLogger records events for assertions
type mockAuditLogger struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
}

func (m *mockAuditLogger) Log(ctx context.Context, event *audit.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockAuditLogger) Close() error { return nil }

func (m *mockAuditLogger) types() []audit.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.EventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.EventType
	}
	return out
}

type testEnv struct {
	router *mux.Router
	db     *sql.DB
	fx     *sqltest.Fixtures
	audit  *mockAuditLogger
}

func setupRegistry(t *testing.T) *testEnv {
	t.Helper()
	db := sqltest.Open(t)
	store := NewStore(db)
	auditLogger := &mockAuditLogger{}
	registry := NewRegistry(store, NewPermissionChecker(store, 16, 0, nil), auditLogger, nil, nil)
	router := mux.NewRouter()
	NewHandlers(registry).RegisterRoutes(router)
	return &testEnv{router: router, db: db, fx: sqltest.NewFixtures(t, db), audit: auditLogger}
}

func (e *testEnv) do(method, path string, body interface{}, caller *identity.Caller) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != nil {
		req = req.WithContext(identity.WithCaller(req.Context(), caller))
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func errorKind(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	kind, _ := body["error"].(string)
	return kind
}

var (
	ownerCaller  = identity.NewCaller("owner-id", "", roles.Owner, true)
	adminCaller  = identity.NewCaller("admin-id", "", roles.Member, true)
	memberCaller = identity.NewCaller("member-id", "", roles.Member, false)
)

func TestRegistry_Access(t *testing.T) {
	env := setupRegistry(t)

	rr := env.do("GET", "/admin/roles", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do("GET", "/admin/roles", nil, memberCaller)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "forbidden", errorKind(t, rr))
	assert.Contains(t, env.audit.types(), audit.EventTypeAccessDenied)

	for _, c := range []*identity.Caller{ownerCaller, adminCaller} {
		rr = env.do("GET", "/admin/roles", nil, c)
		require.Equal(t, http.StatusOK, rr.Code)

		var list RoleList
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
		assert.Len(t, list.Items, 6)
		assert.Equal(t, AllPermissions(), list.AllPerms)
	}
}

func TestRegistry_CreateRole(t *testing.T) {
	env := setupRegistry(t)

	tests := []struct {
		name   string
		body   interface{}
		status int
		kind   string
	}{
		{"ok", map[string]interface{}{"name": " curator ", "perms": []string{"manage_lists"}}, http.StatusOK, ""},
		{"blank name", map[string]interface{}{"name": "  "}, http.StatusBadRequest, "bad_payload"},
		{"unknown perm", map[string]interface{}{"name": "x", "perms": []string{"fly"}}, http.StatusBadRequest, "invalid_perms"},
		{"duplicate", map[string]interface{}{"name": "curator"}, http.StatusConflict, "conflict"},
		{"duplicate in another case", map[string]interface{}{"name": "CURATOR"}, http.StatusConflict, "conflict"},
		{"system name", map[string]interface{}{"name": "admin"}, http.StatusConflict, "conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do("POST", "/admin/roles", tt.body, ownerCaller)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			if tt.kind != "" {
				assert.Equal(t, tt.kind, errorKind(t, rr))
			}
		})
	}

	rr := env.do("POST", "/admin/roles", map[string]interface{}{"name": "x", "perms": []string{"fly", "manage_roles"}}, ownerCaller)
	var body struct {
		Detail []string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, []string{"fly"}, body.Detail)

	assert.Contains(t, env.audit.types(), audit.EventTypeRoleCreate)
}

func TestRegistry_UpdateRole(t *testing.T) {
	env := setupRegistry(t)
	require.Equal(t, http.StatusOK, env.do("POST", "/admin/roles", map[string]interface{}{"name": "curator"}, adminCaller).Code)

	rr := env.do("PATCH", "/admin/roles", map[string]interface{}{"name": "owner", "perms": []string{}}, ownerCaller)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "owner_locked", errorKind(t, rr))

	rr = env.do("PATCH", "/admin/roles", map[string]interface{}{"name": "ghost"}, ownerCaller)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do("PATCH", "/admin/roles", map[string]interface{}{"name": "curator", "perms": []string{"bogus"}}, ownerCaller)
	assert.Equal(t, "invalid_perms", errorKind(t, rr))

	rr = env.do("PATCH", "/admin/roles", map[string]interface{}{
		"name":        "curator",
		"description": "Tidies lists",
		"perms":       []string{"manage_lists", "change_username"},
	}, ownerCaller)
	require.Equal(t, http.StatusOK, rr.Code)

	role, err := NewStore(env.db).GetRole(context.Background(), "curator")
	require.NoError(t, err)
	assert.Equal(t, "Tidies lists", *role.Description)
	assert.Equal(t, []Permission{PermChangeUsername, PermManageLists}, role.Perms)

	// system roles other than owner stay editable
	rr = env.do("PATCH", "/admin/roles", map[string]interface{}{"name": "member", "perms": []string{"change_username"}}, ownerCaller)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, env.audit.types(), audit.EventTypeRoleUpdate)
}

func TestRegistry_DeleteRole(t *testing.T) {
	env := setupRegistry(t)
	require.Equal(t, http.StatusOK, env.do("POST", "/admin/roles", map[string]interface{}{"name": "curator"}, ownerCaller).Code)
	require.Equal(t, http.StatusOK, env.do("POST", "/admin/roles", map[string]interface{}{"name": "unused"}, ownerCaller).Code)
	holder := env.fx.Profile("holder", "curator", false)

	tests := []struct {
		name   string
		role   string
		status int
		kind   string
	}{
		{"owner", "owner", http.StatusForbidden, "system_role_locked"},
		{"system", "moderator", http.StatusForbidden, "system_role_locked"},
		{"missing", "ghost", http.StatusNotFound, "not_found"},
		{"in use", "curator", http.StatusConflict, "role_in_use"},
		{"ok", "unused", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do("DELETE", "/admin/roles", map[string]string{"name": tt.role}, adminCaller)
			assert.Equal(t, tt.status, rr.Code)
			if tt.kind != "" {
				assert.Equal(t, tt.kind, errorKind(t, rr))
			}
		})
	}

	_, err := env.db.Exec(`UPDATE profiles SET role = 'user' WHERE id = $1`, holder)
	require.NoError(t, err)
	rr := env.do("DELETE", "/admin/roles", map[string]string{"name": "curator"}, adminCaller)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, env.audit.types(), audit.EventTypeRoleDelete)
}

func TestRegistry_UserPermissions(t *testing.T) {
	env := setupRegistry(t)
	mod := env.fx.Profile("mod", "moderator", false)

	rr := env.do("GET", "/admin/users/"+mod+"/permissions", nil, ownerCaller)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		UserID string       `json:"user_id"`
		Perms  []Permission `json:"perms"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, mod, body.UserID)
	assert.ElementsMatch(t, []Permission{PermDeleteProposalsAny, PermManageLists}, body.Perms)

	rr = env.do("GET", "/admin/users/"+mod+"/permissions", nil, memberCaller)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestPermissionMiddleware(t *testing.T) {
	db := sqltest.Open(t)
	fx := sqltest.NewFixtures(t, db)
	checker := NewPermissionChecker(NewStore(db), 0, 0, nil)
	mod := fx.Profile("mod", "moderator", false)
	plain := fx.Profile("plain", "user", false)

	handler := NewPermissionMiddleware(checker).RequireAdminOr(PermManageLists)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	serve := func(c *identity.Caller) int {
		req := httptest.NewRequest("POST", "/", nil)
		if c != nil {
			req = req.WithContext(identity.WithCaller(req.Context(), c))
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(nil))
	assert.Equal(t, http.StatusNoContent, serve(adminCaller))
	assert.Equal(t, http.StatusNoContent, serve(identity.NewCaller(mod, "", roles.Moderator, false)))
	assert.Equal(t, http.StatusForbidden, serve(identity.NewCaller(plain, "", roles.User, false)))
}
