package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminClient_NotConfigured(t *testing.T) {
	c := NewAdminClient(context.Background(), config.IdentityConfig{AdminURL: "http://idp.local"})
	assert.False(t, c.Configured())

	err := c.DeleteUser(context.Background(), "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrServiceRoleAbsent)
	assert.Equal(t, HintServiceKeyMissing, apperr.From(err).Hint)
}

func TestAdminClient_DeleteUser(t *testing.T) {
	var gotPath, gotAuth, gotMethod string
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		w.WriteHeader(status)
		w.Write([]byte(`{"msg":"nope"}`))
	}))
	defer server.Close()

	c := NewAdminClient(context.Background(), config.IdentityConfig{
		AdminURL:   server.URL + "/",
		ServiceKey: "service-secret",
	})
	require.True(t, c.Configured())

	require.NoError(t, c.DeleteUser(context.Background(), "user-1"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/admin/users/user-1", gotPath)
	assert.Equal(t, "Bearer service-secret", gotAuth)

	status = http.StatusNotFound
	assert.NoError(t, c.DeleteUser(context.Background(), "user-1"))

	status = http.StatusInternalServerError
	err := c.DeleteUser(context.Background(), "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}
