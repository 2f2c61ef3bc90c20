package identity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/config"
	"golang.org/x/oauth2"
)

// HintServiceKeyMissing explains a service_role_absent error.
const HintServiceKeyMissing = "identity provider service key is not configured; account deletion is disabled"

// AccountDeleter removes accounts at the identity provider.
type AccountDeleter interface {
	DeleteUser(ctx context.Context, userID string) error
}

// AdminClient calls the identity provider's admin API with the service key.
type AdminClient struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// NewAdminClient creates an admin client. Without a service key or admin URL
// every call reports service_role_absent.
func NewAdminClient(ctx context.Context, cfg config.IdentityConfig) *AdminClient {
	c := &AdminClient{
		baseURL:    strings.TrimRight(cfg.AdminURL, "/"),
		serviceKey: cfg.ServiceKey,
	}
	if c.Configured() {
		base := &http.Client{Timeout: 10 * time.Second}
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
		c.httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.ServiceKey,
			TokenType:   "Bearer",
		}))
	}
	return c
}

// Configured reports whether account deletion is available.
func (c *AdminClient) Configured() bool {
	return c.serviceKey != "" && c.baseURL != ""
}

// DeleteUser deletes the account userID. An account already gone counts as
// deleted.
func (c *AdminClient) DeleteUser(ctx context.Context, userID string) error {
	if !c.Configured() {
		return apperr.ErrServiceRoleAbsent.WithHint(HintServiceKeyMissing)
	}

	endpoint := c.baseURL + "/admin/users/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build delete request: %w", err)
	}
	req.Header.Set("apikey", c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.ErrUpstream.WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return apperr.ErrUpstream.WithCause(fmt.Errorf("identity admin returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
}
