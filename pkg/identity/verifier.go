package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/platinummonkey/watchlist/pkg/config"
)

// ErrNoCredential is returned when a request carries no bearer token.
var ErrNoCredential = errors.New("no bearer credential")

// Claims are the identity claims the service uses.
type Claims struct {
	Subject string
	Email   string
}

// TokenVerifier validates a bearer credential.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (Claims, error)
}

// OIDCVerifier verifies JWTs issued by the identity provider.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func oidcConfig(audience string) *oidc.Config {
	return &oidc.Config{
		ClientID:          audience,
		SkipClientIDCheck: audience == "",
	}
}

// NewOIDCVerifier builds a verifier for cfg. With a JWKS URL the keys are
// fetched from it directly; otherwise the issuer's discovery document is used.
func NewOIDCVerifier(ctx context.Context, cfg config.IdentityConfig) (*OIDCVerifier, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("identity issuer URL is required")
	}

	if cfg.JWKSURL != "" {
		keySet := oidc.NewRemoteKeySet(ctx, cfg.JWKSURL)
		return NewOIDCVerifierFromKeySet(cfg.IssuerURL, cfg.Audience, keySet), nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(oidcConfig(cfg.Audience))}, nil
}

// NewOIDCVerifierFromKeySet builds a verifier over an explicit key set.
func NewOIDCVerifierFromKeySet(issuer, audience string, keySet oidc.KeySet) *OIDCVerifier {
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keySet, oidcConfig(audience))}
}

// Verify implements TokenVerifier.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (Claims, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Claims{}, fmt.Errorf("failed to verify token: %w", err)
	}

	var extra struct {
		Email string `json:"email"`
	}
	if err := token.Claims(&extra); err != nil {
		return Claims{}, fmt.Errorf("failed to parse claims: %w", err)
	}
	return Claims{Subject: token.Subject, Email: extra.Email}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrNoCredential
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}
