package identity

import (
	"context"
	"crypto"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/platinummonkey/watchlist/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestOIDCVerifier_RejectsGarbage(t *testing.T) {
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{}}
	v := NewOIDCVerifierFromKeySet("https://idp.example.com", "watchlist", keySet)

	_, err := v.Verify(context.Background(), "not-a-jwt")
	assert.Error(t, err)

	_, err = v.Verify(context.Background(), "aaa.bbb.ccc")
	assert.Error(t, err)
}

func TestNewOIDCVerifier_RequiresIssuer(t *testing.T) {
	_, err := NewOIDCVerifier(context.Background(), config.IdentityConfig{})
	assert.Error(t, err)
}

func TestNewOIDCVerifier_JWKS(t *testing.T) {
	v, err := NewOIDCVerifier(context.Background(), config.IdentityConfig{
		IssuerURL: "https://idp.example.com",
		JWKSURL:   "https://idp.example.com/.well-known/jwks.json",
	})
	assert.NoError(t, err)
	assert.NotNil(t, v)
}
