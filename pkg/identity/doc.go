// Package identity resolves the caller of a request.
//
// A bearer JWT is verified against the identity provider (OIDC discovery or
// an explicit JWKS URL), then the member's stored role and admin flag are
// loaded through the authorization gateway and cached in Redis. The result is
// a Caller carrying the normalized role, its rank and the derived admin and
// owner flags.
//
// Middleware never rejects a request on its own: handlers call Require or
// RequireAdmin, or mount RequireAuth / RequireAdminMiddleware.
//
// AdminClient talks to the identity provider's admin API for account
// deletion, authenticated with the service key.
package identity
