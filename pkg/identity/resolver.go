package identity

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/watchlist/pkg/observability"
	"github.com/platinummonkey/watchlist/pkg/roles"
)

// Resolver turns a request credential into a Caller.
type Resolver struct {
	verifier TokenVerifier
	flags    *FlagCache
	logger   *observability.Logger
}

// NewResolver creates a resolver.
func NewResolver(verifier TokenVerifier, flags *FlagCache, logger *observability.Logger) *Resolver {
	if logger == nil {
		logger = observability.Default()
	}
	return &Resolver{verifier: verifier, flags: flags, logger: logger}
}

// Flags exposes the flag cache so admin writes can invalidate it.
func (r *Resolver) Flags() *FlagCache {
	return r.flags
}

// Resolve verifies the bearer token of req and loads the caller's flags.
// It returns (nil, nil) for anonymous requests and for credentials that fail
// verification; handlers decide whether anonymity is acceptable.
func (r *Resolver) Resolve(req *http.Request) (*Caller, error) {
	ctx := req.Context()

	raw, err := BearerToken(req)
	if errors.Is(err, ErrNoCredential) {
		return nil, nil
	}
	if err != nil {
		observability.FromContext(ctx).WithError(err).Debug("ignoring malformed credential")
		return nil, nil
	}

	claims, err := r.verifier.Verify(ctx, raw)
	if err != nil || claims.Subject == "" {
		observability.FromContext(ctx).WithError(err).Debug("credential rejected")
		return nil, nil
	}

	return r.Load(ctx, claims)
}

// Load builds the caller for verified claims. A member without a profile row
// resolves to the user role.
func (r *Resolver) Load(ctx context.Context, claims Claims) (*Caller, error) {
	flags, err := r.flags.Load(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	role := roles.User
	if flags.Found {
		var defaulted bool
		role, defaulted = roles.Normalize(flags.Role)
		if defaulted {
			r.logger.WithFields(map[string]interface{}{
				"user_id": claims.Subject,
				"role":    flags.Role,
			}).Warn("unrecognized stored role, treating as user")
		}
	}

	return NewCaller(claims.Subject, claims.Email, role, flags.IsAdmin), nil
}
