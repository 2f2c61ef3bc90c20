package identity

import (
	"context"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/contextkeys"
	"github.com/platinummonkey/watchlist/pkg/roles"
)

// Caller is the authenticated member behind a request.
type Caller struct {
	UserID  string
	Email   string
	Role    roles.Role
	IsAdmin bool
	IsOwner bool
	Rank    int
}

// NewCaller derives the caller's privileges from its stored flags. The
// owner is always an admin.
func NewCaller(userID, email string, role roles.Role, isAdmin bool) *Caller {
	owner := role == roles.Owner
	return &Caller{
		UserID:  userID,
		Email:   email,
		Role:    role,
		IsAdmin: isAdmin || owner,
		IsOwner: owner,
		Rank:    roles.RankOf(role),
	}
}

// CanManageRoles reports whether the caller may use the role registry.
func (c *Caller) CanManageRoles() bool {
	return c != nil && (c.IsOwner || c.IsAdmin)
}

// WithCaller stores c in ctx.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	ctx = contextkeys.WithCaller(ctx, c)
	if c != nil {
		ctx = contextkeys.WithUserID(ctx, c.UserID)
	}
	return ctx
}

// FromContext returns the caller stored in ctx, or nil for anonymous requests.
func FromContext(ctx context.Context) *Caller {
	c, _ := contextkeys.GetCaller(ctx).(*Caller)
	return c
}

type resolveErrKey struct{}

func withResolveError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, resolveErrKey{}, err)
}

// Require returns the caller or unauthorized. When the caller could not be
// resolved because of a lookup failure it returns that failure.
func Require(ctx context.Context) (*Caller, error) {
	c := FromContext(ctx)
	if c == nil {
		if err, ok := ctx.Value(resolveErrKey{}).(error); ok {
			return nil, apperr.Internal(err)
		}
		return nil, apperr.ErrUnauthorized
	}
	return c, nil
}

// RequireAdmin returns the caller when it holds the admin flag.
func RequireAdmin(ctx context.Context) (*Caller, error) {
	c, err := Require(ctx)
	if err != nil {
		return nil, err
	}
	if !c.IsAdmin {
		return nil, apperr.ErrForbidden
	}
	return c, nil
}
