package identity

import (
	"net/http"

	"github.com/platinummonkey/watchlist/pkg/httputil"
	"github.com/platinummonkey/watchlist/pkg/observability"
)

// Middleware resolves the caller of every request. Anonymous requests pass
// through without a caller. A failing flag lookup is logged and recorded so
// that Require reports it as a server error while endpoints that tolerate
// anonymity still answer.
func Middleware(resolver *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := resolver.Resolve(r)
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Error("failed to resolve caller")
				next.ServeHTTP(w, r.WithContext(withResolveError(r.Context(), err)))
				return
			}
			if caller == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithCaller(r.Context(), caller)
			logger := observability.GetLogger(ctx).WithField("user_id", caller.UserID)
			ctx = observability.WithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects anonymous requests with unauthorized.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := Require(r.Context()); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdminMiddleware rejects callers without the admin flag.
func RequireAdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := RequireAdmin(r.Context()); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
