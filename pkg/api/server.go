package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/httputil"
	"github.com/platinummonkey/watchlist/pkg/identity"
	"github.com/platinummonkey/watchlist/pkg/observability"
	"github.com/platinummonkey/watchlist/pkg/rbac"
	"github.com/prometheus/client_golang/prometheus"
)

// RouteRegistrar is implemented by every handler group.
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// Options configure a Server.
type Options struct {
	Resolver *identity.Resolver
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	// Registry backs /metrics; nil disables the endpoint.
	Registry *prometheus.Registry
	Health   *observability.HealthChecker
	CORS     *httputil.CORS
	// Permissions gates the audit routes; nil restricts them to admins.
	Permissions  *rbac.PermissionMiddleware
	MaxBodyBytes int64
	// ServiceName names the tracing spans; empty disables tracing.
	ServiceName string

	Routes []RouteRegistrar
	Audit  RouteRegistrar
}

// Server is the watch-list HTTP handler.
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer builds the router and wraps it in the middleware chain.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.Default()
	}
	if opts.CORS == nil {
		opts.CORS = httputil.NewCORS([]string{"*"})
	}

	s := &Server{router: mux.NewRouter()}
	s.setupRoutes(opts)

	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(opts.Logger),
		httputil.RecoveryMiddleware,
		opts.CORS.Middleware,
	}
	if opts.MaxBodyBytes > 0 {
		middlewares = append(middlewares, httputil.MaxBytesMiddleware(opts.MaxBodyBytes))
	}
	if opts.Resolver != nil {
		middlewares = append(middlewares, identity.Middleware(opts.Resolver))
	}

	var handler http.Handler = httputil.Chain(middlewares...)(s.router)
	if opts.ServiceName != "" {
		handler = observability.TracingHandler(handler, opts.ServiceName)
	}
	s.handler = handler
	return s
}

func (s *Server) setupRoutes(opts Options) {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorKind(w, apperr.KindNotFound)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
	})

	if opts.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	}
	if opts.Registry != nil {
		observability.RegisterMetricsEndpoint(s.router, opts.Registry)
	}
	if opts.Health != nil {
		observability.RegisterHealthRoutes(s.router, opts.Health)
	}

	// Audit routes are registered with their full paths on a subrouter that
	// only matches under /admin/audit/.
	if opts.Audit != nil {
		guard := identity.RequireAdminMiddleware
		if opts.Permissions != nil {
			guard = opts.Permissions.RequireAdminOr(rbac.PermManageRoles)
		}
		sub := s.router.MatcherFunc(func(r *http.Request, _ *mux.RouteMatch) bool {
			return strings.HasPrefix(r.URL.Path, "/admin/audit/")
		}).Subrouter()
		sub.Use(guard)
		opts.Audit.RegisterRoutes(sub)
	}

	for _, routes := range opts.Routes {
		routes.RegisterRoutes(s.router)
	}
}

// Router exposes the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
