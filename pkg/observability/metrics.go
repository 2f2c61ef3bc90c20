package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec
	RoleDefaultsTotal   prometheus.Counter
	GatewayMode         *prometheus.GaugeVec

	// Domain metrics
	ProposalTransitionsTotal *prometheus.CounterVec
	NotificationsTotal       *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Upstream provider metrics
	ProviderRequestDuration *prometheus.HistogramVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
	DBConnectionsWait   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchlist_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watchlist_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watchlist_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchlist_authz_decisions_total",
				Help: "Authorization decisions by operation and resulting error kind (ok when allowed)",
			},
			[]string{"operation", "kind"},
		),
		RoleDefaultsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "watchlist_role_defaults_total",
				Help: "Stored role values that were not recognized and ranked as user",
			},
		),
		GatewayMode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "watchlist_gateway_mode",
				Help: "Authorization gateway implementation selected at startup (1 for the active mode)",
			},
			[]string{"mode"},
		),

		ProposalTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchlist_proposal_transitions_total",
				Help: "Proposal status transitions written",
			},
			[]string{"status"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchlist_notifications_total",
				Help: "Notifications emitted by type and outcome",
			},
			[]string{"type", "outcome"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchlist_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchlist_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),

		ProviderRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watchlist_provider_request_duration_seconds",
				Help:    "Upstream provider request duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"provider", "status"},
		),

		DBConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watchlist_db_connections_active",
			Help: "Number of in-use database connections",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watchlist_db_connections_idle",
			Help: "Number of idle database connections",
		}),
		DBConnectionsWait: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watchlist_db_connections_wait_count",
			Help: "Total number of connections waited for",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuthzDecisionsTotal,
		m.RoleDefaultsTotal,
		m.GatewayMode,
		m.ProposalTransitionsTotal,
		m.NotificationsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ProviderRequestDuration,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWait,
	)

	return m
}

// ObserveAuthz records the outcome of an authorization decision. A nil
// receiver is allowed so services can run without metrics in tests.
func (m *Metrics) ObserveAuthz(operation, kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "ok"
	}
	m.AuthzDecisionsTotal.WithLabelValues(operation, kind).Inc()
}

// ObserveProposalTransition counts a written proposal status.
func (m *Metrics) ObserveProposalTransition(status string) {
	if m == nil {
		return
	}
	m.ProposalTransitionsTotal.WithLabelValues(status).Inc()
}

// ObserveNotification counts an emitted notification.
func (m *Metrics) ObserveNotification(kind, outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveCache counts a cache lookup.
func (m *Metrics) ObserveCache(cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// ObserveProvider records an upstream call duration.
func (m *Metrics) ObserveProvider(provider string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequestDuration.WithLabelValues(provider, strconv.Itoa(status)).Observe(d.Seconds())
}

// SetGatewayMode marks the active authorization gateway implementation.
func (m *Metrics) SetGatewayMode(active string, all ...string) {
	if m == nil {
		return
	}
	for _, mode := range all {
		m.GatewayMode.WithLabelValues(mode).Set(0)
	}
	m.GatewayMode.WithLabelValues(active).Set(1)
}

// RecordDBStats copies pool statistics into the database gauges.
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWait.Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel prefers the mux route template so ids do not explode label
// cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")
}
