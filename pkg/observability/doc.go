// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("list_id", id).Info("list created")
//
// Request-scoped logging picks up request_id and user_id:
//
//	observability.FromContext(r.Context()).WithError(err).Error("patch failed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveAuthz("admin.patch_user", string(apperr.KindOf(err)))
//	metrics.ObserveProposalTransition("accepted")
//
// All Observe helpers accept a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers)
package observability
