package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/watchlist/pkg/admin"
	"github.com/platinummonkey/watchlist/pkg/api"
	"github.com/platinummonkey/watchlist/pkg/audit"
	"github.com/platinummonkey/watchlist/pkg/catalog"
	"github.com/platinummonkey/watchlist/pkg/config"
	"github.com/platinummonkey/watchlist/pkg/gateway"
	"github.com/platinummonkey/watchlist/pkg/groups"
	"github.com/platinummonkey/watchlist/pkg/httputil"
	"github.com/platinummonkey/watchlist/pkg/identity"
	"github.com/platinummonkey/watchlist/pkg/lists"
	"github.com/platinummonkey/watchlist/pkg/news"
	"github.com/platinummonkey/watchlist/pkg/notifications"
	"github.com/platinummonkey/watchlist/pkg/observability"
	"github.com/platinummonkey/watchlist/pkg/profiles"
	"github.com/platinummonkey/watchlist/pkg/proposals"
	"github.com/platinummonkey/watchlist/pkg/rbac"
	"github.com/platinummonkey/watchlist/pkg/roles"
	"github.com/platinummonkey/watchlist/pkg/storage/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var version = "dev"

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "Apply migrations (and procedures when enabled) and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Observability.LogLevel), os.Stdout)
	roles.DefaultHook = func(raw string) {
		logger.WithField("role", raw).Warn("unrecognized role, defaulting to user")
	}
	ctx := context.Background()

	if err := run(ctx, cfg, logger, *migrateOnly); err != nil {
		logger.WithError(err).Error("watchlist server stopped with an error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger, migrateOnly bool) error {
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}

	conns, err := postgres.NewConnectionManager(ctx, postgres.NewConnectionConfig(cfg.Database), logger)
	if err != nil {
		return err
	}
	db := conns.Primary()

	if cfg.Database.AutoMigrate || migrateOnly {
		if err := postgres.RunMigrations(ctx, db, logger); err != nil {
			conns.Close()
			return err
		}
	}
	if cfg.Database.InstallProcedures {
		if err := postgres.InstallProcedures(ctx, db); err != nil {
			conns.Close()
			return err
		}
		logger.Info("privileged procedures installed")
	}
	if migrateOnly {
		logger.Info("migrations applied")
		return conns.Close()
	}

	var redisClient *postgres.RedisClient
	if cfg.Redis.URL != "" {
		redisClient, err = postgres.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, caches and notification publishing disabled")
			redisClient = nil
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	gw := gateway.New(ctx, db, logger, metrics)

	auditDB, err := audit.NewDBLogger(db)
	if err != nil {
		return err
	}
	auditLogger := audit.NewMultiLogger(auditDB, audit.NewStructuredLogger(logger))
	auditLogger.SetAsync(true)

	verifier, err := identity.NewOIDCVerifier(ctx, cfg.Identity)
	if err != nil {
		return err
	}
	flags := identity.NewFlagCache(gw, redisClient, cfg.Cache.FlagsTTL, logger, metrics)
	resolver := identity.NewResolver(verifier, flags, logger)

	rbacStore := rbac.NewStore(db)
	checker := rbac.NewPermissionChecker(rbacStore, cfg.Cache.PermissionsSize, cfg.Cache.PermissionsTTL, metrics)
	registryService := rbac.NewRegistry(rbacStore, checker, auditLogger, logger, metrics)

	profileStore := profiles.NewStore(db)
	notificationStore := notifications.NewStore(db)
	notifier := notifications.NewNotifier(notificationStore, redisClient, logger, metrics)

	adminService := admin.NewService(admin.Deps{
		Profiles: profileStore,
		Store:    admin.NewStore(db),
		Users:    gw,
		Roles:    rbacStore,
		Accounts: identity.NewAdminClient(ctx, cfg.Identity),
		Flags:    flags,
		Perms:    checker,
		Audit:    auditLogger,
		Logger:   logger,
		Metrics:  metrics,
	})

	health := observability.NewHealthChecker(db, redisClientOrNil(redisClient), version)
	health.SetInfo("gateway_mode", gw.Mode())

	cors := httputil.NewCORS(cfg.Server.CORSOrigins)
	serviceName := ""
	if cfg.Observability.OTelEnabled {
		serviceName = cfg.Observability.OTelServiceName
	}

	var registryForMetrics *prometheus.Registry
	if cfg.Observability.MetricsEnabled {
		registryForMetrics = registry
	}

	server := api.NewServer(api.Options{
		Resolver:     resolver,
		Logger:       logger,
		Metrics:      metrics,
		Registry:     registryForMetrics,
		Health:       health,
		CORS:         cors,
		Permissions:  rbac.NewPermissionMiddleware(checker),
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		ServiceName:  serviceName,
		Routes: []api.RouteRegistrar{
			identity.NewHandlers(),
			profiles.NewHandlers(profiles.NewService(profileStore, gw, logger)),
			admin.NewHandlers(adminService),
			rbac.NewHandlers(registryService),
			groups.NewHandlers(groups.NewService(groups.NewStore(db), gw, notifier, auditLogger, logger)),
			lists.NewHandlers(lists.NewService(lists.NewStore(db), gw, logger)),
			proposals.NewHandlers(proposals.NewService(proposals.NewStore(db), gw, notifier, auditLogger, logger, metrics)),
			notifications.NewHandlers(notifications.NewService(notificationStore)),
			catalog.NewHandlers(catalog.NewClient(cfg.Providers, cfg.Cache, logger, metrics)),
			news.NewHandlers(news.NewService(cfg.Providers, cfg.Cache.NewsTTL, logger, metrics)),
		},
		Audit: audit.NewHandlers(auditDB),
	})

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	bgCtx, cancelBackground := context.WithCancel(ctx)
	conns.StartHealthCheckRoutine(bgCtx, 30*time.Second, metrics)

	if path := os.Getenv("WATCHLIST_CONFIG_FILE"); path != "" {
		watcher, err := config.NewWatcher(path, func(next *config.Config) {
			logger.SetLevel(observability.ParseLogLevel(next.Observability.LogLevel))
			cors.Set(next.Server.CORSOrigins)
			logger.Info("configuration reloaded")
		}, func(err error) {
			logger.WithError(err).Warn("configuration reload failed")
		})
		if err != nil {
			logger.WithError(err).Warn("config watcher disabled")
		} else {
			go watcher.Run(bgCtx)
		}
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("database", func(context.Context) error { return conns.Close() })
	if redisClient != nil {
		shutdown.RegisterShutdownFunc("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.RegisterShutdownFunc("audit", func(context.Context) error { return auditLogger.Close() })
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error { return observability.ShutdownOTel(ctx, otelProviders) })
	shutdown.RegisterShutdownFunc("background", func(context.Context) error {
		cancelBackground()
		return nil
	})

	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":         httpServer.Addr,
			"gateway_mode": gw.Mode(),
			"version":      version,
		}).Info("watchlist server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()

	return shutdown.WaitForShutdown()
}

func redisClientOrNil(c *postgres.RedisClient) *redis.Client {
	if c == nil {
		return nil
	}
	return c.Client()
}
