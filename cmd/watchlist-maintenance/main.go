package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/platinummonkey/watchlist/pkg/config"
	"github.com/platinummonkey/watchlist/pkg/groups"
	"github.com/platinummonkey/watchlist/pkg/maintenance"
	"github.com/platinummonkey/watchlist/pkg/notifications"
	"github.com/platinummonkey/watchlist/pkg/proposals"
	"github.com/sirupsen/logrus"
)

var (
	configFile = flag.String("config", os.Getenv("WATCHLIST_CONFIG_FILE"), "Path to the YAML configuration file")
	dbURL      = flag.String("db-url", "", "PostgreSQL connection URL (overrides the configuration)")
	runOnce    = flag.Bool("run-once", false, "Run every job once and exit")
	logJSON    = flag.Bool("log-json", true, "Write logs as JSON")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	if *logJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	url := *dbURL
	if url == "" {
		url = os.Getenv("WATCHLIST_DATABASE_URL")
	}
	if url == "" {
		url = cfg.Database.URL
	}
	if url == "" {
		logger.Fatal("Database URL is required (--db-url or WATCHLIST_DATABASE_URL)")
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()
	db.SetMaxOpenConns(4)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		logger.WithError(err).Fatal("Failed to ping database")
	}

	runner := maintenance.NewRunner(cfg.Maintenance,
		notifications.NewStore(db),
		groups.NewStore(db),
		proposals.NewStore(db),
		logger,
	)

	if *runOnce {
		if err := runner.RunOnce(context.Background()); err != nil {
			logger.WithError(err).Fatal("Maintenance run failed")
		}
		logger.Info("Maintenance run completed")
		return
	}

	c := maintenance.NewCron(logger)
	if err := runner.Schedule(c); err != nil {
		logger.WithError(err).Fatal("Failed to schedule maintenance jobs")
	}
	c.Start()
	logger.WithField("jobs", len(runner.Jobs())).Info("Watchlist maintenance started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()
	logger.Info("Maintenance stopped")
}
