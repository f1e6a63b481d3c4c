package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/closingroom/pkg/billing"
	"github.com/platinummonkey/closingroom/pkg/config"
	"github.com/platinummonkey/closingroom/pkg/enforcement"
	"github.com/platinummonkey/closingroom/pkg/observability"
	"github.com/platinummonkey/closingroom/pkg/storage/postgres"
	"github.com/platinummonkey/closingroom/pkg/webhooks"
)

var (
	schedule    = flag.String("schedule", getEnv("CLOSINGROOM_CYCLE_SCHEDULE", ""), "Cron schedule for closing billing cycles (default: CLOSINGROOM_CYCLE_SCHEDULE or @hourly)")
	runOnce     = flag.Bool("run-once", false, "Close due cycles once and exit")
	at          = flag.String("at", "", "Close cycles that ended at or before this RFC 3339 time. Only used with --run-once")
	logLevel    = flag.String("log-level", getEnv("CLOSINGROOM_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	metricsAddr = flag.String("metrics-addr", getEnv("CLOSINGROOM_CYCLER_METRICS_ADDR", ":9091"), "Address serving /metrics in scheduled mode (empty disables)")
)

// The cycler closes finished billing cycles, issues invoices and announces them to
// team webhooks
func main() {
	flag.Parse()

	logger := setupLogger(*logLevel)
	logger.Info("Starting closingroom billing cycler")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if *schedule == "" {
		*schedule = cfg.Billing.CycleSchedule
	}

	// Components log through the shared structured logger; the cycler itself uses logrus
	componentLogger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "closingroom-cycler")
	ctx, cancel := context.WithCancel(observability.WithLogger(context.Background(), componentLogger))
	defer cancel()

	conns, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfigFrom(cfg.Storage), componentLogger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer conns.Close()
	db := conns.Primary()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	svc := billing.NewPostgresService(db, enforcement.NewSQLUsage(db), billing.Options{
		Currency:       cfg.Billing.Currency,
		InvoiceDueDays: cfg.Billing.InvoiceDueDays,
	})

	// Deliveries run inline so a run-once pass finishes them before exiting; failures
	// are queued for the API's retry worker.
	retry := webhooks.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Webhooks.MaxAttempts
	hooks := webhooks.NewManager(webhooks.NewPostgresStore(db), webhooks.Options{
		Client:      &http.Client{Timeout: 30 * time.Second},
		RateLimit:   cfg.Webhooks.RateLimit,
		RatePeriod:  cfg.Webhooks.RatePeriod,
		RetryConfig: retry,
		Logger:      componentLogger,
		Metrics:     metrics,
	})

	runner := billing.NewRunner(svc, cfg.Billing.Concurrency, func(ctx context.Context, inv *billing.Invoice) {
		metrics.RecordInvoice(string(inv.Status), inv.Currency, inv.TotalCents)
		hooks.Publish(ctx, inv.TeamID, string(webhooks.EventInvoiceCreated), inv)
		logger.WithFields(logrus.Fields{
			"team_id": inv.TeamID,
			"invoice": inv.Number,
			"total":   inv.TotalCents,
		}).Info("Issued invoice")
	})

	// Run once mode (for backfills and testing)
	if *runOnce {
		when := time.Now().UTC()
		if *at != "" {
			when, err = time.Parse(time.RFC3339, *at)
			if err != nil {
				logger.Fatalf("Invalid --at time: %v", err)
			}
		}
		if failed := runCycle(ctx, runner, metrics, logger, when); failed > 0 {
			logger.Fatalf("Billing cycle run finished with %d failures", failed)
		}
		return
	}

	// Scheduled mode
	c := cron.New()
	_, err = c.AddFunc(*schedule, func() {
		runCycle(ctx, runner, metrics, logger, time.Now().UTC())
	})
	if err != nil {
		logger.Fatalf("Failed to schedule cycle job: %v", err)
	}

	var metricsServer *http.Server
	if *metricsAddr != "" {
		metricsServer = newMetricsServer(*metricsAddr, registry)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
		logger.Infof("Serving metrics on %s/metrics", *metricsAddr)
	}

	c.Start()
	logger.Infof("Billing cycler started with schedule %q", *schedule)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down gracefully...")

	stopCtx := c.Stop()
	<-stopCtx.Done()
	cancel()

	if metricsServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to stop metrics server")
		}
		done()
	}

	logger.Info("Billing cycler stopped")
}

// runCycle closes every cycle due at when and returns how many teams failed
func runCycle(ctx context.Context, runner *billing.Runner, metrics *observability.Metrics, logger *logrus.Logger, when time.Time) int {
	logger.WithField("at", when.Format(time.RFC3339)).Info("Closing due billing cycles")
	start := time.Now()

	res, err := runner.Run(ctx, when)
	metrics.RecordCycleRun(time.Since(start))
	if err != nil {
		logger.WithError(err).Error("Billing cycle run failed")
		return 1
	}

	for teamID, err := range res.Failed {
		logger.WithError(err).WithField("team_id", teamID).Error("Failed to close billing cycle")
	}
	logger.WithFields(logrus.Fields{
		"teams":    res.Teams,
		"invoices": len(res.Invoices),
		"failed":   len(res.Failed),
		"duration": time.Since(start).String(),
	}).Info("Billing cycle run complete")

	return len(res.Failed)
}

// newMetricsServer exposes the cycler's registry for scraping between runs
func newMetricsServer(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	observability.RegisterMetricsEndpoint(mux, registry)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// setupLogger configures the logger
func setupLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	return logger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
