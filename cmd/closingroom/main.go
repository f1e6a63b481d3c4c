package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/closingroom/pkg/api"
	"github.com/platinummonkey/closingroom/pkg/async"
	"github.com/platinummonkey/closingroom/pkg/auth"
	"github.com/platinummonkey/closingroom/pkg/billing"
	"github.com/platinummonkey/closingroom/pkg/config"
	"github.com/platinummonkey/closingroom/pkg/contracts"
	"github.com/platinummonkey/closingroom/pkg/drafting"
	"github.com/platinummonkey/closingroom/pkg/email"
	"github.com/platinummonkey/closingroom/pkg/enforcement"
	"github.com/platinummonkey/closingroom/pkg/httputil"
	"github.com/platinummonkey/closingroom/pkg/middleware"
	"github.com/platinummonkey/closingroom/pkg/observability"
	"github.com/platinummonkey/closingroom/pkg/properties"
	"github.com/platinummonkey/closingroom/pkg/storage/cache"
	"github.com/platinummonkey/closingroom/pkg/storage/objects"
	"github.com/platinummonkey/closingroom/pkg/storage/postgres"
	"github.com/platinummonkey/closingroom/pkg/teams"
	"github.com/platinummonkey/closingroom/pkg/templates"
	"github.com/platinummonkey/closingroom/pkg/webhooks"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "closingroom")
	logger.WithField("version", version).Info("Starting closingroom API")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("closingroom exited with error")
		os.Exit(1)
	}
	logger.Info("closingroom stopped")
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(observability.WithLogger(context.Background(), logger))
	defer cancel()

	// Telemetry
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Environment:    cfg.Observability.OTelEnvironment,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	if otelProviders != nil {
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			logger.WithError(err).Warn("Failed to create OpenTelemetry instruments")
		} else {
			metrics.AttachOTel(otelMetrics)
		}
	}

	// Storage
	conns, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfigFrom(cfg.Storage), logger)
	if err != nil {
		return err
	}
	db := conns.Primary()
	if err := postgres.RunMigrations(ctx, db, logger); err != nil {
		conns.Close()
		return err
	}
	conns.StartHealthCheckRoutine(ctx, 30*time.Second)

	var usageCache enforcement.UsageCache
	var redisClient *cache.RedisClient
	if cfg.Storage.RedisURL != "" {
		redisClient, err = cache.NewRedisClient(cfg.Storage)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, usage is counted from the database")
			redisClient = nil
		} else {
			usageCache = redisClient
		}
	}

	documents, err := objects.NewS3Client(ctx, cfg.Storage)
	if err != nil {
		conns.Close()
		return err
	}

	verifier, err := auth.NewOIDCVerifier(ctx, cfg.Auth)
	if err != nil {
		conns.Close()
		return err
	}

	// Templates
	library, err := templates.NewLibrary(cfg.Templates.LibraryDir, logger, metrics)
	if err != nil {
		conns.Close()
		return err
	}
	if cfg.Templates.Watch {
		async.SafeGoNoError(ctx, 0, "template library watch", func(ctx context.Context) {
			if err := library.Watch(ctx); err != nil {
				logger.WithError(err).Error("Template library watch stopped")
			}
		})
	}
	renderer := templates.NewRenderer()
	renderer.Metrics = metrics

	// Webhooks
	retry := webhooks.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Webhooks.MaxAttempts
	hooks := webhooks.NewManager(webhooks.NewPostgresStore(db), webhooks.Options{
		Client:      &http.Client{Timeout: 30 * time.Second},
		RateLimit:   cfg.Webhooks.RateLimit,
		RatePeriod:  cfg.Webhooks.RatePeriod,
		RetryConfig: retry,
		Logger:      logger,
		Metrics:     metrics,
		Async:       true,
	})
	retryWorker := webhooks.NewRetryWorker(hooks)
	retryWorker.Start(ctx, cfg.Webhooks.RetryInterval)

	// Domain services
	notifier := email.NewNotifier(email.NewSender(cfg.Email, logger), cfg.Server.PublicURL)
	usage := enforcement.NewSQLUsage(db)
	billingService := billing.NewPostgresService(db, usage, billing.Options{
		Currency:       cfg.Billing.Currency,
		InvoiceDueDays: cfg.Billing.InvoiceDueDays,
	})
	enforcer := enforcement.NewEnforcer(billingService, usage, enforcement.Options{
		Cache:   usageCache,
		Metrics: metrics,
		Logger:  logger,
	})
	teamService := teams.NewPostgresService(db, teams.Options{
		Seats:    enforcer,
		Notifier: notifier,
		Events:   hooks,
		Logger:   logger,
	})
	propertyService := properties.NewPostgresService(db)
	templateStore := templates.NewPostgresStore(db, enforcer, library)
	contractService := contracts.NewService(db, contracts.Options{
		Limits:     enforcer,
		Templates:  templateStore,
		Library:    library,
		Properties: propertyService,
		Teams:      teamService,
		Documents:  documents,
		Renderer:   renderer,
		Notifier:   notifier,
		Events:     hooks,
		Logger:     logger,
	})
	drafter := drafting.NewDrafter(db, enforcer, cfg.AI, drafting.Options{
		Logger:  logger,
		Metrics: metrics,
	})

	server := api.NewServer(api.Deps{
		Verifier:   verifier,
		Teams:      teamService,
		Properties: propertyService,
		Contracts:  contractService,
		Templates:  templateStore,
		Library:    library,
		Renderer:   renderer,
		Billing:    billingService,
		Usage:      enforcer,
		Drafter:    drafter,
		Extra:      []api.RouteRegistrar{webhooks.NewHandlers(hooks)},
	})

	var rateLimit func(http.Handler) http.Handler
	if redisClient != nil {
		rateLimit = middleware.NewDistributedRateLimitMiddleware(redisClient.GetClient()).Handler
	} else {
		limiter := middleware.NewRateLimitMiddleware()
		limiter.StartCleanup(ctx)
		rateLimit = limiter.Handler
	}

	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware(logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(cfg.Server.CORSOrigins),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
		observability.HTTPMetricsMiddleware(metrics),
		rateLimit,
	}
	var handler http.Handler = httputil.Chain(chain...)(server)
	if otelProviders != nil {
		handler = otelhttp.NewHandler(handler, "closingroom")
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on their own port
	var redisHealth *redis.Client
	if redisClient != nil {
		redisHealth = redisClient.GetClient()
	}
	checker := observability.NewHealthChecker(db, redisHealth).
		WithObjectStore(documents).
		WithVersion(version)
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Housekeeping
	jobs := cron.New()
	if _, err := jobs.AddFunc("@every 1h", func() {
		n, err := teamService.CleanupExpiredInvitations(ctx)
		if err != nil {
			logger.WithError(err).Warn("Failed to clean up expired invitations")
			return
		}
		if n > 0 {
			logger.WithField("count", n).Info("Cleaned up expired invitations")
		}
	}); err != nil {
		conns.Close()
		return err
	}
	if _, err := jobs.AddFunc("@every 15s", func() {
		metrics.UpdateDBStats(db.Stats())
	}); err != nil {
		conns.Close()
		return err
	}
	jobs.Start()

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.AddServer("health", healthServer)
	shutdown.RegisterShutdownFunc("jobs", func(ctx context.Context) error {
		select {
		case <-jobs.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.RegisterShutdownFunc("webhook_retries", func(ctx context.Context) error {
		retryWorker.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc("postgres", func(ctx context.Context) error {
		return conns.Close()
	})

	serverErr := make(chan error, 2)
	for name, srv := range map[string]*http.Server{"api": apiServer, "health": healthServer} {
		name, srv := name, srv
		go func() {
			logger.WithField("server", name).WithField("addr", srv.Addr).Info("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).WithField("server", name).Error("HTTP server failed")
				serverErr <- err
			}
		}()
	}

	waitCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-serverErr:
			stop()
		case <-waitCtx.Done():
		}
	}()

	err = shutdown.WaitForShutdown(waitCtx)
	cancel()
	return err
}
