// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Overview
//
// This package centralizes observability infrastructure including JSON logging, metrics
// collection, health checks, and distributed tracing integration.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("team_id", teamID).Info("Invoice generated")
//
// Request-scoped loggers travel in the context. FromContext adds the request, user and
// team IDs plus the active trace and span IDs:
//
//	observability.FromContext(ctx).WithError(err).Error("Failed to render contract")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordPlanDecision("contracts", "overage")
//	metrics.RecordAIDraft("clause", time.Since(start), prompt, completion, err)
//
// The Record helpers accept a nil *Metrics. AttachOTel mirrors them to OpenTelemetry.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient).WithObjectStore(s3Client)
//	observability.RegisterHealthRoutes(mux, checker)
//
// Postgres is required. Redis and the document store only degrade the service, and
// /health/ready answers 503 only when it is unhealthy.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "closingroom",
//		Environment: "production",
//		SampleRatio: 0.1,
//		Insecure:    true,
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging middleware
package observability
