// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from CLOSINGROOM_* environment
// variables with sensible defaults for local development.
//
// # Configuration Structure
//
// Server settings:
//
//	CLOSINGROOM_HOST="0.0.0.0"
//	CLOSINGROOM_PORT="8080"
//	CLOSINGROOM_HEALTH_PORT="9090"
//	CLOSINGROOM_PUBLIC_URL="https://app.closingroom.io"
//	CLOSINGROOM_CORS_ORIGINS="https://app.closingroom.io"
//
// Storage settings:
//
//	CLOSINGROOM_POSTGRES_URL="postgres://localhost/closingroom"
//	CLOSINGROOM_POSTGRES_REPLICA_URLS="postgres://replica-1/closingroom,postgres://replica-2/closingroom"
//	CLOSINGROOM_S3_BUCKET="closingroom-documents"
//	CLOSINGROOM_REDIS_URL="redis://localhost:6379/0"  # empty disables the usage cache
//	CLOSINGROOM_USAGE_CACHE_TTL="10m"
//
// Authentication (OpenID Connect ID tokens):
//
//	CLOSINGROOM_OIDC_ISSUER_URL="https://accounts.google.com"
//	CLOSINGROOM_OIDC_AUDIENCE="closingroom-web"
//
// Drafting and email:
//
//	CLOSINGROOM_OPENAI_API_KEY="sk-..."  # empty disables AI drafting
//	CLOSINGROOM_SMTP_HOST="smtp.postmarkapp.com"
//	CLOSINGROOM_SMTP_FROM="Closingroom <no-reply@closingroom.io>"
//
// Billing:
//
//	CLOSINGROOM_BILLING_CURRENCY="usd"
//	CLOSINGROOM_INVOICE_DUE_DAYS="14"
//	CLOSINGROOM_CYCLE_SCHEDULE="@hourly"
//
// Observability settings:
//
//	CLOSINGROOM_LOG_LEVEL="info"  # debug, info, warn, error
//	CLOSINGROOM_METRICS_ENABLED="true"
//	CLOSINGROOM_OTEL_ENABLED="true"
//	CLOSINGROOM_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/auth: Uses the OIDC configuration
//   - pkg/observability: Uses observability configuration
package config
