package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/closingroom/pkg/auth"
	"github.com/platinummonkey/closingroom/pkg/drafting"
	"github.com/platinummonkey/closingroom/pkg/email"
	"github.com/platinummonkey/closingroom/pkg/observability"
	"github.com/platinummonkey/closingroom/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Auth          auth.Config
	AI            drafting.Config
	Email         email.Config
	Webhooks      WebhookConfig
	Billing       BillingConfig
	Templates     TemplateConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// PublicURL is the web app's base URL used in email links
	PublicURL   string
	CORSOrigins []string

	// Health/metrics server (separate port for k8s liveness and readiness checks)
	HealthPort string
}

// WebhookConfig holds outbound webhook settings
type WebhookConfig struct {
	RateLimit     int
	RatePeriod    time.Duration
	MaxAttempts   int
	RetryInterval time.Duration
}

// BillingConfig holds invoicing and cycle job settings
type BillingConfig struct {
	Currency       string
	InvoiceDueDays int
	CycleSchedule  string
	Concurrency    int
}

// TemplateConfig holds the built-in template library settings
type TemplateConfig struct {
	LibraryDir string
	Watch      bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelEnvironment    string
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		AI:            loadAIConfig(),
		Email:         loadEmailConfig(),
		Webhooks:      loadWebhookConfig(),
		Billing:       loadBillingConfig(),
		Templates:     loadTemplateConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CLOSINGROOM_HOST", "0.0.0.0"),
		Port:            getEnv("CLOSINGROOM_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CLOSINGROOM_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CLOSINGROOM_WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:     getEnvDuration("CLOSINGROOM_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CLOSINGROOM_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("CLOSINGROOM_MAX_BODY_BYTES", 1<<20),
		PublicURL:       strings.TrimRight(getEnv("CLOSINGROOM_PUBLIC_URL", "http://localhost:3000"), "/"),
		CORSOrigins:     getEnvList("CLOSINGROOM_CORS_ORIGINS"),
		HealthPort:      getEnv("CLOSINGROOM_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// PostgreSQL config
	if pgURL := getEnv("CLOSINGROOM_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicas := getEnvList("CLOSINGROOM_POSTGRES_REPLICA_URLS"); len(replicas) > 0 {
		cfg.PostgresReplicaURLs = replicas
	}
	if maxConns := getEnvInt("CLOSINGROOM_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("CLOSINGROOM_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("CLOSINGROOM_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// S3 config
	cfg.S3Endpoint = getEnv("CLOSINGROOM_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("CLOSINGROOM_S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("CLOSINGROOM_S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("CLOSINGROOM_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("CLOSINGROOM_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3UsePathStyle = getEnvBool("CLOSINGROOM_S3_USE_PATH_STYLE", cfg.S3UsePathStyle)

	// Redis config; an explicitly empty URL disables the cache
	if redisURL, ok := os.LookupEnv("CLOSINGROOM_REDIS_URL"); ok {
		cfg.RedisURL = redisURL
	}
	cfg.RedisPassword = getEnv("CLOSINGROOM_REDIS_PASSWORD", cfg.RedisPassword)
	if redisDB := getEnvInt("CLOSINGROOM_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("CLOSINGROOM_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("CLOSINGROOM_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}
	cfg.UsageCacheTTL = getEnvDuration("CLOSINGROOM_USAGE_CACHE_TTL", cfg.UsageCacheTTL)

	return cfg
}

func loadAuthConfig() auth.Config {
	return auth.Config{
		IssuerURL:            getEnv("CLOSINGROOM_OIDC_ISSUER_URL", ""),
		Audience:             getEnv("CLOSINGROOM_OIDC_AUDIENCE", ""),
		SkipIssuerCheck:      getEnvBool("CLOSINGROOM_OIDC_SKIP_ISSUER_CHECK", false),
		RequireVerifiedEmail: getEnvBool("CLOSINGROOM_OIDC_REQUIRE_VERIFIED_EMAIL", true),
	}
}

func loadAIConfig() drafting.Config {
	return drafting.Config{
		APIKey:      getEnv("CLOSINGROOM_OPENAI_API_KEY", ""),
		Model:       getEnv("CLOSINGROOM_OPENAI_MODEL", "gpt-4o-mini"),
		BaseURL:     getEnv("CLOSINGROOM_OPENAI_BASE_URL", ""),
		MaxTokens:   getEnvInt("CLOSINGROOM_OPENAI_MAX_TOKENS", 800),
		Temperature: float32(getEnvFloat("CLOSINGROOM_OPENAI_TEMPERATURE", 0.2)),
		Timeout:     getEnvDuration("CLOSINGROOM_OPENAI_TIMEOUT", 60*time.Second),
	}
}

func loadEmailConfig() email.Config {
	return email.Config{
		Host:     getEnv("CLOSINGROOM_SMTP_HOST", ""),
		Port:     getEnvInt("CLOSINGROOM_SMTP_PORT", 587),
		Username: getEnv("CLOSINGROOM_SMTP_USERNAME", ""),
		Password: getEnv("CLOSINGROOM_SMTP_PASSWORD", ""),
		From:     getEnv("CLOSINGROOM_SMTP_FROM", ""),
		Timeout:  getEnvDuration("CLOSINGROOM_SMTP_TIMEOUT", 10*time.Second),
	}
}

func loadWebhookConfig() WebhookConfig {
	return WebhookConfig{
		RateLimit:     getEnvInt("CLOSINGROOM_WEBHOOK_RATE_LIMIT", 100),
		RatePeriod:    getEnvDuration("CLOSINGROOM_WEBHOOK_RATE_PERIOD", time.Minute),
		MaxAttempts:   getEnvInt("CLOSINGROOM_WEBHOOK_MAX_ATTEMPTS", 5),
		RetryInterval: getEnvDuration("CLOSINGROOM_WEBHOOK_RETRY_INTERVAL", 10*time.Second),
	}
}

func loadBillingConfig() BillingConfig {
	return BillingConfig{
		Currency:       strings.ToLower(getEnv("CLOSINGROOM_BILLING_CURRENCY", "usd")),
		InvoiceDueDays: getEnvInt("CLOSINGROOM_INVOICE_DUE_DAYS", 14),
		CycleSchedule:  getEnv("CLOSINGROOM_CYCLE_SCHEDULE", "@hourly"),
		Concurrency:    getEnvInt("CLOSINGROOM_CYCLE_CONCURRENCY", 8),
	}
}

func loadTemplateConfig() TemplateConfig {
	return TemplateConfig{
		LibraryDir: getEnv("CLOSINGROOM_TEMPLATE_DIR", "templates"),
		Watch:      getEnvBool("CLOSINGROOM_TEMPLATE_WATCH", false),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("CLOSINGROOM_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("CLOSINGROOM_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CLOSINGROOM_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CLOSINGROOM_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CLOSINGROOM_OTEL_SERVICE_NAME", "closingroom"),
		OTelServiceVersion: getEnv("CLOSINGROOM_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CLOSINGROOM_OTEL_INSECURE", true),
		OTelEnvironment:    getEnv("CLOSINGROOM_ENVIRONMENT", ""),
		OTelSampleRatio:    getEnvFloat("CLOSINGROOM_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.S3Bucket == "" {
		return fmt.Errorf("S3 bucket is required for document storage")
	}

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	if c.Email.Host != "" && c.Email.From == "" {
		return fmt.Errorf("SMTP from address is required when SMTP is enabled")
	}

	if len(c.Billing.Currency) != 3 {
		return fmt.Errorf("invalid billing currency: %q", c.Billing.Currency)
	}
	if c.Billing.InvoiceDueDays < 0 {
		return fmt.Errorf("invoice due days must not be negative")
	}
	if c.Billing.Concurrency <= 0 {
		return fmt.Errorf("cycle concurrency must be positive")
	}

	if c.Webhooks.RateLimit <= 0 || c.Webhooks.RatePeriod <= 0 {
		return fmt.Errorf("webhook rate limit and period must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable, dropping empty items
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
