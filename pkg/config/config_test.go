package config

import (
	"os"
	"testing"
	"time"

	"github.com/platinummonkey/closingroom/pkg/auth"
	"github.com/platinummonkey/closingroom/pkg/observability"
	"github.com/platinummonkey/closingroom/pkg/storage"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{
			name:         "returns true for 'true'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "true",
			want:         true,
		},
		{
			name:         "returns true for '1'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "1",
			want:         true,
		},
		{
			name:         "returns false for 'false'",
			key:          "TEST_BOOL",
			defaultValue: true,
			envValue:     "false",
			want:         false,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_BOOL_NOT_SET",
			defaultValue: true,
			envValue:     "",
			want:         true,
		},
		{
			name:         "returns true for 'TRUE' (case insensitive)",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "TRUE",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvInt tests the getEnvInt helper function
func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns parsed int",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "42",
			want:         42,
		},
		{
			name:         "returns default for invalid int",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "invalid",
			want:         10,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOT_SET",
			defaultValue: 10,
			envValue:     "",
			want:         10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvInt64 tests the getEnvInt64 helper function
func TestGetEnvInt64(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int64
		envValue     string
		want         int64
	}{
		{
			name:         "returns parsed int64",
			key:          "TEST_INT64",
			defaultValue: 10,
			envValue:     "9223372036854775807",
			want:         9223372036854775807,
		},
		{
			name:         "returns default for invalid int64",
			key:          "TEST_INT64",
			defaultValue: 10,
			envValue:     "invalid",
			want:         10,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT64_NOT_SET",
			defaultValue: 10,
			envValue:     "",
			want:         10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvInt64(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt64() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns parsed duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default for invalid duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOT_SET",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestParseLogLevel tests the parseLogLevel function
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  observability.LogLevel
	}{
		{
			name:  "debug",
			level: "debug",
			want:  observability.DebugLevel,
		},
		{
			name:  "DEBUG uppercase",
			level: "DEBUG",
			want:  observability.DebugLevel,
		},
		{
			name:  "info",
			level: "info",
			want:  observability.InfoLevel,
		},
		{
			name:  "warn",
			level: "warn",
			want:  observability.WarnLevel,
		},
		{
			name:  "warning",
			level: "warning",
			want:  observability.WarnLevel,
		},
		{
			name:  "error",
			level: "error",
			want:  observability.ErrorLevel,
		},
		{
			name:  "invalid defaults to info",
			level: "invalid",
			want:  observability.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseLogLevel(tt.level)
			if got != tt.want {
				t.Errorf("parseLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvList tests the getEnvList helper function
func TestGetEnvList(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     []string
	}{
		{name: "unset", envValue: "", want: nil},
		{name: "single", envValue: "a", want: []string{"a"}},
		{name: "trims and drops empty items", envValue: " a, ,b ,", want: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_LIST", tt.envValue)
			got := getEnvList("TEST_LIST")
			if len(got) != len(tt.want) {
				t.Fatalf("getEnvList() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("getEnvList()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// TestLoadServerConfig tests the loadServerConfig function
func TestLoadServerConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		got := loadServerConfig()
		if got.Host != "0.0.0.0" || got.Port != "8080" || got.HealthPort != "9090" {
			t.Errorf("unexpected listen config: %+v", got)
		}
		if got.ReadTimeout != 15*time.Second {
			t.Errorf("ReadTimeout = %v, want 15s", got.ReadTimeout)
		}
		if got.WriteTimeout != 90*time.Second {
			t.Errorf("WriteTimeout = %v, want 90s", got.WriteTimeout)
		}
		if got.MaxBodyBytes != 1<<20 {
			t.Errorf("MaxBodyBytes = %v, want 1MiB", got.MaxBodyBytes)
		}
		if got.PublicURL != "http://localhost:3000" {
			t.Errorf("PublicURL = %v", got.PublicURL)
		}
		if len(got.CORSOrigins) != 0 {
			t.Errorf("CORSOrigins = %v, want none", got.CORSOrigins)
		}
	})

	t.Run("custom values", func(t *testing.T) {
		t.Setenv("CLOSINGROOM_HOST", "localhost")
		t.Setenv("CLOSINGROOM_PORT", "3000")
		t.Setenv("CLOSINGROOM_READ_TIMEOUT", "30s")
		t.Setenv("CLOSINGROOM_SHUTDOWN_TIMEOUT", "60s")
		t.Setenv("CLOSINGROOM_HEALTH_PORT", "9091")
		t.Setenv("CLOSINGROOM_PUBLIC_URL", "https://app.closingroom.io/")
		t.Setenv("CLOSINGROOM_CORS_ORIGINS", "https://app.closingroom.io,https://admin.closingroom.io")

		got := loadServerConfig()
		if got.Host != "localhost" || got.Port != "3000" || got.HealthPort != "9091" {
			t.Errorf("unexpected listen config: %+v", got)
		}
		if got.ReadTimeout != 30*time.Second {
			t.Errorf("ReadTimeout = %v, want 30s", got.ReadTimeout)
		}
		if got.ShutdownTimeout != 60*time.Second {
			t.Errorf("ShutdownTimeout = %v, want 60s", got.ShutdownTimeout)
		}
		if got.PublicURL != "https://app.closingroom.io" {
			t.Errorf("PublicURL = %v, want trailing slash trimmed", got.PublicURL)
		}
		if len(got.CORSOrigins) != 2 {
			t.Errorf("CORSOrigins = %v, want 2 origins", got.CORSOrigins)
		}
	})
}

// TestLoadStorageConfig tests the loadStorageConfig function
func TestLoadStorageConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		got := loadStorageConfig()
		if got.PostgresURL == "" {
			t.Error("PostgresURL should default to a local database")
		}
		if got.S3Bucket != "closingroom-documents" {
			t.Errorf("S3Bucket = %v", got.S3Bucket)
		}
		if got.UsageCacheTTL != 10*time.Minute {
			t.Errorf("UsageCacheTTL = %v, want 10m", got.UsageCacheTTL)
		}
	})

	t.Run("custom values", func(t *testing.T) {
		t.Setenv("CLOSINGROOM_POSTGRES_URL", "postgres://db:5432/cr")
		t.Setenv("CLOSINGROOM_POSTGRES_REPLICA_URLS", "postgres://r1:5432/cr, postgres://r2:5432/cr")
		t.Setenv("CLOSINGROOM_POSTGRES_MAX_CONNS", "50")
		t.Setenv("CLOSINGROOM_S3_ENDPOINT", "http://minio:9000")
		t.Setenv("CLOSINGROOM_S3_BUCKET", "docs")
		t.Setenv("CLOSINGROOM_S3_USE_PATH_STYLE", "true")
		t.Setenv("CLOSINGROOM_REDIS_URL", "redis://cache:6379/1")
		t.Setenv("CLOSINGROOM_REDIS_DB", "2")
		t.Setenv("CLOSINGROOM_USAGE_CACHE_TTL", "1m")

		got := loadStorageConfig()
		if got.PostgresURL != "postgres://db:5432/cr" {
			t.Errorf("PostgresURL = %v", got.PostgresURL)
		}
		if len(got.PostgresReplicaURLs) != 2 || got.PostgresReplicaURLs[1] != "postgres://r2:5432/cr" {
			t.Errorf("PostgresReplicaURLs = %v", got.PostgresReplicaURLs)
		}
		if got.PostgresMaxConns != 50 {
			t.Errorf("PostgresMaxConns = %v, want 50", got.PostgresMaxConns)
		}
		if got.S3Endpoint != "http://minio:9000" || got.S3Bucket != "docs" || !got.S3UsePathStyle {
			t.Errorf("unexpected S3 config: %+v", got)
		}
		if got.RedisURL != "redis://cache:6379/1" || got.RedisDB != 2 {
			t.Errorf("unexpected Redis config: %v db=%d", got.RedisURL, got.RedisDB)
		}
		if got.UsageCacheTTL != time.Minute {
			t.Errorf("UsageCacheTTL = %v, want 1m", got.UsageCacheTTL)
		}
	})

	t.Run("empty redis url disables cache", func(t *testing.T) {
		t.Setenv("CLOSINGROOM_REDIS_URL", "")
		if got := loadStorageConfig(); got.RedisURL != "" {
			t.Errorf("RedisURL = %v, want empty", got.RedisURL)
		}
	})
}

// TestLoadAuthConfig tests the loadAuthConfig function
func TestLoadAuthConfig(t *testing.T) {
	t.Setenv("CLOSINGROOM_OIDC_ISSUER_URL", "https://accounts.example.com")
	t.Setenv("CLOSINGROOM_OIDC_AUDIENCE", "closingroom-web")

	got := loadAuthConfig()
	if got.IssuerURL != "https://accounts.example.com" || got.Audience != "closingroom-web" {
		t.Errorf("unexpected auth config: %+v", got)
	}
	if !got.RequireVerifiedEmail {
		t.Error("RequireVerifiedEmail should default to true")
	}
	if got.SkipIssuerCheck {
		t.Error("SkipIssuerCheck should default to false")
	}
}

// TestLoadAIConfig tests the loadAIConfig function
func TestLoadAIConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		got := loadAIConfig()
		if got.APIKey != "" {
			t.Error("APIKey should be empty by default")
		}
		if got.Model != "gpt-4o-mini" || got.MaxTokens != 800 {
			t.Errorf("unexpected defaults: %+v", got)
		}
		if got.Temperature != 0.2 {
			t.Errorf("Temperature = %v, want 0.2", got.Temperature)
		}
	})

	t.Run("custom values", func(t *testing.T) {
		t.Setenv("CLOSINGROOM_OPENAI_API_KEY", "sk-test")
		t.Setenv("CLOSINGROOM_OPENAI_MODEL", "gpt-4o")
		t.Setenv("CLOSINGROOM_OPENAI_TEMPERATURE", "0.5")
		t.Setenv("CLOSINGROOM_OPENAI_TIMEOUT", "2m")

		got := loadAIConfig()
		if got.APIKey != "sk-test" || got.Model != "gpt-4o" {
			t.Errorf("unexpected AI config: %+v", got)
		}
		if got.Temperature != 0.5 {
			t.Errorf("Temperature = %v, want 0.5", got.Temperature)
		}
		if got.Timeout != 2*time.Minute {
			t.Errorf("Timeout = %v, want 2m", got.Timeout)
		}
	})
}

// TestLoadBillingConfig tests the loadBillingConfig function
func TestLoadBillingConfig(t *testing.T) {
	t.Setenv("CLOSINGROOM_BILLING_CURRENCY", "EUR")
	t.Setenv("CLOSINGROOM_CYCLE_SCHEDULE", "*/15 * * * *")

	got := loadBillingConfig()
	if got.Currency != "eur" {
		t.Errorf("Currency = %v, want lower-cased eur", got.Currency)
	}
	if got.CycleSchedule != "*/15 * * * *" {
		t.Errorf("CycleSchedule = %v", got.CycleSchedule)
	}
	if got.InvoiceDueDays != 14 || got.Concurrency != 8 {
		t.Errorf("unexpected defaults: %+v", got)
	}
}

// TestLoadObservabilityConfig tests the loadObservabilityConfig function
func TestLoadObservabilityConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		got := loadObservabilityConfig()
		if got.LogLevel != observability.InfoLevel {
			t.Errorf("LogLevel = %v, want info", got.LogLevel)
		}
		if !got.MetricsEnabled {
			t.Error("MetricsEnabled should default to true")
		}
		if got.OTelEnabled {
			t.Error("OTelEnabled should default to false")
		}
		if got.OTelServiceName != "closingroom" {
			t.Errorf("OTelServiceName = %v", got.OTelServiceName)
		}
		if got.OTelSampleRatio != 1 {
			t.Errorf("OTelSampleRatio = %v, want 1", got.OTelSampleRatio)
		}
	})

	t.Run("custom values", func(t *testing.T) {
		t.Setenv("CLOSINGROOM_LOG_LEVEL", "debug")
		t.Setenv("CLOSINGROOM_OTEL_ENABLED", "true")
		t.Setenv("CLOSINGROOM_OTEL_ENDPOINT", "otel:4317")
		t.Setenv("CLOSINGROOM_OTEL_INSECURE", "false")
		t.Setenv("CLOSINGROOM_OTEL_SAMPLE_RATIO", "0.1")
		t.Setenv("CLOSINGROOM_ENVIRONMENT", "staging")

		got := loadObservabilityConfig()
		if got.LogLevel != observability.DebugLevel {
			t.Errorf("LogLevel = %v, want debug", got.LogLevel)
		}
		if !got.OTelEnabled || got.OTelEndpoint != "otel:4317" || got.OTelInsecure {
			t.Errorf("unexpected OTel config: %+v", got)
		}
		if got.OTelSampleRatio != 0.1 || got.OTelEnvironment != "staging" {
			t.Errorf("unexpected sampling config: %+v", got)
		}
	})
}

func validConfig() Config {
	return Config{
		Server: ServerConfig{Port: "8080", HealthPort: "9090"},
		Storage: storage.Config{
			PostgresURL: "postgres://localhost/closingroom",
			S3Bucket:    "docs",
		},
		Auth:     auth.Config{IssuerURL: "https://accounts.example.com", Audience: "closingroom-web"},
		Billing:  BillingConfig{Currency: "usd", InvoiceDueDays: 14, Concurrency: 4},
		Webhooks: WebhookConfig{RateLimit: 100, RatePeriod: time.Minute},
	}
}

// TestConfigValidate tests Config.Validate
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing server port",
			mutate:  func(c *Config) { c.Server.Port = "" },
			wantErr: "server port is required",
		},
		{
			name:    "missing health port",
			mutate:  func(c *Config) { c.Server.HealthPort = "" },
			wantErr: "health port is required",
		},
		{
			name:    "same server and health port",
			mutate:  func(c *Config) { c.Server.HealthPort = "8080" },
			wantErr: "server port and health port must be different",
		},
		{
			name:    "missing postgres",
			mutate:  func(c *Config) { c.Storage.PostgresURL = "" },
			wantErr: "postgres URL is required",
		},
		{
			name:    "missing bucket",
			mutate:  func(c *Config) { c.Storage.S3Bucket = "" },
			wantErr: "S3 bucket is required for document storage",
		},
		{
			name:    "missing issuer",
			mutate:  func(c *Config) { c.Auth.IssuerURL = "" },
			wantErr: "auth: issuer_url is required",
		},
		{
			name:    "smtp host without from",
			mutate:  func(c *Config) { c.Email.Host = "smtp.example.com" },
			wantErr: "SMTP from address is required when SMTP is enabled",
		},
		{
			name:    "bad currency",
			mutate:  func(c *Config) { c.Billing.Currency = "dollars" },
			wantErr: `invalid billing currency: "dollars"`,
		},
		{
			name:    "negative due days",
			mutate:  func(c *Config) { c.Billing.InvoiceDueDays = -1 },
			wantErr: "invoice due days must not be negative",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Billing.Concurrency = 0 },
			wantErr: "cycle concurrency must be positive",
		},
		{
			name:    "zero webhook rate",
			mutate:  func(c *Config) { c.Webhooks.RateLimit = 0 },
			wantErr: "webhook rate limit and period must be positive",
		},
		{
			name: "otel enabled without endpoint",
			mutate: func(c *Config) {
				c.Observability = ObservabilityConfig{OTelEnabled: true, OTelServiceName: "test"}
			},
			wantErr: "OpenTelemetry endpoint is required when OTel is enabled",
		},
		{
			name: "otel enabled without service name",
			mutate: func(c *Config) {
				c.Observability = ObservabilityConfig{OTelEnabled: true, OTelEndpoint: "localhost:4317"}
			},
			wantErr: "OpenTelemetry service name is required when OTel is enabled",
		},
		{
			name: "otel sample ratio above one",
			mutate: func(c *Config) {
				c.Observability = ObservabilityConfig{OTelEnabled: true, OTelEndpoint: "localhost:4317", OTelServiceName: "test", OTelSampleRatio: 2}
			},
			wantErr: "OpenTelemetry sample ratio must be between 0 and 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error %q, got nil", tt.wantErr)
			}
			if err.Error() != tt.wantErr {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

// TestLoadConfig tests the LoadConfig function
func TestLoadConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		t.Setenv("CLOSINGROOM_OIDC_ISSUER_URL", "https://accounts.example.com")
		t.Setenv("CLOSINGROOM_OIDC_AUDIENCE", "closingroom-web")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.Templates.LibraryDir != "templates" {
			t.Errorf("LibraryDir = %v, want templates", cfg.Templates.LibraryDir)
		}
		if cfg.Webhooks.MaxAttempts != 5 {
			t.Errorf("Webhooks.MaxAttempts = %v, want 5", cfg.Webhooks.MaxAttempts)
		}
	})

	t.Run("invalid config - same ports", func(t *testing.T) {
		t.Setenv("CLOSINGROOM_OIDC_ISSUER_URL", "https://accounts.example.com")
		t.Setenv("CLOSINGROOM_OIDC_AUDIENCE", "closingroom-web")
		t.Setenv("CLOSINGROOM_PORT", "8080")
		t.Setenv("CLOSINGROOM_HEALTH_PORT", "8080")

		if _, err := LoadConfig(); err == nil {
			t.Error("LoadConfig() expected error for clashing ports")
		}
	})

	t.Run("missing auth", func(t *testing.T) {
		t.Setenv("CLOSINGROOM_OIDC_ISSUER_URL", "")
		if _, err := LoadConfig(); err == nil {
			t.Error("LoadConfig() expected error without an issuer")
		}
	})
}
