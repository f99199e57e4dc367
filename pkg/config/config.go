package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/atrium/pkg/observability"
)

// Config holds all application configuration, loaded from ATRIUM_* env vars
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Sessions      SessionConfig
	SSO           SSOConfig
	Webhooks      WebhookConfig
	Audit         AuditConfig
	Billing       BillingConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	BaseURL         string // public URL, used in SSO redirect/callback URLs
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	AllowedOrigins  []string

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds postgres configuration
type DatabaseConfig struct {
	URL         string
	ReplicaURLs []string // read replicas, round-robin
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
}

// RedisConfig holds redis configuration. Redis is optional: the workspace
// cache and distributed rate limiter are skipped when URL is empty.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// SessionConfig holds dashboard session settings
type SessionConfig struct {
	CookieName   string
	TTL          time.Duration
	CookieSecure bool
}

// SSOConfig holds identity-provider integration settings
type SSOConfig struct {
	RolesFile string // optional roles.yaml override, hot-reloaded
}

// WebhookConfig holds delivery settings
type WebhookConfig struct {
	DeliveryTimeout  time.Duration
	MaxAttempts      int
	DispatchParallel int           // errgroup fan-out limit
	RetryInterval    time.Duration // retry worker scan interval
	RatePerDest      float64       // per-destination deliveries per second
	RateBurst        int
	RetentionPeriod  time.Duration // delivered-log retention, pruned by the janitor
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	Enabled     bool
	FilePath    string // optional JSONL mirror
	S3Bucket    string // optional archive target for the janitor
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// BillingConfig holds payment-provider settings
type BillingConfig struct {
	Enabled       bool
	WebhookSecret string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("ATRIUM_HOST", "0.0.0.0"),
			Port:            getEnv("ATRIUM_PORT", "8080"),
			BaseURL:         getEnv("ATRIUM_BASE_URL", "http://localhost:8080"),
			ReadTimeout:     getEnvDuration("ATRIUM_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("ATRIUM_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("ATRIUM_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("ATRIUM_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxBodyBytes:    getEnvInt64("ATRIUM_MAX_BODY_BYTES", 1<<20),
			AllowedOrigins:  splitList(getEnv("ATRIUM_ALLOWED_ORIGINS", "*")),
			HealthPort:      getEnv("ATRIUM_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:         getEnv("ATRIUM_POSTGRES_URL", ""),
			ReplicaURLs: splitList(getEnv("ATRIUM_POSTGRES_REPLICA_URLS", "")),
			MaxConns:    getEnvInt("ATRIUM_POSTGRES_MAX_CONNS", 25),
			MinConns:    getEnvInt("ATRIUM_POSTGRES_MIN_CONNS", 5),
			Timeout:     getEnvDuration("ATRIUM_POSTGRES_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:        getEnv("ATRIUM_REDIS_URL", ""),
			Password:   getEnv("ATRIUM_REDIS_PASSWORD", ""),
			DB:         getEnvInt("ATRIUM_REDIS_DB", 0),
			MaxRetries: getEnvInt("ATRIUM_REDIS_MAX_RETRIES", 3),
			PoolSize:   getEnvInt("ATRIUM_REDIS_POOL_SIZE", 10),
		},
		Sessions: SessionConfig{
			CookieName:   getEnv("ATRIUM_SESSION_COOKIE", "atrium_session"),
			TTL:          getEnvDuration("ATRIUM_SESSION_TTL", 24*time.Hour),
			CookieSecure: getEnvBool("ATRIUM_SESSION_COOKIE_SECURE", true),
		},
		SSO: SSOConfig{
			RolesFile: getEnv("ATRIUM_ROLES_FILE", ""),
		},
		Webhooks: WebhookConfig{
			DeliveryTimeout:  getEnvDuration("ATRIUM_WEBHOOK_TIMEOUT", 10*time.Second),
			MaxAttempts:      getEnvInt("ATRIUM_WEBHOOK_MAX_ATTEMPTS", 5),
			DispatchParallel: getEnvInt("ATRIUM_WEBHOOK_PARALLELISM", 8),
			RetryInterval:    getEnvDuration("ATRIUM_WEBHOOK_RETRY_INTERVAL", 30*time.Second),
			RatePerDest:      getEnvFloat("ATRIUM_WEBHOOK_RATE", 5),
			RateBurst:        getEnvInt("ATRIUM_WEBHOOK_BURST", 10),
			RetentionPeriod:  getEnvDuration("ATRIUM_WEBHOOK_RETENTION", 30*24*time.Hour),
		},
		Audit: AuditConfig{
			Enabled:     getEnvBool("ATRIUM_AUDIT_ENABLED", true),
			FilePath:    getEnv("ATRIUM_AUDIT_FILE", ""),
			S3Bucket:    getEnv("ATRIUM_AUDIT_S3_BUCKET", ""),
			S3Region:    getEnv("ATRIUM_AUDIT_S3_REGION", "us-east-1"),
			S3Endpoint:  getEnv("ATRIUM_AUDIT_S3_ENDPOINT", ""),
			S3AccessKey: getEnv("ATRIUM_AUDIT_S3_ACCESS_KEY", ""),
			S3SecretKey: getEnv("ATRIUM_AUDIT_S3_SECRET_KEY", ""),
		},
		Billing: BillingConfig{
			Enabled:       getEnvBool("ATRIUM_BILLING_ENABLED", false),
			WebhookSecret: getEnv("ATRIUM_BILLING_WEBHOOK_SECRET", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:           observability.ParseLevel(getEnv("ATRIUM_LOG_LEVEL", "info")),
			MetricsEnabled:     getEnvBool("ATRIUM_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("ATRIUM_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("ATRIUM_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("ATRIUM_OTEL_SERVICE_NAME", "atrium"),
			OTelServiceVersion: getEnv("ATRIUM_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("ATRIUM_OTEL_INSECURE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
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

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Sessions.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}

	if c.Webhooks.MaxAttempts < 1 {
		return fmt.Errorf("webhook max attempts must be at least 1")
	}
	if c.Webhooks.DispatchParallel < 1 {
		return fmt.Errorf("webhook dispatch parallelism must be at least 1")
	}

	if c.Billing.Enabled && c.Billing.WebhookSecret == "" {
		return fmt.Errorf("billing webhook secret is required when billing is enabled")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}


// splitList splits a comma-separated env value, dropping empty entries
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
