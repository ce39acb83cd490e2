// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string

	DBDriver           string // "sqlite" or "postgres"
	DBPath             string
	DatabaseURL        string
	DBMaxRetries       int
	DBRetryBaseDelay   time.Duration
	BreakerThreshold   int
	BreakerOpenTimeout time.Duration

	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration

	FeedDefaultPageSize int
	FeedMaxPageSize     int

	SessionRetention       time.Duration
	RetentionSweepInterval time.Duration

	Export ExportConfig
}

// ExportConfig controls the S3 export of completed carts. Export is disabled
// when Bucket is empty.
type ExportConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
	Prefix    string
}

// Enabled reports whether a bucket is configured.
func (e ExportConfig) Enabled() bool {
	return e.Bucket != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),

		DBDriver:           strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:             getEnv("DB_PATH", "./data/sommelier.db"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		DBMaxRetries:       getEnvInt("DB_MAX_RETRIES", 5),
		DBRetryBaseDelay:   getEnvDuration("DB_RETRY_BASE_DELAY", 10*time.Millisecond),
		BreakerThreshold:   getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerOpenTimeout: getEnvDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRequests:  getEnvInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		FeedDefaultPageSize: getEnvInt("FEED_DEFAULT_PAGE_SIZE", 10),
		FeedMaxPageSize:     getEnvInt("FEED_MAX_PAGE_SIZE", 50),

		SessionRetention:       getEnvDuration("SESSION_RETENTION", 7*24*time.Hour),
		RetentionSweepInterval: getEnvDuration("RETENTION_SWEEP_INTERVAL", time.Hour),

		Export: ExportConfig{
			Bucket:    getEnv("EXPORT_S3_BUCKET", ""),
			Region:    getEnv("EXPORT_S3_REGION", "us-east-1"),
			Endpoint:  getEnv("EXPORT_S3_ENDPOINT", ""),
			PathStyle: getEnvBool("EXPORT_S3_PATH_STYLE", false),
			Prefix:    getEnv("EXPORT_S3_PREFIX", "carts/"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	if c.DBMaxRetries <= 0 {
		return fmt.Errorf("DB_MAX_RETRIES must be > 0")
	}
	if c.BreakerThreshold <= 0 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be > 0")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.FeedDefaultPageSize <= 0 {
		return fmt.Errorf("FEED_DEFAULT_PAGE_SIZE must be > 0")
	}
	if c.FeedMaxPageSize < c.FeedDefaultPageSize {
		return fmt.Errorf("FEED_MAX_PAGE_SIZE must be >= FEED_DEFAULT_PAGE_SIZE")
	}
	if c.SessionRetention <= 0 || c.RetentionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_RETENTION and RETENTION_SWEEP_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
