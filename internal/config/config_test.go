package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EXPORT_S3_BUCKET", "")
	t.Setenv("PORT", "8080")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", "./data/test.db")
	t.Setenv("SESSION_RETENTION", "48h")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.example, http://localhost:3000 ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SessionRetention != 48*time.Hour {
		t.Errorf("expected 48h retention, got %v", cfg.SessionRetention)
	}
	if got := strings.Join(cfg.CORSAllowedOrigins, "|"); got != "https://shop.example|http://localhost:3000" {
		t.Errorf("unexpected origins %q", got)
	}
	if cfg.Export.Enabled() {
		t.Error("export must be disabled without a bucket")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:                   "8080",
			DBDriver:               "sqlite",
			DBPath:                 "x.db",
			DBMaxRetries:           3,
			BreakerThreshold:       5,
			RateLimitRequests:      10,
			RateLimitWindow:        time.Minute,
			FeedDefaultPageSize:    10,
			FeedMaxPageSize:        50,
			SessionRetention:       time.Hour,
			RetentionSweepInterval: time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty port", func(c *Config) { c.Port = "" }, "PORT"},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, "DB_DRIVER"},
		{"postgres without url", func(c *Config) { c.DBDriver = "postgres" }, "DATABASE_URL"},
		{"postgres with url", func(c *Config) { c.DBDriver = "postgres"; c.DatabaseURL = "postgres://x" }, ""},
		{"page sizes", func(c *Config) { c.FeedMaxPageSize = 5 }, "FEED_MAX_PAGE_SIZE"},
		{"retention", func(c *Config) { c.SessionRetention = 0 }, "SESSION_RETENTION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "yes")
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "90s")
	if !getEnvBool("X_BOOL", false) {
		t.Error("expected true")
	}
	if getEnvInt("X_INT", 7) != 7 {
		t.Error("expected fallback for unparsable int")
	}
	if getEnvDuration("X_DUR", 0) != 90*time.Second {
		t.Error("expected 90s")
	}
}
