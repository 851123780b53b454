package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("PORT", "")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", config.Port)
	}
	if config.GeneratedReportTTL != time.Hour {
		t.Errorf("Expected TTL 1h, got %v", config.GeneratedReportTTL)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `port: "9090"
database_path: /tmp/reports.db
gemini_model: gemini-2.5-pro
generated_report_ttl: 30m
query_concurrency: 8
allowed_origins:
  - https://app.example.com
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_PORT", "")
	t.Setenv("PORT", "")
	t.Setenv("QUERY_CONCURRENCY", "2")
	t.Setenv("ALLOW_RAW_STATIC_TEXT", "true")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Port != "9090" || config.DatabasePath != "/tmp/reports.db" {
		t.Errorf("File values not applied: %+v", config)
	}
	if config.GeneratedReportTTL != 30*time.Minute {
		t.Errorf("Expected TTL 30m, got %v", config.GeneratedReportTTL)
	}
	if config.QueryConcurrency != 2 {
		t.Errorf("Environment must override file, got %d", config.QueryConcurrency)
	}
	if !config.AllowRawStaticText {
		t.Error("Expected AllowRawStaticText from environment")
	}
	if len(config.AllowedOrigins) != 1 || config.AllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("Unexpected origins: %v", config.AllowedOrigins)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"idle above open", func(c *Config) { c.MaxIdleConns = c.MaxOpenConns + 1 }},
		{"zero rps", func(c *Config) { c.GeminiRequestsPerSecond = 0 }},
		{"zero ttl", func(c *Config) { c.GeneratedReportTTL = 0 }},
		{"look template without id", func(c *Config) { c.LookImageURLTemplate = "https://looker/api/looks/run" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			if err := config.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Default config must be valid: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := LoadConfig(); err == nil {
		t.Error("Expected error for missing config file")
	}
}
