package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  allowed_origins: ["https://app.example.com"]
auth:
  enabled: true
  api_key: secret
logging:
  development: false
  file: /var/log/screenshotter.log
storage:
  screenshots_dir: /data/shots
  gcs_bucket: bucket
capture:
  max_concurrent_captures: 4
  quality_min_score: 75
  duplicate_hash_threshold: 3
timeouts:
  segmented_seconds: 240
browser:
  remote_url: ws://127.0.0.1:9222
  alt_flags: ["mute-audio", "lang=de-DE"]
registry:
  capacity: 500
pubsub:
  project_id: proj
  topic_name: captures
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || len(cfg.Server.AllowedOrigins) != 1 {
		t.Fatalf("expected server overrides to apply: %+v", cfg.Server)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Storage.ScreenshotsDir != "/data/shots" || cfg.Storage.GCSBucket != "bucket" {
		t.Fatalf("expected storage overrides: %+v", cfg.Storage)
	}
	if cfg.Capture.MaxConcurrentCaptures != 4 || cfg.Capture.QualityMinScore != 75 || cfg.Capture.DuplicateHashThreshold != 3 {
		t.Fatalf("expected capture overrides: %+v", cfg.Capture)
	}
	if got := cfg.TimeoutPolicy().Segmented; got != 240*time.Second {
		t.Fatalf("expected segmented timeout 240s, got %v", got)
	}
	if got := cfg.TimeoutPolicy().Normal; got != 35*time.Second {
		t.Fatalf("expected default normal timeout 35s, got %v", got)
	}
	if len(cfg.Browser.AltFlags) != 2 || cfg.Browser.RemoteURL == "" {
		t.Fatalf("expected browser overrides: %+v", cfg.Browser)
	}
	if cfg.Registry.Capacity != 500 || cfg.Registry.TTLSeconds != 3600 {
		t.Fatalf("expected registry capacity override and default ttl: %+v", cfg.Registry)
	}
	if cfg.PubSub.TopicName != "captures" {
		t.Fatalf("expected pubsub topic, got %q", cfg.PubSub.TopicName)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Capture.QualityMinScore != 60 || cfg.Capture.LazyLoadMaxChecks != 6 {
		t.Fatalf("unexpected capture defaults: %+v", cfg.Capture)
	}
	if got := cfg.LazyLoadInterval(); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms lazy-load interval, got %v", got)
	}
	if cfg.Registry.Capacity != 1000 {
		t.Fatalf("expected registry capacity 1000, got %d", cfg.Registry.Capacity)
	}
	if len(cfg.Browser.StealthUserAgents) == 0 {
		t.Fatalf("expected default stealth user agents")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("SCREENSHOTTER_SERVER_PORT", "7070")
	t.Setenv("SCREENSHOTTER_STORAGE_SCREENSHOTS_DIR", "/tmp/env-shots")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Storage.ScreenshotsDir != "/tmp/env-shots" {
		t.Fatalf("expected env screenshots dir, got %q", cfg.Storage.ScreenshotsDir)
	}
}

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cfg
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "empty screenshots dir", mutate: func(c *Config) { c.Storage.ScreenshotsDir = "" }, want: "storage.screenshots_dir"},
		{name: "no capture slots", mutate: func(c *Config) { c.Capture.MaxConcurrentCaptures = 0 }, want: "capture.max_concurrent_captures"},
		{name: "quality score range", mutate: func(c *Config) { c.Capture.QualityMinScore = 101 }, want: "capture.quality_min_score"},
		{name: "hash threshold range", mutate: func(c *Config) { c.Capture.DuplicateHashThreshold = 65 }, want: "capture.duplicate_hash_threshold"},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeouts.StealthSeconds = 0 }, want: "timeouts"},
		{name: "registry too large", mutate: func(c *Config) { c.Registry.Capacity = 1001 }, want: "registry.capacity"},
		{name: "registry ttl unset", mutate: func(c *Config) { c.Registry.TTLSeconds = 0 }, want: "registry.ttl_seconds"},
		{name: "registry ttl beyond an hour", mutate: func(c *Config) { c.Registry.TTLSeconds = 7200 }, want: "registry.ttl_seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
