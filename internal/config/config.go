// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/screenshot-orchestrator/internal/timeout"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Registry RegistryConfig `mapstructure:"registry"`
	Events   EventsConfig   `mapstructure:"events"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int      `mapstructure:"port"`
	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	RequestTimeoutSeconds int      `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features and optional file output.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
}

// StorageConfig sets artifact and auth-state locations.
type StorageConfig struct {
	ScreenshotsDir string `mapstructure:"screenshots_dir"`
	AuthStateFile  string `mapstructure:"auth_state_file"`
	GCSBucket      string `mapstructure:"gcs_bucket"`
	GCSPrefix      string `mapstructure:"gcs_prefix"`
}

// CaptureConfig tunes the capture engine.
type CaptureConfig struct {
	MaxConcurrentCaptures  int     `mapstructure:"max_concurrent_captures"`
	SameOriginWidth        int     `mapstructure:"same_origin_width"`
	CrossOriginWidth       int     `mapstructure:"cross_origin_width"`
	QualityMinScore        float64 `mapstructure:"quality_min_score"`
	QualityBlankThreshold  float64 `mapstructure:"quality_blank_threshold"`
	DuplicateHashAlgorithm string  `mapstructure:"duplicate_hash_algorithm"`
	DuplicateHashThreshold int     `mapstructure:"duplicate_hash_threshold"`
	LazyLoadMaxChecks      int     `mapstructure:"lazy_load_max_checks"`
	LazyLoadIntervalMs     int     `mapstructure:"lazy_load_interval_ms"`
	LazyLoadStableChecks   int     `mapstructure:"lazy_load_stable_checks"`
	RateLimitRPS           float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst         int     `mapstructure:"rate_limit_burst"`
	AllowPrivateHosts      bool    `mapstructure:"allow_private_hosts"`
}

// TimeoutsConfig holds the per-mode default deadlines in seconds.
type TimeoutsConfig struct {
	NormalSeconds      int `mapstructure:"normal_seconds"`
	RealBrowserSeconds int `mapstructure:"real_browser_seconds"`
	AltEngineSeconds   int `mapstructure:"alt_engine_seconds"`
	StealthSeconds     int `mapstructure:"stealth_seconds"`
	SegmentedSeconds   int `mapstructure:"segmented_seconds"`
}

// BrowserConfig configures Chrome launch and attachment.
type BrowserConfig struct {
	ExecPath          string   `mapstructure:"exec_path"`
	Headless          bool     `mapstructure:"headless"`
	UserAgent         string   `mapstructure:"user_agent"`
	StealthUserAgents []string `mapstructure:"stealth_user_agents"`
	RemoteURL         string   `mapstructure:"remote_url"`
	AltFlags          []string `mapstructure:"alt_flags"`
}

// RegistryConfig bounds the cancellation registry.
type RegistryConfig struct {
	Capacity             int `mapstructure:"capacity"`
	TTLSeconds           int `mapstructure:"ttl_seconds"`
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
}

// EventsConfig sizes the progress hub.
type EventsConfig struct {
	SubscriberBuffer int  `mapstructure:"subscriber_buffer"`
	SinkBuffer       int  `mapstructure:"sink_buffer"`
	BatchMaxEvents   int  `mapstructure:"batch_max_events"`
	BatchMaxWaitMs   int  `mapstructure:"batch_max_wait_ms"`
	LogEnabled       bool `mapstructure:"log_enabled"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCREENSHOTTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:1420", "tauri://localhost"})
	v.SetDefault("server.request_timeout_seconds", 1800)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("storage.screenshots_dir", "screenshots")
	v.SetDefault("storage.auth_state_file", "auth_state.json")
	v.SetDefault("storage.gcs_prefix", "screenshots")
	v.SetDefault("capture.max_concurrent_captures", 10)
	v.SetDefault("capture.same_origin_width", 2)
	v.SetDefault("capture.cross_origin_width", 8)
	v.SetDefault("capture.quality_min_score", 60)
	v.SetDefault("capture.quality_blank_threshold", 10)
	v.SetDefault("capture.duplicate_hash_algorithm", "perception")
	v.SetDefault("capture.duplicate_hash_threshold", 0)
	v.SetDefault("capture.lazy_load_max_checks", 6)
	v.SetDefault("capture.lazy_load_interval_ms", 500)
	v.SetDefault("capture.lazy_load_stable_checks", 2)
	v.SetDefault("capture.rate_limit_rps", 2)
	v.SetDefault("capture.rate_limit_burst", 4)
	v.SetDefault("capture.allow_private_hosts", false)
	v.SetDefault("timeouts.normal_seconds", 35)
	v.SetDefault("timeouts.real_browser_seconds", 90)
	v.SetDefault("timeouts.alt_engine_seconds", 120)
	v.SetDefault("timeouts.stealth_seconds", 90)
	v.SetDefault("timeouts.segmented_seconds", 120)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.stealth_user_agents", []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	})
	v.SetDefault("registry.capacity", 1000)
	v.SetDefault("registry.ttl_seconds", 3600)
	v.SetDefault("registry.sweep_interval_seconds", 60)
	v.SetDefault("events.subscriber_buffer", 64)
	v.SetDefault("events.sink_buffer", 4096)
	v.SetDefault("events.batch_max_events", 100)
	v.SetDefault("events.batch_max_wait_ms", 500)
	v.SetDefault("events.log_enabled", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Storage.ScreenshotsDir == "" {
		return fmt.Errorf("storage.screenshots_dir must be set")
	}
	if c.Capture.MaxConcurrentCaptures <= 0 {
		return fmt.Errorf("capture.max_concurrent_captures must be > 0")
	}
	if c.Capture.QualityMinScore < 0 || c.Capture.QualityMinScore > 100 {
		return fmt.Errorf("capture.quality_min_score must be between 0 and 100")
	}
	if c.Capture.DuplicateHashThreshold < 0 || c.Capture.DuplicateHashThreshold > 64 {
		return fmt.Errorf("capture.duplicate_hash_threshold must be between 0 and 64")
	}
	if c.Capture.RateLimitRPS < 0 {
		return fmt.Errorf("capture.rate_limit_rps must be >= 0")
	}
	t := c.Timeouts
	if t.NormalSeconds <= 0 || t.RealBrowserSeconds <= 0 || t.AltEngineSeconds <= 0 ||
		t.StealthSeconds <= 0 || t.SegmentedSeconds <= 0 {
		return fmt.Errorf("timeouts.* must be > 0")
	}
	if c.Registry.Capacity < 1 || c.Registry.Capacity > 1000 {
		return fmt.Errorf("registry.capacity must be between 1 and 1000")
	}
	if c.Registry.TTLSeconds < 1 || c.Registry.TTLSeconds > 3600 {
		return fmt.Errorf("registry.ttl_seconds must be between 1 and 3600")
	}
	if c.Registry.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("registry.sweep_interval_seconds must be > 0")
	}
	return nil
}

// TimeoutPolicy converts the per-mode seconds into a timeout.Policy.
func (c Config) TimeoutPolicy() timeout.Policy {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return timeout.Policy{
		Normal:      sec(c.Timeouts.NormalSeconds),
		RealBrowser: sec(c.Timeouts.RealBrowserSeconds),
		AltEngine:   sec(c.Timeouts.AltEngineSeconds),
		Stealth:     sec(c.Timeouts.StealthSeconds),
		Segmented:   sec(c.Timeouts.SegmentedSeconds),
	}
}

// LazyLoadInterval returns the document-height poll interval.
func (c Config) LazyLoadInterval() time.Duration {
	return time.Duration(c.Capture.LazyLoadIntervalMs) * time.Millisecond
}

// RequestTimeout bounds a single HTTP request to the API.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
