// Package config loads and validates render service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Render    RenderConfig    `mapstructure:"render"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	Accounts  []AccountSeed   `mapstructure:"accounts"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Topbar    TopbarConfig    `mapstructure:"topbar"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// RenderConfig governs the render API.
type RenderConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	DefaultPreset  string `mapstructure:"default_preset"`
	PresetsDir     string `mapstructure:"presets_dir"`
	AllowCreate    bool   `mapstructure:"allow_create"`
}

// JobsConfig sizes the worker pool and per-account admission.
type JobsConfig struct {
	Workers       int                    `mapstructure:"workers"`
	QueueDepth    int                    `mapstructure:"queue_depth"`
	MaxConcurrent int                    `mapstructure:"max_concurrent"`
	QueueLimit    int                    `mapstructure:"queue_limit"`
	Limits        map[string]LimitConfig `mapstructure:"limits"`
}

// LimitConfig is a named admission profile referenced by Account.Limit.
type LimitConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
	QueueLimit    int `mapstructure:"queue_limit"`
}

// StorageConfig sets where artifacts are written and mirrored.
type StorageConfig struct {
	UsersDir     string `mapstructure:"users_dir"`
	GCSBucket    string `mapstructure:"gcs_bucket"`
	MirrorPrefix string `mapstructure:"mirror_prefix"`
}

// DBConfig controls access to the account database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// AccountSeed populates the in-memory account store when no database is configured.
type AccountSeed struct {
	ID       int64              `mapstructure:"id"`
	Username string             `mapstructure:"username"`
	Token    string             `mapstructure:"token"`
	Verified bool               `mapstructure:"verified"`
	Services []string           `mapstructure:"services"`
	Limit    string             `mapstructure:"limit"`
	Access   map[string][]int64 `mapstructure:"access"`
}

// PubSubConfig holds metadata for render-completed notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// HeadlessConfig configures the Chrome renderer.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// RateLimitConfig throttles render submissions per token.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// TopbarConfig lists the links shown in the page header.
type TopbarConfig struct {
	URLs []URLItem `mapstructure:"urls"`
}

// URLItem is one topbar link.
type URLItem struct {
	Label string `mapstructure:"label"`
	URL   string `mapstructure:"url"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BLUE")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("render.timeout_seconds", 900)
	v.SetDefault("render.default_preset", "")
	v.SetDefault("render.presets_dir", "presets")
	v.SetDefault("render.allow_create", true)
	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queue_depth", 64)
	v.SetDefault("jobs.max_concurrent", 1)
	v.SetDefault("jobs.queue_limit", 3)
	v.SetDefault("storage.users_dir", "data/users")
	v.SetDefault("storage.mirror_prefix", "renders")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("ratelimit.rps", 1.0)
	v.SetDefault("ratelimit.burst", 3)
	v.SetDefault("topbar.urls", []map[string]string{
		{"label": "API", "url": "https://siriusmart.github.io/gm-services"},
		{"label": "Source code", "url": "https://github.com/gmornin/gmt-server"},
	})
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Render.TimeoutSeconds <= 0 {
		return fmt.Errorf("render.timeout_seconds must be > 0")
	}
	if c.Render.PresetsDir == "" {
		return fmt.Errorf("render.presets_dir must be set")
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be > 0")
	}
	if c.Jobs.QueueDepth <= 0 {
		return fmt.Errorf("jobs.queue_depth must be > 0")
	}
	if c.Jobs.MaxConcurrent <= 0 {
		return fmt.Errorf("jobs.max_concurrent must be > 0")
	}
	if c.Jobs.QueueLimit < 0 {
		return fmt.Errorf("jobs.queue_limit must be >= 0")
	}
	for name, l := range c.Jobs.Limits {
		if l.MaxConcurrent <= 0 {
			return fmt.Errorf("jobs.limits.%s.max_concurrent must be > 0", name)
		}
		if l.QueueLimit < 0 {
			return fmt.Errorf("jobs.limits.%s.queue_limit must be >= 0", name)
		}
	}
	if c.Storage.UsersDir == "" {
		return fmt.Errorf("storage.users_dir must be set")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit.rps and ratelimit.burst must be >= 0")
	}
	return nil
}

// RenderTimeout is how long a submitter waits for its render, queueing included.
func (c Config) RenderTimeout() time.Duration {
	return time.Duration(c.Render.TimeoutSeconds) * time.Second
}

// NavTimeout bounds a single headless page load.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
