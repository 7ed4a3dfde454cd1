// Package config loads and validates harvester configuration via Viper.
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
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Status    StatusConfig    `mapstructure:"status"`
	Engine    EngineConfig    `mapstructure:"engine"`
	DB        DBConfig        `mapstructure:"db"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Analyze   AnalyzeConfig   `mapstructure:"analyze"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// StatusConfig bounds the in-memory status feed.
type StatusConfig struct {
	LogCapacity int `mapstructure:"log_capacity"`
}

// EngineConfig selects and tunes the harvest engine.
type EngineConfig struct {
	// Mode is "browser" for the real chromedp engine or "demo" for the
	// scripted in-memory engine.
	Mode              string `mapstructure:"mode"`
	LoginURL          string `mapstructure:"login_url"`
	FeedURL           string `mapstructure:"feed_url"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	ScrollRounds      int    `mapstructure:"scroll_rounds"`
	MaxPosts          int    `mapstructure:"max_posts"`
	// CommitTimeoutSeconds bounds the registry write at the end of a run.
	CommitTimeoutSeconds int `mapstructure:"commit_timeout_seconds"`
}

// DBConfig controls access to the relational database. An empty DSN keeps
// the in-memory registry.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxConns           int    `mapstructure:"max_conns"`
	MinConns           int    `mapstructure:"min_conns"`
	MaxConnLifetimeSec int    `mapstructure:"max_conn_lifetime_seconds"`
}

// StorageConfig selects the blob backend for reference images.
type StorageConfig struct {
	// Backend is "gcs", "local", or "memory".
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	BaseDir   string `mapstructure:"base_dir"`
}

// PubSubConfig holds metadata for session-completion notifications. An
// empty project ID keeps the in-memory publisher.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// GeneratorConfig configures the AI text engine.
type GeneratorConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// AnalyzeConfig configures the public topic probe.
type AnalyzeConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("logging.development", true)
	v.SetDefault("status.log_capacity", 50)
	v.SetDefault("engine.mode", "demo")
	v.SetDefault("engine.nav_timeout_seconds", 45)
	v.SetDefault("engine.scroll_rounds", 8)
	v.SetDefault("engine.max_posts", 50)
	v.SetDefault("engine.commit_timeout_seconds", 30)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("pubsub.topic_name", "sessions.completed")
	v.SetDefault("generator.model", "gemini-2.0-flash")
	v.SetDefault("analyze.timeout_seconds", 15)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.TimeoutSeconds <= 0 {
		return fmt.Errorf("server.timeout_seconds must be > 0")
	}
	if c.Status.LogCapacity <= 0 {
		return fmt.Errorf("status.log_capacity must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Engine.Mode {
	case "demo":
	case "browser":
		if c.Engine.LoginURL == "" || c.Engine.FeedURL == "" {
			return fmt.Errorf("engine.login_url and engine.feed_url must be set in browser mode")
		}
		if c.Engine.Username == "" || c.Engine.Password == "" {
			return fmt.Errorf("engine.username and engine.password must be set in browser mode")
		}
	default:
		return fmt.Errorf("engine.mode must be \"demo\" or \"browser\"")
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be \"memory\", \"local\", or \"gcs\"")
	}
	return nil
}

// RequestTimeout converts the server timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// CommitTimeout converts the engine commit timeout into a duration.
func (c Config) CommitTimeout() time.Duration {
	return time.Duration(c.Engine.CommitTimeoutSeconds) * time.Second
}
