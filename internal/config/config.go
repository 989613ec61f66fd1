// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CrawlerConfig governs crawl traversal bounds and politeness.
type CrawlerConfig struct {
	MaxDepth      int      `mapstructure:"max_depth"`
	MaxPages      int      `mapstructure:"max_pages"`
	IncludePaths  []string `mapstructure:"include_paths"`
	ExcludePaths  []string `mapstructure:"exclude_paths"`
	UserAgent     string   `mapstructure:"user_agent"`
	DelaySeconds  int      `mapstructure:"delay_seconds"`
	RespectRobots bool     `mapstructure:"respect_robots"`
}

// HeadlessConfig configures the headless rendering fetcher.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// ExtractConfig controls the product extraction stage.
type ExtractConfig struct {
	BaseURL      string  `mapstructure:"base_url"`
	APIKey       string  `mapstructure:"api_key"`
	Model        string  `mapstructure:"model"`
	Temperature  float64 `mapstructure:"temperature"`
	BatchSize    int     `mapstructure:"batch_size"`
	DelaySeconds int     `mapstructure:"delay_seconds"`
	MaxRetries   int     `mapstructure:"max_retries"`
	Site         string  `mapstructure:"site"`
}

// PublishConfig controls the catalog upload stage.
type PublishConfig struct {
	StoreURL       string `mapstructure:"store_url"`
	ConsumerKey    string `mapstructure:"consumer_key"`
	ConsumerSecret string `mapstructure:"consumer_secret"`
	BatchSize      int    `mapstructure:"batch_size"`
	DelaySeconds   int    `mapstructure:"delay_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
}

// StorageConfig sets paths for blob and local file persistence.
type StorageConfig struct {
	DataDir   string `mapstructure:"data_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the run-history database.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the admin HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHOPSYNC")
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
	v.SetDefault("crawler.max_depth", 3)
	v.SetDefault("crawler.max_pages", 100)
	v.SetDefault("crawler.user_agent", "shopsync-bot/0.1")
	v.SetDefault("crawler.delay_seconds", 1)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("extract.model", "gpt-4o-mini")
	v.SetDefault("extract.temperature", 0.1)
	v.SetDefault("extract.batch_size", 3)
	v.SetDefault("extract.delay_seconds", 90)
	v.SetDefault("extract.max_retries", 3)
	v.SetDefault("extract.site", "generic")
	v.SetDefault("publish.batch_size", 3)
	v.SetDefault("publish.delay_seconds", 90)
	v.SetDefault("publish.max_retries", 3)
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.MaxDepth <= 0 {
		return fmt.Errorf("crawler.max_depth must be > 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Extract.BatchSize <= 0 {
		return fmt.Errorf("extract.batch_size must be > 0")
	}
	if c.Publish.BatchSize <= 0 {
		return fmt.Errorf("publish.batch_size must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when server is enabled")
	}
	if c.Publish.StoreURL != "" && (c.Publish.ConsumerKey == "" || c.Publish.ConsumerSecret == "") {
		return fmt.Errorf("publish.consumer_key and publish.consumer_secret must be set when publish.store_url is set")
	}
	return nil
}

// CrawlDelay converts the configured delay into a duration.
func (c CrawlerConfig) CrawlDelay() time.Duration {
	return time.Duration(c.DelaySeconds) * time.Second
}
