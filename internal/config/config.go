// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every configuration knob of the service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	DB        DBConfig        `mapstructure:"db"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Changelog ChangelogConfig `mapstructure:"changelog"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// StoreConfig selects the path/status store backend.
type StoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend string `mapstructure:"backend"`
}

// DBConfig controls the Postgres-backed store.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	Table           string `mapstructure:"table"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// CrawlerConfig bounds crawl jobs and the fetch transport.
type CrawlerConfig struct {
	MaxDepth            int    `mapstructure:"max_depth"`
	MaxRequestsPerCrawl int    `mapstructure:"max_requests_per_crawl"`
	UserAgent           string `mapstructure:"user_agent"`
	Concurrency         int    `mapstructure:"concurrency"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	RecrawlMaxAgeMin    int    `mapstructure:"recrawl_max_age_minutes"`
}

// ChangelogConfig tunes the mutation log's batching and redelivery.
type ChangelogConfig struct {
	BufferSize      int `mapstructure:"buffer_size"`
	MaxBatchRecords int `mapstructure:"max_batch_records"`
	MaxBatchWaitMs  int `mapstructure:"max_batch_wait_ms"`
	MaxRedeliveries int `mapstructure:"max_redeliveries"`
}

// PubSubConfig names the outbound event bus topic. An empty project id
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig names the bucket for page snapshots. An empty bucket
// disables archiving.
type ArchiveConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// NotifyConfig constrains live-subscriber registrations.
type NotifyConfig struct {
	ListeningKeyPattern string `mapstructure:"listening_key_pattern"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and environment. Environment variables use
// the SITEWATCH prefix with dots replaced by underscores.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEWATCH")
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
	v.SetDefault("store.backend", "memory")
	v.SetDefault("db.table", "records")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("crawler.max_depth", 3)
	v.SetDefault("crawler.max_requests_per_crawl", 50)
	v.SetDefault("crawler.user_agent", "sitewatch-bot/0.1")
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.recrawl_max_age_minutes", 60)
	v.SetDefault("changelog.buffer_size", 4096)
	v.SetDefault("changelog.max_batch_records", 100)
	v.SetDefault("changelog.max_batch_wait_ms", 250)
	v.SetDefault("changelog.max_redeliveries", 3)
	v.SetDefault("notify.listening_key_pattern", `^URL#[A-Za-z0-9.-]+$`)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values. The service refuses to start on an
// invalid configuration rather than run degraded.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when store.backend is postgres")
		}
	default:
		return fmt.Errorf("store.backend must be memory or postgres, got %q", c.Store.Backend)
	}
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if c.Crawler.MaxRequestsPerCrawl <= 0 {
		return fmt.Errorf("crawler.max_requests_per_crawl must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.RecrawlMaxAgeMin <= 0 {
		return fmt.Errorf("crawler.recrawl_max_age_minutes must be > 0")
	}
	if c.Changelog.MaxBatchRecords <= 0 {
		return fmt.Errorf("changelog.max_batch_records must be > 0")
	}
	if c.Changelog.MaxRedeliveries < 0 {
		return fmt.Errorf("changelog.max_redeliveries must be >= 0")
	}
	if c.Notify.ListeningKeyPattern != "" {
		if _, err := regexp.Compile(c.Notify.ListeningKeyPattern); err != nil {
			return fmt.Errorf("notify.listening_key_pattern: %w", err)
		}
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// RecrawlMaxAge is the freshness window as a duration.
func (c Config) RecrawlMaxAge() time.Duration {
	return time.Duration(c.Crawler.RecrawlMaxAgeMin) * time.Minute
}

// CrawlTimeout is the per-request fetch timeout as a duration.
func (c Config) CrawlTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// BatchWait is the changelog flush interval as a duration.
func (c Config) BatchWait() time.Duration {
	return time.Duration(c.Changelog.MaxBatchWaitMs) * time.Millisecond
}

// ConnLifetime is the Postgres connection lifetime as a duration.
func (c Config) ConnLifetime() time.Duration {
	return time.Duration(c.DB.ConnLifetimeMin) * time.Minute
}
