package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Store.Backend)
	require.Equal(t, 3, cfg.Crawler.MaxDepth)
	require.Equal(t, 50, cfg.Crawler.MaxRequestsPerCrawl)
	require.Equal(t, 60*time.Minute, cfg.RecrawlMaxAge())
	require.Equal(t, 250*time.Millisecond, cfg.BatchWait())
	require.Equal(t, `^URL#[A-Za-z0-9.-]+$`, cfg.Notify.ListeningKeyPattern)
	require.True(t, cfg.Logging.Development)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
store:
  backend: postgres
db:
  dsn: postgres://sitewatch@localhost/sitewatch
  table: site_records
crawler:
  max_depth: 5
  max_requests_per_crawl: 200
  user_agent: test-agent
  recrawl_max_age_minutes: 10
changelog:
  max_batch_records: 25
  max_redeliveries: 1
pubsub:
  project_id: test-project
  topic_name: discovered-urls
notify:
  listening_key_pattern: "^URL#.+$"
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "postgres", cfg.Store.Backend)
	require.Equal(t, "site_records", cfg.DB.Table)
	require.Equal(t, 5, cfg.Crawler.MaxDepth)
	require.Equal(t, "test-agent", cfg.Crawler.UserAgent)
	require.Equal(t, 10*time.Minute, cfg.RecrawlMaxAge())
	require.Equal(t, 25, cfg.Changelog.MaxBatchRecords)
	require.Equal(t, "discovered-urls", cfg.PubSub.TopicName)
	require.False(t, cfg.Logging.Development)
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Store:  StoreConfig{Backend: "memory"},
		Crawler: CrawlerConfig{
			MaxDepth:            1,
			MaxRequestsPerCrawl: 10,
			TimeoutSeconds:      15,
			RecrawlMaxAgeMin:    60,
		},
		Changelog: ChangelogConfig{MaxBatchRecords: 100},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "dynamo" }, "store.backend"},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = "postgres" }, "db.dsn"},
		{"negative depth", func(c *Config) { c.Crawler.MaxDepth = -1 }, "crawler.max_depth"},
		{"zero budget", func(c *Config) { c.Crawler.MaxRequestsPerCrawl = 0 }, "crawler.max_requests_per_crawl"},
		{"zero freshness window", func(c *Config) { c.Crawler.RecrawlMaxAgeMin = 0 }, "crawler.recrawl_max_age_minutes"},
		{"zero batch size", func(c *Config) { c.Changelog.MaxBatchRecords = 0 }, "changelog.max_batch_records"},
		{"bad key pattern", func(c *Config) { c.Notify.ListeningKeyPattern = "([" }, "notify.listening_key_pattern"},
		{"pubsub project without topic", func(c *Config) { c.PubSub.ProjectID = "p" }, "pubsub.topic_name"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
