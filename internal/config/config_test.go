package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 3, cfg.Crawler.MaxDepth)
	require.Equal(t, 100, cfg.Crawler.MaxPages)
	require.True(t, cfg.Crawler.RespectRobots)
	require.Equal(t, 3, cfg.Extract.BatchSize)
	require.Equal(t, 90, cfg.Extract.DelaySeconds)
	require.Equal(t, 3, cfg.Extract.MaxRetries)
	require.Equal(t, "generic", cfg.Extract.Site)
	require.Equal(t, 3, cfg.Publish.BatchSize)
	require.Equal(t, 90, cfg.Publish.DelaySeconds)
	require.Equal(t, "data", cfg.Storage.DataDir)
	require.False(t, cfg.Server.Enabled)
	require.True(t, cfg.Logging.Development)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawler:
  max_depth: 5
  max_pages: 20
  include_paths: ["product"]
  exclude_paths: ["blog/"]
extract:
  base_url: http://localhost:8000/v1
  batch_size: 2
  site: woocommerce
publish:
  store_url: https://shop.test
  consumer_key: ck
  consumer_secret: cs
server:
  enabled: true
  port: 9090
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 5, cfg.Crawler.MaxDepth)
	require.Equal(t, 20, cfg.Crawler.MaxPages)
	require.Equal(t, []string{"product"}, cfg.Crawler.IncludePaths)
	require.Equal(t, []string{"blog/"}, cfg.Crawler.ExcludePaths)
	require.Equal(t, "woocommerce", cfg.Extract.Site)
	require.Equal(t, 2, cfg.Extract.BatchSize)
	require.Equal(t, "https://shop.test", cfg.Publish.StoreURL)
	require.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SHOPSYNC_CRAWLER_MAX_DEPTH", "7")
	t.Setenv("SHOPSYNC_EXTRACT_API_KEY", "env-key")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Crawler.MaxDepth)
	require.Equal(t, "env-key", cfg.Extract.APIKey)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max depth", func(c *Config) { c.Crawler.MaxDepth = 0 }},
		{"zero max pages", func(c *Config) { c.Crawler.MaxPages = 0 }},
		{"zero extract batch", func(c *Config) { c.Extract.BatchSize = 0 }},
		{"zero publish batch", func(c *Config) { c.Publish.BatchSize = 0 }},
		{"server enabled without port", func(c *Config) {
			c.Server.Enabled = true
			c.Server.Port = 0
		}},
		{"store url without credentials", func(c *Config) {
			c.Publish.StoreURL = "https://shop.test"
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
