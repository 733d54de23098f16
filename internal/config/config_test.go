package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

const sampleYAML = `
cache_dir: "/tmp/hnreader-test"
feed:
  page_size: 20
  mode: "scroll"
  neighborhood: 2
  inter_batch_delay: "1s"
source:
  base_url: "http://localhost:9999/v0"
newsletter:
  story_count: 10
  send_hour: 6
  dry_run: true
log:
  level: "debug"
`

const brokenYAML = `
feed:
  page_size: [20
`

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 30, cfg.Feed.PageSize)
	assert.Equal(t, 3, cfg.Feed.MaxConcurrentFetches)
	assert.Equal(t, 5*time.Second, cfg.Feed.PerItemTimeout)
	assert.Equal(t, 3, cfg.Feed.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Feed.InterItemDelay)
	assert.Equal(t, 300*time.Millisecond, cfg.Feed.InterBatchDelay)
	assert.Equal(t, 500, cfg.Feed.MaxTotalIDs)
	assert.Equal(t, "paged", cfg.Feed.Mode)
	assert.Equal(t, filepath.Join(cfg.CacheDir, "hnreader.db"), cfg.DBPath)
	require.NoError(t, cfg.validate())
}

func TestLoadExplicitPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Feed.PageSize)
	assert.Equal(t, "scroll", cfg.Feed.Mode)
	assert.Equal(t, 2, cfg.Feed.Neighborhood)
	assert.Equal(t, time.Second, cfg.Feed.InterBatchDelay)
	assert.Equal(t, "http://localhost:9999/v0", cfg.Source.BaseURL)
	assert.Equal(t, 10, cfg.Newsletter.StoryCount)
	assert.True(t, cfg.Newsletter.DryRun)
	assert.Equal(t, "debug", cfg.Log.Level)

	// untouched values keep their defaults
	assert.Equal(t, 3, cfg.Feed.MaxConcurrentFetches)
	assert.Equal(t, 5*time.Second, cfg.Feed.PerItemTimeout)
	assert.Equal(t, "https://hn.algolia.com/api/v1", cfg.Source.SearchURL)

	// file locations follow the configured cache dir
	assert.Equal(t, "/tmp/hnreader-test/hnreader.db", cfg.DBPath)
	assert.Equal(t, "/tmp/hnreader-test/hnreader.log", cfg.LogPath)
}

func TestLoadFromPathEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	t.Setenv(PathEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Feed.PageSize)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv(PathEnv, "")
	t.Setenv("HNREADER_PAGE_SIZE", "50")
	t.Setenv("HNREADER_FEED_MODE", "scroll")
	t.Setenv("HNREADER_PER_ITEM_TIMEOUT", "2s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Feed.PageSize)
	assert.Equal(t, "scroll", cfg.Feed.Mode)
	assert.Equal(t, 2*time.Second, cfg.Feed.PerItemTimeout)
	assert.Equal(t, 500, cfg.Feed.MaxTotalIDs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	t.Setenv("HNREADER_PAGE_SIZE", "40")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Feed.PageSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestLoadBrokenYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", brokenYAML)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "zero page size", mutate: func(c *Config) { c.Feed.PageSize = 0 }, errMsg: "page_size"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Feed.MaxConcurrentFetches = 0 }, errMsg: "max_concurrent_fetches"},
		{name: "zero retries", mutate: func(c *Config) { c.Feed.MaxRetries = 0 }, errMsg: "max_retries"},
		{name: "negative delay", mutate: func(c *Config) { c.Feed.InterItemDelay = -time.Second }, errMsg: "delays"},
		{name: "unknown mode", mutate: func(c *Config) { c.Feed.Mode = "infinite" }, errMsg: "feed.mode"},
		{name: "send hour", mutate: func(c *Config) { c.Newsletter.SendHour = 24 }, errMsg: "send_hour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
