package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// PathEnv names the config file when no --config flag is given.
const PathEnv = "HNREADER_CONFIG"

type Config struct {
	CacheDir string `yaml:"cache_dir" env:"HNREADER_CACHE_DIR"`
	DBPath   string `yaml:"db_path"   env:"HNREADER_DB_PATH"`
	LogPath  string `yaml:"log_path"  env:"HNREADER_LOG_PATH"`

	Feed       FeedConfig       `yaml:"feed"`
	Source     SourceConfig     `yaml:"source"`
	Server     ServerConfig     `yaml:"server"`
	Newsletter NewsletterConfig `yaml:"newsletter"`
	Log        LogConfig        `yaml:"log"`
}

// FeedConfig controls paging, fetching and eviction of the story feed.
type FeedConfig struct {
	PageSize             int           `yaml:"page_size"              env:"HNREADER_PAGE_SIZE"              env-default:"30"`
	MaxConcurrentFetches int           `yaml:"max_concurrent_fetches" env:"HNREADER_MAX_CONCURRENT_FETCHES" env-default:"3"`
	PerItemTimeout       time.Duration `yaml:"per_item_timeout"       env:"HNREADER_PER_ITEM_TIMEOUT"       env-default:"5s"`
	MaxRetries           int           `yaml:"max_retries"            env:"HNREADER_MAX_RETRIES"            env-default:"3"`
	InterItemDelay       time.Duration `yaml:"inter_item_delay"       env:"HNREADER_INTER_ITEM_DELAY"       env-default:"100ms"`
	InterBatchDelay      time.Duration `yaml:"inter_batch_delay"      env:"HNREADER_INTER_BATCH_DELAY"      env-default:"300ms"`
	MaxTotalIDs          int           `yaml:"max_total_ids"          env:"HNREADER_MAX_TOTAL_IDS"          env-default:"500"`
	Neighborhood         int           `yaml:"neighborhood"           env:"HNREADER_NEIGHBORHOOD"           env-default:"1"`
	Mode                 string        `yaml:"mode"                   env:"HNREADER_FEED_MODE"              env-default:"paged"`
	CommentDepth         int           `yaml:"comment_depth"          env:"HNREADER_COMMENT_DEPTH"          env-default:"1"`
}

// SourceConfig points at the HN and search APIs.
type SourceConfig struct {
	BaseURL        string        `yaml:"base_url"        env:"HNREADER_BASE_URL"        env-default:"https://hacker-news.firebaseio.com/v0"`
	SearchURL      string        `yaml:"search_url"      env:"HNREADER_SEARCH_URL"      env-default:"https://hn.algolia.com/api/v1"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"HNREADER_REQUEST_TIMEOUT" env-default:"10s"`
	UserAgent      string        `yaml:"user_agent"      env:"HNREADER_USER_AGENT"      env-default:"hnreader/1.0"`
}

type ServerConfig struct {
	Addr          string `yaml:"addr"           env:"HNREADER_ADDR"           env-default:":8080"`
	SessionSecret string `yaml:"session_secret" env:"HNREADER_SESSION_SECRET"`
	APIKey        string `yaml:"api_key"        env:"HNREADER_API_KEY"`
}

type NewsletterConfig struct {
	From         string `yaml:"from"           env:"HNREADER_NEWSLETTER_FROM"  env-default:"HN Digest <digest@localhost>"`
	ResendAPIKey string `yaml:"resend_api_key" env:"RESEND_API_KEY"`
	ResendURL    string `yaml:"resend_url"     env:"HNREADER_RESEND_URL"       env-default:"https://api.resend.com"`
	AppURL       string `yaml:"app_url"        env:"HNREADER_APP_URL"          env-default:"http://localhost:8080"`
	StoryCount   int    `yaml:"story_count"    env:"HNREADER_STORY_COUNT"      env-default:"5"`
	SendHour     int    `yaml:"send_hour"      env:"HNREADER_SEND_HOUR"        env-default:"7"`
	DryRun       bool   `yaml:"dry_run"        env:"HNREADER_DRY_RUN"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"HNREADER_LOG_LEVEL" env-default:"info"`
}

func Default() Config {
	cacheDir := filepath.Join(userConfigDir(), "hnreader")
	return Config{
		CacheDir: cacheDir,
		DBPath:   filepath.Join(cacheDir, "hnreader.db"),
		LogPath:  filepath.Join(cacheDir, "hnreader.log"),
		Feed: FeedConfig{
			PageSize:             30,
			MaxConcurrentFetches: 3,
			PerItemTimeout:       5 * time.Second,
			MaxRetries:           3,
			InterItemDelay:       100 * time.Millisecond,
			InterBatchDelay:      300 * time.Millisecond,
			MaxTotalIDs:          500,
			Neighborhood:         1,
			Mode:                 "paged",
			CommentDepth:         1,
		},
		Source: SourceConfig{
			BaseURL:        "https://hacker-news.firebaseio.com/v0",
			SearchURL:      "https://hn.algolia.com/api/v1",
			RequestTimeout: 10 * time.Second,
			UserAgent:      "hnreader/1.0",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Newsletter: NewsletterConfig{
			From:       "HN Digest <digest@localhost>",
			ResendURL:  "https://api.resend.com",
			AppURL:     "http://localhost:8080",
			StoryCount: 5,
			SendHour:   7,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the configuration, in priority order, from the explicit path,
// the file named by HNREADER_CONFIG, or the environment alone. Values not
// set anywhere keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	cfg.DBPath, cfg.LogPath = "", ""

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file does not exist: %s", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}

	cfg.fillPaths()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fillPaths derives file locations from CacheDir when they were not set.
func (c *Config) fillPaths() {
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(userConfigDir(), "hnreader")
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.CacheDir, "hnreader.db")
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(c.CacheDir, "hnreader.log")
	}
}

func (c *Config) validate() error {
	var errs []error
	f := c.Feed
	if f.PageSize <= 0 {
		errs = append(errs, errors.New("feed.page_size must be > 0"))
	}
	if f.MaxConcurrentFetches <= 0 {
		errs = append(errs, errors.New("feed.max_concurrent_fetches must be > 0"))
	}
	if f.MaxRetries <= 0 {
		errs = append(errs, errors.New("feed.max_retries must be > 0"))
	}
	if f.PerItemTimeout <= 0 {
		errs = append(errs, errors.New("feed.per_item_timeout must be > 0"))
	}
	if f.InterItemDelay < 0 || f.InterBatchDelay < 0 {
		errs = append(errs, errors.New("feed delays must not be negative"))
	}
	if f.MaxTotalIDs <= 0 {
		errs = append(errs, errors.New("feed.max_total_ids must be > 0"))
	}
	if f.Neighborhood < 0 {
		errs = append(errs, errors.New("feed.neighborhood must not be negative"))
	}
	if f.Mode != "paged" && f.Mode != "scroll" {
		errs = append(errs, fmt.Errorf("feed.mode must be paged or scroll, got %q", f.Mode))
	}
	if c.Source.RequestTimeout <= 0 {
		errs = append(errs, errors.New("source.request_timeout must be > 0"))
	}
	if n := c.Newsletter; n.SendHour < 0 || n.SendHour > 23 {
		errs = append(errs, errors.New("newsletter.send_hour must be between 0 and 23"))
	}
	if c.Newsletter.StoryCount <= 0 {
		errs = append(errs, errors.New("newsletter.story_count must be > 0"))
	}
	return errors.Join(errs...)
}

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}
