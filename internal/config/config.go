// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
)

// EnvPrefix scopes environment overrides, e.g. SCRAPER_SCRAPER_MAX_DEPTH.
const EnvPrefix = "SCRAPER"

// Storage backends for page bodies.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Scraper ScraperConfig `mapstructure:"scraper"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Robots  RobotsConfig  `mapstructure:"robots"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ScraperConfig holds the crawl options consumed by the controller.
type ScraperConfig struct {
	StartURL        string   `mapstructure:"start_url"`
	BaseURL         string   `mapstructure:"base_url"`
	AllowedDomains  []string `mapstructure:"allowed_domains"`
	ExcludedDomains []string `mapstructure:"excluded_domains"`

	MaxDepth              int `mapstructure:"max_depth"`
	MaxPages              int `mapstructure:"max_pages"`
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests"`

	DelayBetweenRequests       time.Duration `mapstructure:"delay_between_requests"`
	EnableAdaptiveRateLimiting bool          `mapstructure:"enable_adaptive_rate_limiting"`
	MinDelayBetweenRequests    time.Duration `mapstructure:"min_delay_between_requests"`
	MaxDelayBetweenRequests    time.Duration `mapstructure:"max_delay_between_requests"`
	MaxRequestsPerMinute       int           `mapstructure:"max_requests_per_minute"`

	RespectRobotsTxt    bool `mapstructure:"respect_robots_txt"`
	FollowExternalLinks bool `mapstructure:"follow_external_links"`

	EnableAdaptiveCrawling    bool     `mapstructure:"enable_adaptive_crawling"`
	PriorityQueueSize         int      `mapstructure:"priority_queue_size"`
	AdjustDepthBasedOnQuality bool     `mapstructure:"adjust_depth_based_on_quality"`
	QualityThreshold          float64  `mapstructure:"quality_threshold"`
	RelevanceKeywords         []string `mapstructure:"relevance_keywords"`

	EnableChangeDetection bool    `mapstructure:"enable_change_detection"`
	TrackContentVersions  bool    `mapstructure:"track_content_versions"`
	MaxVersionsToKeep     int     `mapstructure:"max_versions_to_keep"`
	SignificanceThreshold float64 `mapstructure:"significance_threshold"`

	MaxRetries      int  `mapstructure:"max_retries"`
	ContinueOnError bool `mapstructure:"continue_on_error"`
}

// HTTPConfig configures the page fetcher.
type HTTPConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
}

// RobotsConfig configures the robots.txt checker.
type RobotsConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// StorageConfig selects where page bodies are written.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	BaseDir     string `mapstructure:"base_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls the Postgres store. An empty DSN keeps rows in memory.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	VersionsTable   string        `mapstructure:"versions_table"`
	FailuresTable   string        `mapstructure:"failures_table"`
	Migrate         bool          `mapstructure:"migrate"`
}

// PubSubConfig holds the change notification topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// NotifyConfig sets when content changes are announced.
type NotifyConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from an optional .env file, an optional config file,
// and SCRAPER_* environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("scraper.start_url", "")
	v.SetDefault("scraper.base_url", "")
	v.SetDefault("scraper.allowed_domains", []string{})
	v.SetDefault("scraper.excluded_domains", []string{})
	v.SetDefault("scraper.max_depth", 3)
	v.SetDefault("scraper.max_pages", 100)
	v.SetDefault("scraper.max_concurrent_requests", 4)
	v.SetDefault("scraper.delay_between_requests", time.Second)
	v.SetDefault("scraper.enable_adaptive_rate_limiting", true)
	v.SetDefault("scraper.min_delay_between_requests", 500*time.Millisecond)
	v.SetDefault("scraper.max_delay_between_requests", 5*time.Second)
	v.SetDefault("scraper.max_requests_per_minute", 60)
	v.SetDefault("scraper.respect_robots_txt", true)
	v.SetDefault("scraper.follow_external_links", false)
	v.SetDefault("scraper.enable_adaptive_crawling", true)
	v.SetDefault("scraper.priority_queue_size", 10000)
	v.SetDefault("scraper.adjust_depth_based_on_quality", false)
	v.SetDefault("scraper.quality_threshold", 60)
	v.SetDefault("scraper.relevance_keywords", []string{})
	v.SetDefault("scraper.enable_change_detection", true)
	v.SetDefault("scraper.track_content_versions", true)
	v.SetDefault("scraper.max_versions_to_keep", 5)
	v.SetDefault("scraper.significance_threshold", 10)
	v.SetDefault("scraper.max_retries", 2)
	v.SetDefault("scraper.continue_on_error", true)
	v.SetDefault("http.user_agent", "webscraper-bot/1.0")
	v.SetDefault("http.request_timeout", 30*time.Second)
	v.SetDefault("http.max_body_bytes", 10*1024*1024)
	v.SetDefault("http.retry_base_delay", 250*time.Millisecond)
	v.SetDefault("http.retry_max_delay", 5*time.Second)
	v.SetDefault("robots.cache_ttl", time.Hour)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.base_dir", "data/pages")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("storage.content_type", "text/plain; charset=utf-8")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("db.versions_table", "content_versions")
	v.SetDefault("db.failures_table", "target_failures")
	v.SetDefault("db.migrate", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("notify.threshold", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits, including the
// run configuration derived from the scraper section.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if strings.TrimSpace(c.Storage.GCSBucket) == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, local, gcs", c.Storage.Backend)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	if c.DB.MinConns < 0 || c.DB.MaxConns < c.DB.MinConns {
		return fmt.Errorf("db.max_conns must be >= db.min_conns >= 0")
	}
	if err := c.RunConfig().Validate(); err != nil {
		return fmt.Errorf("scraper: %w", err)
	}
	return nil
}

// RunConfig converts the loaded settings into the immutable per-run value
// consumed by the controller, with derived defaults applied.
func (c Config) RunConfig() crawler.RunConfig {
	s := c.Scraper
	return crawler.RunConfig{
		StartURL:                   s.StartURL,
		BaseURL:                    s.BaseURL,
		AllowedDomains:             cloneStrings(s.AllowedDomains),
		ExcludedDomains:            cloneStrings(s.ExcludedDomains),
		UserAgent:                  c.HTTP.UserAgent,
		RequestTimeout:             c.HTTP.RequestTimeout,
		MaxDepth:                   s.MaxDepth,
		MaxPages:                   s.MaxPages,
		MaxConcurrentRequests:      s.MaxConcurrentRequests,
		DelayBetweenRequests:       s.DelayBetweenRequests,
		EnableAdaptiveRateLimiting: s.EnableAdaptiveRateLimiting,
		MinDelayBetweenRequests:    s.MinDelayBetweenRequests,
		MaxDelayBetweenRequests:    s.MaxDelayBetweenRequests,
		MaxRequestsPerMinute:       s.MaxRequestsPerMinute,
		RespectRobotsTxt:           s.RespectRobotsTxt,
		FollowExternalLinks:        s.FollowExternalLinks,
		EnableAdaptiveCrawling:     s.EnableAdaptiveCrawling,
		PriorityQueueSize:          s.PriorityQueueSize,
		AdjustDepthBasedOnQuality:  s.AdjustDepthBasedOnQuality,
		QualityThreshold:           s.QualityThreshold,
		RelevanceKeywords:          cloneStrings(s.RelevanceKeywords),
		EnableChangeDetection:      s.EnableChangeDetection,
		TrackContentVersions:       s.TrackContentVersions,
		MaxVersionsToKeep:          s.MaxVersionsToKeep,
		SignificanceThreshold:      s.SignificanceThreshold,
		NotifyThreshold:            c.Notify.Threshold,
		MaxRetries:                 s.MaxRetries,
		ContinueOnError:            s.ContinueOnError,
	}.WithDefaults()
}

func cloneStrings(src []string) []string {
	if len(src) == 0 {
		return nil
	}
	return append([]string(nil), src...)
}
