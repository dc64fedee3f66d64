package crawler

import (
	"net/url"
	"strings"
	"time"
)

// RunConfig is the immutable per-run configuration consumed by the crawl
// controller. It is decoupled from Viper so the controller and its
// components can be configured and tested independently.
type RunConfig struct {
	StartURL        string
	BaseURL         string
	AllowedDomains  []string
	ExcludedDomains []string
	UserAgent       string
	RequestTimeout  time.Duration

	MaxDepth              int
	MaxPages              int
	MaxConcurrentRequests int

	DelayBetweenRequests       time.Duration
	EnableAdaptiveRateLimiting bool
	MinDelayBetweenRequests    time.Duration
	MaxDelayBetweenRequests    time.Duration
	MaxRequestsPerMinute       int

	RespectRobotsTxt    bool
	FollowExternalLinks bool

	EnableAdaptiveCrawling    bool
	PriorityQueueSize         int
	AdjustDepthBasedOnQuality bool
	QualityThreshold          float64
	RelevanceKeywords         []string

	EnableChangeDetection bool
	TrackContentVersions  bool
	MaxVersionsToKeep     int
	SignificanceThreshold float64
	NotifyThreshold       float64

	MaxRetries      int
	ContinueOnError bool
}

const (
	defaultUserAgent         = "webscraper-bot/1.0"
	defaultRequestTimeout    = 30 * time.Second
	defaultPriorityQueueSize = 10000
	defaultQualityThreshold  = 60
	defaultSignificance      = 10
)

// WithDefaults fills optional fields that have a sensible derived value.
func (c RunConfig) WithDefaults() RunConfig {
	if strings.TrimSpace(c.BaseURL) == "" {
		if u, err := url.Parse(c.StartURL); err == nil && u.Host != "" {
			c.BaseURL = u.Scheme + "://" + u.Host + "/"
		}
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.PriorityQueueSize == 0 {
		c.PriorityQueueSize = defaultPriorityQueueSize
	}
	if c.QualityThreshold == 0 {
		c.QualityThreshold = defaultQualityThreshold
	}
	if c.SignificanceThreshold == 0 {
		c.SignificanceThreshold = defaultSignificance
	}
	return c
}

// Validate checks for invalid or contradictory settings.
func (c RunConfig) Validate() error {
	if err := validateAbsURL("start_url", c.StartURL); err != nil {
		return err
	}
	if err := validateAbsURL("base_url", c.BaseURL); err != nil {
		return err
	}
	if c.UserAgent == "" {
		return &ConfigurationError{Field: "user_agent", Reason: "must be set"}
	}
	if c.RequestTimeout <= 0 {
		return &ConfigurationError{Field: "request_timeout", Reason: "must be > 0"}
	}
	if c.MaxDepth <= 0 {
		return &ConfigurationError{Field: "max_depth", Reason: "must be > 0"}
	}
	if c.MaxPages <= 0 {
		return &ConfigurationError{Field: "max_pages", Reason: "must be > 0"}
	}
	if c.MaxConcurrentRequests <= 0 {
		return &ConfigurationError{Field: "max_concurrent_requests", Reason: "must be > 0"}
	}
	if c.DelayBetweenRequests < 0 {
		return &ConfigurationError{Field: "delay_between_requests", Reason: "must be >= 0"}
	}
	if c.EnableAdaptiveRateLimiting {
		if c.MinDelayBetweenRequests < 0 {
			return &ConfigurationError{Field: "min_delay_between_requests", Reason: "must be >= 0"}
		}
		if c.MinDelayBetweenRequests >= c.MaxDelayBetweenRequests {
			return &ConfigurationError{
				Field:  "min_delay_between_requests",
				Reason: "must be < max_delay_between_requests",
			}
		}
	}
	if c.MaxRequestsPerMinute < 0 {
		return &ConfigurationError{Field: "max_requests_per_minute", Reason: "must be >= 0"}
	}
	if c.PriorityQueueSize <= 0 {
		return &ConfigurationError{Field: "priority_queue_size", Reason: "must be > 0"}
	}
	if c.TrackContentVersions && c.MaxVersionsToKeep <= 0 {
		return &ConfigurationError{
			Field:  "max_versions_to_keep",
			Reason: "must be > 0 when track_content_versions is enabled",
		}
	}
	if c.MaxRetries < 0 {
		return &ConfigurationError{Field: "max_retries", Reason: "must be >= 0"}
	}
	for field, v := range map[string]float64{
		"quality_threshold":      c.QualityThreshold,
		"significance_threshold": c.SignificanceThreshold,
		"notify_threshold":       c.NotifyThreshold,
	} {
		if v < 0 || v > 100 {
			return &ConfigurationError{Field: field, Reason: "must be within [0,100]"}
		}
	}
	return nil
}

func validateAbsURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &ConfigurationError{Field: field, Reason: "must be set"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ConfigurationError{Field: field, Reason: "is not a valid URL: " + err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigurationError{Field: field, Reason: "must use http or https"}
	}
	if u.Host == "" {
		return &ConfigurationError{Field: field, Reason: "must include a host"}
	}
	return nil
}
