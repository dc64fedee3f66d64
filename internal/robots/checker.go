package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheTTL   = time.Hour
	defaultTimeout    = 10 * time.Second
	maxRobotsBodySize = 1 << 20
)

// Config controls the Checker.
type Config struct {
	// UserAgent is sent when fetching robots.txt and used when a caller
	// passes an empty agent to IsAllowed.
	UserAgent string
	// CacheTTL bounds how long a parsed robots.txt is reused per host.
	CacheTTL time.Duration
	// Client overrides the HTTP client. Its transport is wrapped with the
	// robots.txt retry transport.
	Client *http.Client
	Now    func() time.Time
	Logger *zap.Logger
}

type cacheEntry struct {
	data *robotstxt.RobotsData
	// status is the robots.txt HTTP status. 4xx allows everything and 5xx
	// disallows everything.
	status    int
	fetchedAt time.Time
}

func (e cacheEntry) allows(path, userAgent string) bool {
	switch {
	case e.status >= http.StatusInternalServerError:
		return false
	case e.status >= http.StatusBadRequest, e.data == nil:
		return true
	}
	// FindGroup falls back to the "*" group when no agent-specific group exists.
	group := e.data.FindGroup(userAgent)
	if group == nil {
		return true
	}
	return group.Test(path)
}

// Checker enforces robots.txt directives per host.
type Checker struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	group singleflight.Group
}

// New builds a Checker.
func New(cfg Config) *Checker {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	base := http.DefaultTransport
	timeout := defaultTimeout
	if cfg.Client != nil {
		if cfg.Client.Transport != nil {
			base = cfg.Client.Transport
		}
		if cfg.Client.Timeout > 0 {
			timeout = cfg.Client.Timeout
		}
	}
	return &Checker{
		cfg: cfg,
		client: &http.Client{
			Timeout:   timeout,
			Transport: NewTransport(base),
		},
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
}

// IsAllowed reports whether userAgent may fetch rawURL.
func (c *Checker) IsAllowed(ctx context.Context, rawURL string, userAgent string) bool {
	if c == nil {
		return true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	if userAgent == "" {
		userAgent = c.cfg.UserAgent
	}
	entry, err := c.load(ctx, parsed)
	if err != nil {
		c.logger.Warn("robots fetch failed; allowing access", zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	return entry.allows(parsed.RequestURI(), userAgent)
}

// Forget drops the cached robots.txt for host.
func (c *Checker) Forget(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, strings.ToLower(host))
}

func (c *Checker) load(ctx context.Context, parsed *url.URL) (cacheEntry, error) {
	hostKey := strings.ToLower(parsed.Host)
	if entry, ok := c.cached(hostKey); ok {
		return entry, nil
	}
	v, err, _ := c.group.Do(hostKey, func() (any, error) {
		if entry, ok := c.cached(hostKey); ok {
			return entry, nil
		}
		entry, err := c.fetch(ctx, parsed)
		if err != nil {
			return nil, err
		}
		entry.fetchedAt = c.cfg.Now()
		c.mu.Lock()
		c.cache[hostKey] = entry
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return cacheEntry{}, fmt.Errorf("load robots for %s: %w", hostKey, err)
	}
	entry, ok := v.(cacheEntry)
	if !ok {
		return cacheEntry{}, fmt.Errorf("robots cache type mismatch: %T", v)
	}
	return entry, nil
}

func (c *Checker) cached(hostKey string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[hostKey]
	if !ok {
		return cacheEntry{}, false
	}
	if c.cfg.Now().Sub(entry.fetchedAt) >= c.cfg.CacheTTL {
		delete(c.cache, hostKey)
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *Checker) fetch(ctx context.Context, parsed *url.URL) (cacheEntry, error) {
	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return cacheEntry{}, fmt.Errorf("new robots request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return cacheEntry{}, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("failed to close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode >= http.StatusBadRequest {
		return cacheEntry{status: resp.StatusCode}, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodySize))
	if err != nil {
		return cacheEntry{}, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return cacheEntry{}, fmt.Errorf("parse robots: %w", err)
	}
	return cacheEntry{data: data, status: resp.StatusCode}, nil
}

// AllowAll permits every URL. It is used when robots.txt is not respected.
type AllowAll struct{}

// IsAllowed always returns true.
func (AllowAll) IsAllowed(context.Context, string, string) bool { return true }
