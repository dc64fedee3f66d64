package app

import (
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uridolan77/WebScraping-sub002/internal/config"
	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
	memorypublisher "github.com/uridolan77/WebScraping-sub002/internal/publisher/memory"
	"github.com/uridolan77/WebScraping-sub002/internal/robots"
	"github.com/uridolan77/WebScraping-sub002/internal/store"
)

func TestRunOnceRecordsRunAndPublishesChanges(t *testing.T) {
	t.Parallel()

	site := newStaticSite(map[string]string{
		"https://shop.example.com/":     `<html><body><p>weekly prices</p><a href="/milk">milk</a></body></html>`,
		"https://shop.example.com/milk": `<html><body><p>milk costs 1.99 today</p></body></html>`,
	})
	publisher := memorypublisher.New()
	cfg := testConfig("https://shop.example.com/")
	cfg.PubSub = config.PubSubConfig{ProjectID: "test-project", Topic: "content-changes"}

	a, err := New(context.Background(), cfg, Options{
		Logger:    zap.NewNop(),
		Fetcher:   site,
		Robots:    robots.AllowAll{},
		Publisher: publisher,
	})
	require.NoError(t, err)

	result, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.RunCompleted, result.Status)
	require.Equal(t, int64(2), result.Counters.URLsProcessed)
	require.Equal(t, int64(2), result.Counters.ChangesDetected)
	require.Equal(t, 1, site.calls("https://shop.example.com/milk"))

	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()), "close is idempotent")

	runID, err := uuid.Parse(result.RunID)
	require.NoError(t, err)
	run, err := a.Runs().GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, store.RunCompleted, run.Status)
	require.Equal(t, int64(2), run.Totals.URLsProcessed)

	messages := publisher.Topic("content-changes")
	require.Len(t, messages, 3, "two added pages plus the run outcome")
}

func TestOpsServerExposesLiveRunAndMetrics(t *testing.T) {
	t.Parallel()

	site := newStaticSite(map[string]string{
		"https://news.example.org/": `<html><body><p>headline</p></body></html>`,
	})
	reg := prometheus.NewRegistry()
	a, err := New(context.Background(), testConfig("https://news.example.org/"), Options{
		Fetcher:    site,
		Robots:     robots.AllowAll{},
		Registerer: reg,
		Gatherer:   reg,
	})
	require.NoError(t, err)

	rec := get(t, a.Handler(), "/v1/runs/active")
	require.Equal(t, http.StatusNotFound, rec.Code)

	result, err := a.RunOnce(context.Background())
	require.NoError(t, err)

	rec = get(t, a.Handler(), "/v1/runs/active")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), result.RunID)
	require.Contains(t, rec.Body.String(), `"status":"completed"`)

	require.NoError(t, a.Close(context.Background()))

	rec = get(t, a.Handler(), "/v1/runs/"+result.RunID)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, a.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "crawler_runs_started_total")

	require.Equal(t, http.StatusOK, get(t, a.Handler(), "/readyz").Code)
}

func TestLocalBackendWritesBodies(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	site := newStaticSite(map[string]string{
		"https://docs.example.net/": `<html><body><p>release notes</p></body></html>`,
	})
	cfg := testConfig("https://docs.example.net/")
	cfg.Storage = config.StorageConfig{Backend: config.BackendLocal, BaseDir: dir, Prefix: "pages"}

	a, err := New(context.Background(), cfg, Options{Fetcher: site, Robots: robots.AllowAll{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	result, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.RunCompleted, result.Status)

	var bodies []string
	require.NoError(t, filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".txt") {
			bodies = append(bodies, path)
		}
		return nil
	}))
	require.Len(t, bodies, 1)
	require.Contains(t, bodies[0], filepath.Join("pages", result.RunID))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://example.com/")
	cfg.Storage.Backend = config.BackendGCS

	_, err := New(context.Background(), cfg, Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "storage.gcs_bucket")
}

func TestRunOnceSurfacesConfigurationErrors(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig("https://example.com/"), Options{
		Fetcher: newStaticSite(nil),
		Robots:  robots.AllowAll{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	a.cfg.Scraper.MaxPages = 0
	_, err = a.RunOnce(context.Background())
	var cfgErr *crawler.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "max_pages", cfgErr.Field)
}

func testConfig(startURL string) config.Config {
	return config.Config{
		Scraper: config.ScraperConfig{
			StartURL:              startURL,
			MaxDepth:              3,
			MaxPages:              20,
			MaxConcurrentRequests: 2,
			RespectRobotsTxt:      true,
			EnableChangeDetection: true,
			TrackContentVersions:  true,
			MaxVersionsToKeep:     3,
			ContinueOnError:       true,
		},
		HTTP:    config.HTTPConfig{UserAgent: "webscraper-test/1.0", RequestTimeout: 5 * time.Second},
		Storage: config.StorageConfig{Backend: config.BackendMemory},
		Server:  config.ServerConfig{Port: 8080},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

type staticSite struct {
	pages map[string]string

	mu     sync.Mutex
	counts map[string]int
}

func newStaticSite(pages map[string]string) *staticSite {
	return &staticSite{pages: pages, counts: make(map[string]int)}
}

func (s *staticSite) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	s.mu.Lock()
	s.counts[req.URL]++
	s.mu.Unlock()
	body, ok := s.pages[req.URL]
	if !ok {
		return crawler.FetchResponse{}, crawler.NewPermanentFetchError(req.URL, http.StatusNotFound, nil)
	}
	return crawler.FetchResponse{
		URL:        req.URL,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       []byte(body),
	}, nil
}

func (s *staticSite) calls(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[url]
}
