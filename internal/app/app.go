// Package app builds the long-lived services of the scraper process from a
// config.Config and runs crawls and the ops server on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/uridolan77/WebScraping-sub002/internal/api"
	"github.com/uridolan77/WebScraping-sub002/internal/config"
	"github.com/uridolan77/WebScraping-sub002/internal/controller"
	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
	collyfetcher "github.com/uridolan77/WebScraping-sub002/internal/fetcher/colly"
	"github.com/uridolan77/WebScraping-sub002/internal/progress"
	progresssinks "github.com/uridolan77/WebScraping-sub002/internal/progress/sinks"
	pubsubpublisher "github.com/uridolan77/WebScraping-sub002/internal/publisher/pubsub"
	"github.com/uridolan77/WebScraping-sub002/internal/robots"
	"github.com/uridolan77/WebScraping-sub002/internal/storage"
	"github.com/uridolan77/WebScraping-sub002/internal/storage/gcs"
	"github.com/uridolan77/WebScraping-sub002/internal/storage/local"
	"github.com/uridolan77/WebScraping-sub002/internal/storage/memory"
	"github.com/uridolan77/WebScraping-sub002/internal/storage/postgres"
	"github.com/uridolan77/WebScraping-sub002/internal/store"
)

const tracerName = "github.com/uridolan77/WebScraping-sub002/internal/app"

// Options overrides collaborators that are otherwise built from config.
// Tests use it to swap the network-facing pieces for fakes.
type Options struct {
	Logger    *zap.Logger
	Fetcher   crawler.PageFetcher
	Robots    crawler.RobotsChecker
	Publisher progresssinks.Publisher
	// Registerer receives the progress collectors. A private registry is
	// created when nil.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// App holds the shared services of one process.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	hub     *progress.Hub
	runs    store.RunRepository
	content *storage.ContentStore
	fetcher crawler.PageFetcher
	robots  crawler.RobotsChecker
	server  *api.Server

	pool      *pgxpool.Pool
	blobs     io.Closer
	publisher *pubsubpublisher.Publisher

	mu      sync.Mutex
	current *controller.Controller

	closeOnce sync.Once
	closeErr  error
}

// New wires storage, notification sinks, the fetcher, and the ops server.
// It fails fast when a configured backend cannot be reached.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}

	if err := a.initStores(ctx); err != nil {
		a.closeBackends()
		return nil, err
	}
	reg := opts.Registerer
	gatherer := opts.Gatherer
	if reg == nil {
		private := prometheus.NewRegistry()
		reg, gatherer = private, private
	}
	if err := a.initHub(ctx, opts, reg); err != nil {
		a.closeBackends()
		return nil, err
	}
	a.initFetching(opts)

	a.server = api.NewServer(api.Options{
		Runs:           a.runs,
		Ready:          a.ready,
		Live:           a.live,
		Logger:         logger,
		MetricsHandler: metricsHandler(gatherer),
	})
	logger.Info("application services initialized",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("postgres", a.pool != nil),
		zap.Bool("pubsub", a.publisher != nil || opts.Publisher != nil),
	)
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	var (
		blobs    crawler.BlobStore
		versions store.VersionRepository
	)
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		gs, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("open gcs blob store: %w", err)
		}
		a.blobs = gs
		blobs = gs
	case config.BackendLocal:
		ls, err := local.New(local.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return fmt.Errorf("open local blob store: %w", err)
		}
		a.blobs = ls
		blobs = ls
	default:
		blobs = memory.NewBlobStore()
	}

	if a.cfg.DB.DSN != "" {
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool
		if a.cfg.DB.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migrate postgres: %w", err)
			}
		}
		runs, err := postgres.NewRunStore(pool)
		if err != nil {
			return fmt.Errorf("init run store: %w", err)
		}
		vs, err := postgres.NewVersionStore(pool, postgres.VersionStoreConfig{
			VersionsTable: a.cfg.DB.VersionsTable,
			FailuresTable: a.cfg.DB.FailuresTable,
		})
		if err != nil {
			return fmt.Errorf("init version store: %w", err)
		}
		a.runs = runs
		versions = vs
	} else {
		a.runs = memory.NewRunStore()
		versions = memory.NewVersionStore()
	}

	content, err := storage.NewContentStore(blobs, versions, storage.Config{
		BlobPrefix:  a.cfg.Storage.Prefix,
		ContentType: a.cfg.Storage.ContentType,
	}, a.logger.Named("storage"))
	if err != nil {
		return fmt.Errorf("init content store: %w", err)
	}
	a.content = content
	return nil
}

func (a *App) initHub(ctx context.Context, opts Options, reg prometheus.Registerer) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("init prometheus sink: %w", err)
	}
	sinks := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("progress")),
		progresssinks.NewStoreSink(a.runs, a.logger.Named("progress")),
		promSink,
	}
	publisher := opts.Publisher
	if publisher == nil && a.cfg.PubSub.Topic != "" {
		p, err := pubsubpublisher.Open(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("open pubsub publisher: %w", err)
		}
		a.publisher = p
		publisher = p
	}
	if publisher != nil && a.cfg.PubSub.Topic != "" {
		sinks = append(sinks, progresssinks.NewPublishSink(publisher, a.cfg.PubSub.Topic, a.logger.Named("progress")))
	}
	a.hub = progress.NewHub(progress.Config{Logger: a.logger.Named("hub")}, sinks...)
	return nil
}

func (a *App) initFetching(opts Options) {
	a.fetcher = opts.Fetcher
	if a.fetcher == nil {
		a.fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:   a.cfg.HTTP.UserAgent,
			Timeout:     a.cfg.HTTP.RequestTimeout,
			MaxBodySize: a.cfg.HTTP.MaxBodyBytes,
		})
	}
	a.robots = opts.Robots
	if a.robots == nil {
		a.robots = robots.New(robots.Config{
			UserAgent: a.cfg.HTTP.UserAgent,
			CacheTTL:  a.cfg.Robots.CacheTTL,
			Logger:    a.logger.Named("robots"),
		})
	}
}

// Handler returns the ops HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Runs exposes the run registry backing the ops endpoints.
func (a *App) Runs() store.RunRepository {
	return a.runs
}

// RunOnce executes a single crawl with the configured scraper options.
func (a *App) RunOnce(ctx context.Context) (crawler.RunResult, error) {
	runCfg := a.cfg.RunConfig()
	retry := crawler.NewExponentialRetryPolicy(runCfg.MaxRetries)
	if a.cfg.HTTP.RetryBaseDelay > 0 && a.cfg.HTTP.RetryMaxDelay > 0 {
		retry = retry.WithDelays(a.cfg.HTTP.RetryBaseDelay, a.cfg.HTTP.RetryMaxDelay)
	}
	ctrl, err := controller.New(runCfg, controller.Deps{
		Fetcher: a.fetcher,
		Robots:  a.robots,
		Store:   a.content,
		History: a.content,
		Sink:    a.hub,
		Retry:   retry,
		Logger:  a.logger,
	})
	if err != nil {
		return crawler.RunResult{}, fmt.Errorf("build controller: %w", err)
	}
	a.mu.Lock()
	a.current = ctrl
	a.mu.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "crawl.run")
	defer span.End()
	span.SetAttributes(attribute.String("crawl.start_url", runCfg.StartURL))

	result, err := ctrl.Run(ctx)
	span.SetAttributes(
		attribute.String("crawl.run_id", result.RunID),
		attribute.String("crawl.status", string(result.Status)),
		attribute.Int64("crawl.urls_processed", result.Counters.URLsProcessed),
		attribute.Int64("crawl.changes_detected", result.Counters.ChangesDetected),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("run crawl: %w", err)
	}
	return result, nil
}

// Serve runs the ops server until ctx is done, then shuts it down within the
// configured timeout.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("ops server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown ops server: %w", err)
	}
	a.logger.Info("ops server stopped")
	return nil
}

// Close flushes pending progress events and releases backends. It is safe
// to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.logger.Info("shutting down application services")
		if a.hub != nil {
			if err := a.hub.Close(ctx); err != nil {
				a.closeErr = fmt.Errorf("close progress hub: %w", err)
			}
		}
		a.closeBackends()
	})
	return a.closeErr
}

func (a *App) closeBackends() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("close pubsub publisher failed", zap.Error(err))
		}
	}
	if a.blobs != nil {
		if err := a.blobs.Close(); err != nil {
			a.logger.Warn("close blob store failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) ready(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (a *App) live() api.LiveRun {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	return a.current
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, gatherer},
		promhttp.HandlerOpts{},
	)
}
