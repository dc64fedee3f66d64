// Package controller runs one adaptive crawl: it owns the run state, fans
// targets out to a pool of workers, and decides how the run ends.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uridolan77/WebScraping-sub002/internal/clock/system"
	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
	"github.com/uridolan77/WebScraping-sub002/internal/extract"
	"github.com/uridolan77/WebScraping-sub002/internal/fingerprint"
	"github.com/uridolan77/WebScraping-sub002/internal/frontier"
	"github.com/uridolan77/WebScraping-sub002/internal/metrics"
	"github.com/uridolan77/WebScraping-sub002/internal/progress"
	"github.com/uridolan77/WebScraping-sub002/internal/ratelimit"
	"github.com/uridolan77/WebScraping-sub002/internal/versions"
	"github.com/uridolan77/WebScraping-sub002/internal/worker"
)

// ErrAlreadyStarted is returned when Run is called twice on one Controller.
var ErrAlreadyStarted = errors.New("controller already started")

// Deps are the external collaborators of a run. Fetcher is required; the
// rest fall back to permissive or in-process defaults.
type Deps struct {
	Fetcher   crawler.PageFetcher
	Robots    crawler.RobotsChecker
	Extractor crawler.LinkExtractor
	Store     crawler.ContentStore
	History   crawler.HistoryLoader
	Sink      crawler.NotificationSink
	Hasher    crawler.Hasher
	Clock     ratelimit.Clock
	// Retry overrides the policy derived from MaxRetries.
	Retry  *crawler.ExponentialRetryPolicy
	Logger *zap.Logger
}

// Controller executes a single crawl run.
type Controller struct {
	cfg    crawler.RunConfig
	deps   Deps
	logger *zap.Logger

	mu       sync.Mutex
	state    crawler.RunStatus
	runID    uuid.UUID
	counters crawler.RunCounters
	result   crawler.RunResult
}

// New validates cfg and prepares a Controller in the Idle state. An invalid
// configuration is returned as a *crawler.ConfigurationError.
func New(cfg crawler.RunConfig, deps Deps) (*Controller, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate run config: %w", err)
	}
	if deps.Fetcher == nil {
		return nil, &crawler.ConfigurationError{Field: "fetcher", Reason: "must be set"}
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Hasher == nil {
		deps.Hasher = fingerprint.SHA256Hasher{}
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.New(extract.Config{RelevanceKeywords: cfg.RelevanceKeywords})
	}
	if deps.Retry == nil {
		deps.Retry = crawler.NewExponentialRetryPolicy(cfg.MaxRetries)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		cfg:    cfg,
		deps:   deps,
		logger: logger.Named("controller"),
		state:  crawler.RunIdle,
	}, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() crawler.RunStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RunID returns the run identifier, or uuid.Nil before Run starts.
func (c *Controller) RunID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Counters returns a snapshot of the run counters.
func (c *Controller) Counters() crawler.RunCounters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}

// Result returns the outcome of a finished run; it is zero until Run returns.
func (c *Controller) Result() crawler.RunResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Run crawls from the start URL until the frontier is quiescent, the page
// budget is spent, a fatal error occurs, or ctx is cancelled. The returned
// error is non-nil only when the run ends Failed.
func (c *Controller) Run(ctx context.Context) (crawler.RunResult, error) {
	runID, err := uuid.NewV7()
	if err != nil {
		return crawler.RunResult{}, fmt.Errorf("generate run id: %w", err)
	}
	started := c.deps.Clock.Now().UTC()

	c.mu.Lock()
	if c.state != crawler.RunIdle {
		c.mu.Unlock()
		return crawler.RunResult{}, ErrAlreadyStarted
	}
	c.state = crawler.RunRunning
	c.runID = runID
	c.mu.Unlock()

	logger := c.logger.With(zap.String("run_id", runID.String()))
	logger.Info("crawl run started",
		zap.String("start_url", c.cfg.StartURL),
		zap.Int("max_depth", c.cfg.MaxDepth),
		zap.Int("max_pages", c.cfg.MaxPages),
		zap.Int("workers", c.cfg.MaxConcurrentRequests),
	)
	c.emit(runID, progress.Event{Stage: progress.StageRunStart, URL: c.cfg.StartURL})

	run := newRunState(c.cfg, c.deps, runID, logger)
	status, runErr := c.execute(ctx, run)
	return c.finish(run, started, status, runErr), runErr
}

func (c *Controller) execute(ctx context.Context, run *runState) (crawler.RunStatus, error) {
	if err := run.seedHistory(ctx); err != nil {
		return crawler.RunFailed, err
	}
	if err := run.seedStart(); err != nil {
		return crawler.RunFailed, err
	}
	c.syncCounters(run)

	g, gctx := errgroup.WithContext(ctx)
	for range c.cfg.MaxConcurrentRequests {
		g.Go(func() error {
			return c.loop(gctx, run)
		})
	}
	err := g.Wait()
	run.frontier.Close()
	c.syncCounters(run)

	switch {
	case err != nil:
		return crawler.RunFailed, err
	case ctx.Err() != nil:
		return crawler.RunStopped, nil
	}
	if !run.budgetSpent() {
		if err := run.sweepRemoved(ctx); err != nil {
			return crawler.RunFailed, err
		}
		c.syncCounters(run)
	}
	return crawler.RunCompleted, nil
}

// loop is one worker goroutine. It returns nil on quiescence, budget
// exhaustion, or cancellation, and an error only for fatal conditions.
func (c *Controller) loop(ctx context.Context, run *runState) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		target, ok, err := run.frontier.Poll(ctx)
		if err != nil || !ok {
			return nil
		}
		if !run.reserve() {
			run.frontier.Done(target.URL)
			run.frontier.Close()
			return nil
		}

		metrics.IncActiveWorkers()
		res, err := run.worker.Process(ctx, target)
		metrics.DecActiveWorkers()
		run.frontier.Done(target.URL)

		if err != nil {
			run.release()
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
		if err := run.apply(target, res); err != nil {
			run.frontier.Close()
			return err
		}
		c.syncCounters(run)
	}
}

func (c *Controller) finish(
	run *runState,
	started time.Time,
	status crawler.RunStatus,
	runErr error,
) crawler.RunResult {
	finished := c.deps.Clock.Now().UTC()
	counters := run.snapshot()
	result := crawler.RunResult{
		RunID:      run.id.String(),
		Status:     status,
		StartedAt:  started,
		FinishedAt: finished,
		Counters:   counters,
	}
	if runErr != nil {
		result.LastError = runErr.Error()
	}

	c.mu.Lock()
	c.state = status
	c.counters = counters
	c.result = result
	c.mu.Unlock()

	stage := progress.StageRunDone
	switch status {
	case crawler.RunFailed:
		stage = progress.StageRunFailed
	case crawler.RunStopped:
		stage = progress.StageRunStopped
	}
	c.emit(run.id, progress.Event{
		Stage:  stage,
		URL:    c.cfg.StartURL,
		Dur:    finished.Sub(started),
		Totals: totalsOf(counters),
		Note:   result.LastError,
	})
	metrics.ObserveRun(string(status))

	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Int64("urls_processed", counters.URLsProcessed),
		zap.Int64("urls_failed", counters.URLsFailed),
		zap.Int64("urls_skipped", counters.URLsSkipped),
		zap.Int64("changes_detected", counters.ChangesDetected),
		zap.Duration("elapsed", finished.Sub(started)),
	}
	if runErr != nil {
		run.logger.Error("crawl run failed", append(fields, zap.Error(runErr))...)
	} else {
		run.logger.Info("crawl run finished", fields...)
	}
	return result
}

func (c *Controller) syncCounters(run *runState) {
	counters := run.snapshot()
	c.mu.Lock()
	c.counters = counters
	c.mu.Unlock()
}

func (c *Controller) emit(runID uuid.UUID, evt progress.Event) {
	if c.deps.Sink == nil {
		return
	}
	evt.RunID = progress.UUIDToBytes(runID)
	evt.TS = c.deps.Clock.Now().UTC()
	c.deps.Sink.Emit(evt)
}

func totalsOf(c crawler.RunCounters) *progress.Totals {
	return &progress.Totals{
		Processed: c.URLsProcessed,
		Queued:    c.URLsQueued,
		Documents: c.DocumentsProcessed,
		Failed:    c.URLsFailed,
		Skipped:   c.URLsSkipped,
		Changes:   c.ChangesDetected,
	}
}

// runState is everything scoped to one run. Nothing in it outlives Run.
type runState struct {
	id       uuid.UUID
	cfg      crawler.RunConfig
	deps     Deps
	logger   *zap.Logger
	frontier *frontier.Scheduler
	versions *versions.Policy
	worker   *worker.Worker

	mu       sync.Mutex
	counters crawler.RunCounters
	// started counts targets that hold a page-budget slot.
	started int
	spent   bool
}

func newRunState(cfg crawler.RunConfig, deps Deps, id uuid.UUID, logger *zap.Logger) *runState {
	fr := frontier.New(frontier.Config{
		MaxDepth:                  cfg.MaxDepth,
		QueueSize:                 cfg.PriorityQueueSize,
		AdjustDepthBasedOnQuality: cfg.AdjustDepthBasedOnQuality,
		QualityThreshold:          cfg.QualityThreshold,
		Logger:                    logger,
	})
	policy := versions.New(versions.Config{
		TrackContentVersions: cfg.TrackContentVersions,
		MaxVersionsToKeep:    cfg.MaxVersionsToKeep,
	})
	governor := ratelimit.New(ratelimit.Config{
		Adaptive:             cfg.EnableAdaptiveRateLimiting,
		FixedDelay:           cfg.DelayBetweenRequests,
		MinDelay:             cfg.MinDelayBetweenRequests,
		MaxDelay:             cfg.MaxDelayBetweenRequests,
		MaxRequestsPerMinute: cfg.MaxRequestsPerMinute,
		Clock:                deps.Clock,
		Logger:               logger,
	})
	engine := fingerprint.New(fingerprint.Config{
		SignificanceThreshold: cfg.SignificanceThreshold,
		Hasher:                deps.Hasher,
		Clock:                 deps.Clock,
	})
	w := worker.New(worker.Config{
		RunID:           id,
		UserAgent:       cfg.UserAgent,
		RequestTimeout:  cfg.RequestTimeout,
		RespectRobots:   cfg.RespectRobotsTxt,
		ChangeDetection: cfg.EnableChangeDetection,
		NotifyThreshold: cfg.NotifyThreshold,
		Prioritizer:     frontier.Prioritizer{Adaptive: cfg.EnableAdaptiveCrawling},
	}, worker.Deps{
		Fetcher:    deps.Fetcher,
		Robots:     deps.Robots,
		Extractor:  deps.Extractor,
		Store:      deps.Store,
		History:    deps.History,
		Sink:       deps.Sink,
		Pacer:      governor,
		Classifier: engine,
		Versions:   policy,
		Frontier:   fr,
		Scope:      crawler.NewScope(cfg),
		Retry:      deps.Retry,
		Hasher:     deps.Hasher,
		Clock:      deps.Clock,
	}, logger)
	return &runState{
		id:       id,
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		frontier: fr,
		versions: policy,
		worker:   w,
	}
}

// seedHistory preloads the versions kept by prior runs so retention and
// change detection continue across runs. Only store unavailability is fatal;
// other errors start the run without a baseline.
func (r *runState) seedHistory(ctx context.Context) error {
	if r.deps.History == nil || !r.cfg.EnableChangeDetection {
		return nil
	}
	limit := 1
	if r.versions.Tracking() {
		limit = max(r.cfg.MaxVersionsToKeep, 1)
	}
	history, err := r.deps.History.RecentVersions(ctx, r.cfg.BaseURL, limit)
	if err != nil {
		if errors.Is(err, crawler.ErrStoreUnavailable) {
			return &crawler.FatalRunError{Err: fmt.Errorf("load history: %w", err)}
		}
		r.logger.Warn("load history failed; starting without baseline", zap.Error(err))
		return nil
	}
	for url, prior := range history {
		r.versions.SeedHistory(url, prior)
	}
	r.logger.Debug("history loaded", zap.Int("urls", len(history)))
	return nil
}

func (r *runState) seedStart() error {
	seed, err := crawler.NormalizeURL(r.cfg.StartURL)
	if err != nil {
		return &crawler.FatalRunError{Err: fmt.Errorf("normalize start url: %w", err)}
	}
	if !r.frontier.Offer(crawler.CrawlTarget{
		URL:          seed,
		Priority:     frontier.SeedPriority,
		DiscoveredAt: r.deps.Clock.Now().UTC(),
	}) {
		return &crawler.FatalRunError{Err: fmt.Errorf("seed %s refused by frontier", seed)}
	}
	r.mu.Lock()
	r.counters.URLsQueued++
	r.mu.Unlock()
	return nil
}

// reserve claims a page-budget slot. It reports false once MaxPages targets
// have been started.
func (r *runState) reserve() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started >= r.cfg.MaxPages {
		r.spent = true
		return false
	}
	r.started++
	return true
}

func (r *runState) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started--
}

func (r *runState) budgetSpent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spent
}

// apply folds one target result into the counters. It returns a fatal error
// when the failure must end the run.
func (r *runState) apply(target crawler.CrawlTarget, res worker.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters.URLsQueued += int64(res.Queued)
	switch res.Outcome {
	case worker.OutcomeSkipped:
		r.counters.URLsSkipped++
		r.started--
		return nil
	case worker.OutcomeFailed:
		r.counters.URLsProcessed++
		r.counters.URLsFailed++
		r.counters.HasErrors = true
	case worker.OutcomeEmpty:
		r.counters.URLsProcessed++
	default:
		r.counters.URLsProcessed++
		r.counters.DocumentsProcessed++
		if res.Recorded && res.Version.ChangeType != crawler.ChangeUnchanged {
			r.counters.ChangesDetected++
		}
	}
	if r.counters.URLsProcessed >= int64(r.cfg.MaxPages) {
		r.spent = true
		r.frontier.Close()
	}

	if res.Outcome != worker.OutcomeFailed {
		return nil
	}
	switch {
	case target.IsSeed():
		return &crawler.FatalRunError{Err: fmt.Errorf("seed %s: %w", target.URL, res.Err)}
	case !r.cfg.ContinueOnError:
		return &crawler.FatalRunError{Err: fmt.Errorf("target %s: %w", target.URL, res.Err)}
	}
	return nil
}

// sweepRemoved records a Removed version for every URL known from prior
// runs that this run never reached. URLs linked from a crawled page count as
// reached even when the frontier refused or evicted them.
func (r *runState) sweepRemoved(ctx context.Context) error {
	for _, url := range r.versions.Seeded() {
		if r.worker.Reached(url) || r.frontier.Seen(url) {
			continue
		}
		if _, err := r.worker.Remove(ctx, url); err != nil {
			return err
		}
		r.mu.Lock()
		r.counters.ChangesDetected++
		r.mu.Unlock()
		r.logger.Info("content removed", zap.String("url", url))
	}
	return nil
}

func (r *runState) snapshot() crawler.RunCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}
