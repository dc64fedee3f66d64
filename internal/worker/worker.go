// Package worker implements the per-target crawl pipeline: robots gate,
// paced fetch with retries, change detection, persistence, and link
// discovery.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uridolan77/WebScraping-sub002/internal/clock/system"
	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
	"github.com/uridolan77/WebScraping-sub002/internal/fingerprint"
	"github.com/uridolan77/WebScraping-sub002/internal/frontier"
	"github.com/uridolan77/WebScraping-sub002/internal/metrics"
	"github.com/uridolan77/WebScraping-sub002/internal/progress"
	"github.com/uridolan77/WebScraping-sub002/internal/store"
)

// Pacer gates requests per domain and learns from their outcome.
type Pacer interface {
	Wait(ctx context.Context, domain string) (time.Duration, error)
	Observe(domain string, latency time.Duration, statusCode int)
}

// Classifier fingerprints content against the prior hash.
type Classifier interface {
	Classify(url string, content []byte, priorHash string) (crawler.ContentVersion, bool, error)
	Forget(url string)
}

// Baseliner caches text recorded by earlier runs as the comparison baseline.
type Baseliner interface {
	HasBaseline(url string) bool
	Prime(url string, content []byte)
}

// VersionPolicy records versions and exposes the baseline hash.
type VersionPolicy interface {
	Record(v crawler.ContentVersion) *crawler.ContentVersion
	LatestHash(url string) (string, bool)
}

// Frontier accepts discovered targets and re-ranks ones already queued.
type Frontier interface {
	Offer(t crawler.CrawlTarget) bool
	UpdatePriority(url string, delta float64) bool
}

// Clock supplies time and a cancellable sleep for retry backoff.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Config controls Worker behavior for one run.
type Config struct {
	RunID           uuid.UUID
	UserAgent       string
	RequestTimeout  time.Duration
	RespectRobots   bool
	ChangeDetection bool
	NotifyThreshold float64
	Prioritizer     frontier.Prioritizer
}

// Deps are the run-scoped collaborators a Worker drives.
type Deps struct {
	Fetcher    crawler.PageFetcher
	Robots     crawler.RobotsChecker
	Extractor  crawler.LinkExtractor
	Store      crawler.ContentStore
	History    crawler.HistoryLoader
	Sink       crawler.NotificationSink
	Pacer      Pacer
	Classifier Classifier
	Versions   VersionPolicy
	Frontier   Frontier
	Scope      *crawler.Scope
	Retry      *crawler.ExponentialRetryPolicy
	Hasher     crawler.Hasher
	Clock      Clock
}

// Outcome summarizes what happened to one target.
type Outcome string

// Target outcomes.
const (
	OutcomeProcessed Outcome = "processed"
	// OutcomeEmpty marks a fetched page with no content; nothing is recorded.
	OutcomeEmpty     Outcome = "empty"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Result reports the effect of processing one target.
type Result struct {
	Outcome Outcome
	// Attempts is the number of fetches issued.
	Attempts int
	// Queued counts discovered links accepted by the frontier.
	Queued int
	// Version is the classified version; zero when the fetch failed.
	Version crawler.ContentVersion
	// Recorded reports whether Version was persisted.
	Recorded bool
	// Err is the per-target failure for skipped and failed targets.
	Err error
}

// Worker executes the pipeline for targets polled by the controller. It
// holds no per-target state and is safe for concurrent use.
type Worker struct {
	cfg    Config
	deps   Deps
	runID  string
	logger *zap.Logger

	mu      sync.Mutex
	reached map[string]struct{}
}

// New constructs a Worker.
func New(cfg Config, deps Deps, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Retry == nil {
		deps.Retry = crawler.NewExponentialRetryPolicy(0)
	}
	if deps.Scope == nil {
		deps.Scope = crawler.NewScope(crawler.RunConfig{FollowExternalLinks: true})
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Hasher == nil {
		deps.Hasher = fingerprint.SHA256Hasher{}
	}
	return &Worker{
		cfg:     cfg,
		deps:    deps,
		runID:   cfg.RunID.String(),
		logger:  logger.Named("worker").With(zap.String("run_id", cfg.RunID.String())),
		reached: make(map[string]struct{}),
	}
}

// Reached reports whether url was processed or linked from an in-scope page
// during this run, whether or not the frontier accepted it.
func (w *Worker) Reached(url string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.reached[url]
	return ok
}

func (w *Worker) markReached(url string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reached[url] = struct{}{}
}

// Process runs one target through the pipeline. Per-target failures are
// reported in Result; the returned error is reserved for run-ending
// conditions: cancellation while waiting and store unavailability.
func (w *Worker) Process(ctx context.Context, target crawler.CrawlTarget) (Result, error) {
	w.markReached(target.URL)
	if w.cfg.RespectRobots && w.deps.Robots != nil &&
		!w.deps.Robots.IsAllowed(ctx, target.URL, w.cfg.UserAgent) {
		return w.skip(ctx, target)
	}

	// In-flight work finishes after cancellation; only waits observe ctx.
	workCtx := context.WithoutCancel(ctx)

	resp, attempts, err := w.fetch(ctx, workCtx, target)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return Result{Attempts: attempts}, fmt.Errorf("process %s: %w", target.URL, err)
		}
		return w.fail(workCtx, target, attempts, statusOf(resp, err), err)
	}
	w.emitFetch(target, resp)

	page, err := w.deps.Extractor.Extract(resp)
	if errors.Is(err, crawler.ErrEmptyContent) {
		return w.empty(target, attempts, page), nil
	}
	if err != nil {
		return w.fail(workCtx, target, attempts, resp.StatusCode, fmt.Errorf("extract: %w", err))
	}

	res := Result{Outcome: OutcomeProcessed, Attempts: attempts}
	significance := 0.0
	if w.cfg.ChangeDetection {
		version, recorded, err := w.detect(workCtx, target.URL, page.Text)
		if errors.Is(err, crawler.ErrEmptyContent) {
			return w.empty(target, attempts, page), nil
		}
		if err != nil {
			if isFatal(err) {
				return res, err
			}
			return w.fail(workCtx, target, attempts, resp.StatusCode, err)
		}
		res.Version, res.Recorded = version, recorded
		if version.ChangeType != crawler.ChangeUnchanged {
			significance = version.Significance
		}
	} else {
		version, err := w.persistPlain(workCtx, target.URL, page.Text)
		if errors.Is(err, crawler.ErrEmptyContent) {
			return w.empty(target, attempts, page), nil
		}
		if err != nil {
			if isFatal(err) {
				return res, err
			}
			return w.fail(workCtx, target, attempts, resp.StatusCode, err)
		}
		res.Version, res.Recorded = version, true
	}

	res.Queued = w.discover(target, page.Links, significance)
	w.logger.Debug("target processed",
		zap.String("url", target.URL),
		zap.Int("depth", target.Depth),
		zap.String("change_type", string(res.Version.ChangeType)),
		zap.Float64("significance", res.Version.Significance),
		zap.Int("queued", res.Queued),
	)
	return res, nil
}

// empty reports a page that yielded no text. It is neither a version nor a
// failure, but its links are still followed.
func (w *Worker) empty(target crawler.CrawlTarget, attempts int, page crawler.Page) Result {
	res := Result{Outcome: OutcomeEmpty, Attempts: attempts}
	res.Queued = w.discover(target, page.Links, 0)
	w.logger.Debug("target has no content",
		zap.String("url", target.URL),
		zap.Int("queued", res.Queued),
	)
	return res
}

// Remove records a Removed version for a previously known URL that this run
// no longer reached.
func (w *Worker) Remove(ctx context.Context, url string) (crawler.ContentVersion, error) {
	version := crawler.ContentVersion{
		URL:          url,
		CapturedAt:   w.deps.Clock.Now().UTC(),
		ChangeType:   crawler.ChangeRemoved,
		Significance: 100,
	}
	if w.deps.Classifier != nil {
		w.deps.Classifier.Forget(url)
	}
	if err := w.record(ctx, version, nil); err != nil {
		return version, err
	}
	w.notifyChange(version)
	return version, nil
}

func (w *Worker) fetch(
	waitCtx context.Context,
	workCtx context.Context,
	target crawler.CrawlTarget,
) (crawler.FetchResponse, int, error) {
	domain := crawler.HostOf(target.URL)
	for attempt := 0; ; attempt++ {
		if _, err := w.deps.Pacer.Wait(waitCtx, domain); err != nil {
			return crawler.FetchResponse{}, attempt, fmt.Errorf("pace %s: %w", domain, err)
		}
		start := w.deps.Clock.Now()
		resp, err := w.deps.Fetcher.Fetch(workCtx, crawler.FetchRequest{
			URL:       target.URL,
			UserAgent: w.cfg.UserAgent,
			Timeout:   w.cfg.RequestTimeout,
		})
		latency := resp.Latency
		if latency <= 0 {
			latency = w.deps.Clock.Now().Sub(start)
		}
		w.deps.Pacer.Observe(domain, latency, statusOf(resp, err))
		if err == nil {
			return resp, attempt + 1, nil
		}
		if !w.deps.Retry.ShouldRetry(err, attempt) {
			return resp, attempt + 1, err
		}
		backoff := w.deps.Retry.Backoff(attempt)
		w.logger.Debug("retrying fetch",
			zap.String("url", target.URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := w.deps.Clock.Sleep(waitCtx, backoff); err != nil {
			return resp, attempt + 1, fmt.Errorf("retry backoff: %w", err)
		}
	}
}

// detect classifies the page text against the baseline and records what is
// worth keeping. The text is stored as the version body so later runs can
// measure their changes against it.
func (w *Worker) detect(ctx context.Context, url string, text []byte) (crawler.ContentVersion, bool, error) {
	prior, _ := w.deps.Versions.LatestHash(url)
	w.primeBaseline(ctx, url, text, prior)
	version, significant, err := w.deps.Classifier.Classify(url, text, prior)
	if err != nil {
		return version, false, fmt.Errorf("classify: %w", err)
	}
	metrics.ObserveContentChange(string(version.ChangeType))
	if !significant {
		return version, false, nil
	}
	if err := w.record(ctx, version, text); err != nil {
		return version, false, err
	}
	w.notifyChange(version)
	return version, true, nil
}

// primeBaseline loads the text stored for prior when the classifier has no
// cached signature for url and the content has changed. Missing baselines
// leave the classifier to score the change as a full rewrite.
func (w *Worker) primeBaseline(ctx context.Context, url string, text []byte, prior string) {
	baseliner, ok := w.deps.Classifier.(Baseliner)
	if !ok || w.deps.History == nil || prior == "" || len(text) == 0 || baseliner.HasBaseline(url) {
		return
	}
	if hash, err := w.deps.Hasher.Hash(text); err != nil || hash == prior {
		return
	}
	baseline, err := w.deps.History.Baseline(ctx, url, prior)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			w.logger.Warn("load baseline failed", zap.String("url", url), zap.Error(err))
		}
		return
	}
	baseliner.Prime(url, baseline)
}

// persistPlain stores the page as an Added version without consulting or
// growing history.
func (w *Worker) persistPlain(ctx context.Context, url string, text []byte) (crawler.ContentVersion, error) {
	if len(text) == 0 {
		return crawler.ContentVersion{}, fmt.Errorf("fingerprint %s: %w", url, crawler.ErrEmptyContent)
	}
	hash, err := w.deps.Hasher.Hash(text)
	if err != nil {
		return crawler.ContentVersion{}, fmt.Errorf("hash content: %w", err)
	}
	version := crawler.ContentVersion{
		URL:          url,
		ContentHash:  hash,
		CapturedAt:   w.deps.Clock.Now().UTC(),
		SizeBytes:    int64(len(text)),
		ChangeType:   crawler.ChangeAdded,
		Significance: 100,
	}
	if err := w.persist(ctx, version, text); err != nil {
		return version, err
	}
	return version, nil
}

func (w *Worker) record(ctx context.Context, version crawler.ContentVersion, body []byte) error {
	if dropped := w.deps.Versions.Record(version); dropped != nil && w.deps.Store != nil {
		if err := w.deps.Store.Evict(ctx, *dropped); err != nil {
			if errors.Is(err, crawler.ErrStoreUnavailable) {
				return &crawler.FatalRunError{Err: fmt.Errorf("evict %s: %w", dropped.URL, err)}
			}
			w.logger.Warn("evict version failed", zap.String("url", dropped.URL), zap.Error(err))
		}
	}
	return w.persist(ctx, version, body)
}

func (w *Worker) persist(ctx context.Context, version crawler.ContentVersion, body []byte) error {
	if w.deps.Store == nil {
		return nil
	}
	if err := w.deps.Store.Persist(ctx, w.runID, version, body); err != nil {
		if errors.Is(err, crawler.ErrStoreUnavailable) {
			return &crawler.FatalRunError{Err: fmt.Errorf("persist %s: %w", version.URL, err)}
		}
		w.logger.Warn("persist version failed", zap.String("url", version.URL), zap.Error(err))
	}
	return nil
}

func (w *Worker) discover(parent crawler.CrawlTarget, links []crawler.Link, significance float64) int {
	depth := parent.Depth + 1
	now := w.deps.Clock.Now().UTC()
	queued := 0
	for _, link := range links {
		normalized, err := crawler.NormalizeURL(link.URL)
		if err != nil || normalized == parent.URL || !w.deps.Scope.Allows(normalized) {
			continue
		}
		w.markReached(normalized)
		child := crawler.CrawlTarget{
			URL:                normalized,
			Depth:              depth,
			Priority:           w.cfg.Prioritizer.Child(parent.Priority, depth, link.Relevance, significance),
			DiscoveredAt:       now,
			SourceURL:          parent.URL,
			Relevance:          link.Relevance,
			SourceSignificance: significance,
		}
		if w.deps.Frontier.Offer(child) {
			queued++
			continue
		}
		// A link found again while still queued gains priority from the new
		// parent's signals.
		if boost := w.cfg.Prioritizer.Rediscovery(link.Relevance, significance); boost > 0 {
			w.deps.Frontier.UpdatePriority(normalized, boost)
		}
	}
	return queued
}

func (w *Worker) skip(ctx context.Context, target crawler.CrawlTarget) (Result, error) {
	err := fmt.Errorf("robots %s: %w", target.URL, crawler.ErrRobotsDisallowed)
	failure := w.failure(target, 0, 0, err)
	if perr := w.persistFailure(context.WithoutCancel(ctx), failure); perr != nil {
		return Result{Outcome: OutcomeSkipped, Err: err}, perr
	}
	w.logger.Info("target disallowed by robots.txt", zap.String("url", target.URL))
	return Result{Outcome: OutcomeSkipped, Err: err}, nil
}

func (w *Worker) fail(
	ctx context.Context,
	target crawler.CrawlTarget,
	attempts int,
	statusCode int,
	cause error,
) (Result, error) {
	res := Result{Outcome: OutcomeFailed, Attempts: attempts, Err: cause}
	failure := w.failure(target, attempts, statusCode, cause)
	w.emit(progress.Event{
		Stage: progress.StageTargetFailed,
		Site:  crawler.HostOf(target.URL),
		URL:   target.URL,
		Note:  cause.Error(),
	})
	w.logger.Warn("target failed",
		zap.String("url", target.URL),
		zap.Int("attempts", attempts),
		zap.String("kind", string(failure.Kind)),
		zap.Error(cause),
	)
	if err := w.persistFailure(ctx, failure); err != nil {
		return res, err
	}
	return res, nil
}

func (w *Worker) failure(target crawler.CrawlTarget, attempts, statusCode int, cause error) crawler.TargetFailure {
	kind := crawler.KindOf(cause)
	if kind == "" {
		kind = crawler.KindPermanentFetch
	}
	return crawler.TargetFailure{
		URL:        target.URL,
		Depth:      target.Depth,
		SourceURL:  target.SourceURL,
		StatusCode: statusCode,
		Attempts:   attempts,
		Kind:       kind,
		Reason:     cause.Error(),
		FailedAt:   w.deps.Clock.Now().UTC(),
	}
}

func (w *Worker) persistFailure(ctx context.Context, failure crawler.TargetFailure) error {
	if w.deps.Store == nil {
		return nil
	}
	if err := w.deps.Store.PersistFailure(ctx, w.runID, failure); err != nil {
		if errors.Is(err, crawler.ErrStoreUnavailable) {
			return &crawler.FatalRunError{Err: fmt.Errorf("persist failure %s: %w", failure.URL, err)}
		}
		w.logger.Warn("persist failure record failed", zap.String("url", failure.URL), zap.Error(err))
	}
	return nil
}

func (w *Worker) emitFetch(target crawler.CrawlTarget, resp crawler.FetchResponse) {
	w.emit(progress.Event{
		Stage:       progress.StageFetchDone,
		Site:        crawler.HostOf(target.URL),
		URL:         target.URL,
		Bytes:       int64(len(resp.Body)),
		Visits:      1,
		StatusClass: progress.ClassifyStatus(resp.StatusCode),
		Dur:         resp.Latency,
	})
}

func (w *Worker) notifyChange(version crawler.ContentVersion) {
	if version.Significance < w.cfg.NotifyThreshold {
		return
	}
	w.emit(progress.Event{
		Stage:        progress.StageContentChanged,
		Site:         crawler.HostOf(version.URL),
		URL:          version.URL,
		ChangeType:   string(version.ChangeType),
		Significance: version.Significance,
		ContentHash:  version.ContentHash,
	})
}

func (w *Worker) emit(evt progress.Event) {
	if w.deps.Sink == nil {
		return
	}
	evt.RunID = progress.UUIDToBytes(w.cfg.RunID)
	evt.TS = w.deps.Clock.Now().UTC()
	w.deps.Sink.Emit(evt)
}

// statusOf picks the HTTP status the governor should learn from; 0 means no
// response arrived.
func statusOf(resp crawler.FetchResponse, err error) int {
	var fetchErr *crawler.FetchError
	if errors.As(err, &fetchErr) && fetchErr.StatusCode > 0 {
		return fetchErr.StatusCode
	}
	if err != nil && resp.StatusCode == 0 {
		return 0
	}
	return resp.StatusCode
}

func isFatal(err error) bool {
	var fatal *crawler.FatalRunError
	return errors.As(err, &fatal)
}
