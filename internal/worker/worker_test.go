package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uridolan77/WebScraping-sub002/internal/clock/manual"
	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
	"github.com/uridolan77/WebScraping-sub002/internal/fingerprint"
	"github.com/uridolan77/WebScraping-sub002/internal/frontier"
	"github.com/uridolan77/WebScraping-sub002/internal/progress"
	"github.com/uridolan77/WebScraping-sub002/internal/ratelimit"
	"github.com/uridolan77/WebScraping-sub002/internal/store"
	"github.com/uridolan77/WebScraping-sub002/internal/versions"
)

const seedURL = "https://example.com/"

func TestWorker_Process_AddedVersionPersistedAndLinksOffered(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{changeDetection: true})
	h.fetcher.respond(seedURL, okResponse(seedURL, "fresh page content for the index"))
	h.extractor.links[seedURL] = []crawler.Link{
		{URL: "https://example.com/a", Relevance: 0.5},
		{URL: "https://example.com/b"},
		{URL: "https://other.org/c"},
		{URL: seedURL},
	}

	res, err := h.worker.Process(context.Background(), seedTarget())
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, res.Outcome)
	require.Equal(t, 1, res.Attempts)
	require.Equal(t, 2, res.Queued)
	require.True(t, res.Recorded)
	require.Equal(t, crawler.ChangeAdded, res.Version.ChangeType)
	require.InDelta(t, 100, res.Version.Significance, 0.001)

	require.Len(t, h.store.persisted(), 1)
	require.Len(t, h.versions.History(seedURL), 1)
	require.Equal(t, []progress.Stage{progress.StageFetchDone, progress.StageContentChanged}, h.sink.stages())

	require.Equal(t, 2, h.frontier.Len())
	first, ok, err := h.frontier.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://example.com/a", first.URL)
	require.Equal(t, 1, first.Depth)
	require.Equal(t, seedURL, first.SourceURL)
	require.InDelta(t, 100, first.SourceSignificance, 0.001)
	require.InDelta(t, frontier.Prioritizer{Adaptive: true}.Child(100, 1, 0.5, 100), first.Priority, 0.001)
}

func TestWorker_Process_UnchangedSkipsRecordAndBoost(t *testing.T) {
	t.Parallel()

	const body = "steady content that never changes"
	h := newHarness(t, harnessOptions{changeDetection: true})
	hash, err := fingerprint.SHA256Hasher{}.Hash([]byte(body))
	require.NoError(t, err)
	h.seedPrior(seedURL, hash)
	h.fetcher.respond(seedURL, okResponse(seedURL, body))
	h.extractor.links[seedURL] = []crawler.Link{{URL: "https://example.com/child", Relevance: 0.25}}

	res, err := h.worker.Process(context.Background(), seedTarget())
	require.NoError(t, err)
	require.Equal(t, crawler.ChangeUnchanged, res.Version.ChangeType)
	require.Zero(t, res.Version.Significance)
	require.False(t, res.Recorded)
	require.Empty(t, h.store.persisted())
	require.Len(t, h.versions.History(seedURL), 1, "only the prior run's version")
	require.Equal(t, []progress.Stage{progress.StageFetchDone}, h.sink.stages())
	require.Zero(t, h.history.loads(), "unchanged content needs no baseline")

	child, ok, err := h.frontier.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, child.SourceSignificance)
	require.InDelta(t, frontier.Prioritizer{Adaptive: true}.Child(100, 1, 0.25, 0), child.Priority, 0.001)
}

func TestWorker_Process_RetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{changeDetection: true, maxRetries: 2})
	h.fetcher.fail(seedURL, crawler.NewTransientFetchError(seedURL, http.StatusServiceUnavailable, errors.New("busy")))
	h.fetcher.respond(seedURL, okResponse(seedURL, "eventually served"))

	res, err := h.worker.Process(context.Background(), seedTarget())
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, res.Outcome)
	require.Equal(t, 2, res.Attempts)
	require.Equal(t, 2, h.fetcher.calls(seedURL))

	state, ok := h.governor.State("example.com")
	require.True(t, ok)
	require.Zero(t, state.ConsecutiveErrors)
}

func TestWorker_Process_RetriesExhausted(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{changeDetection: true, maxRetries: 2})
	for range 3 {
		h.fetcher.fail(seedURL, crawler.NewTransientFetchError(seedURL, 0, errors.New("timeout")))
	}

	res, err := h.worker.Process(context.Background(), seedTarget())
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Equal(t, 3, res.Attempts)
	require.ErrorIs(t, res.Err, crawler.ErrTransientFetch)

	failures := h.store.failures()
	require.Len(t, failures, 1)
	require.Equal(t, crawler.KindTransientFetch, failures[0].Kind)
	require.Equal(t, 3, failures[0].Attempts)
	require.Equal(t, []progress.Stage{progress.StageTargetFailed}, h.sink.stages())

	state, ok := h.governor.State("example.com")
	require.True(t, ok)
	require.Equal(t, 3, state.ConsecutiveErrors)
}

func TestWorker_Process_PermanentFailsImmediately(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{changeDetection: true, maxRetries: 3})
	h.fetcher.fail(seedURL, crawler.NewPermanentFetchError(seedURL, http.StatusNotFound, errors.New("not found")))

	res, err := h.worker.Process(context.Background(), seedTarget())
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Equal(t, 1, res.Attempts)
	require.ErrorIs(t, res.Err, crawler.ErrPermanentFetch)
	require.Equal(t, http.StatusNotFound, h.store.failures()[0].StatusCode)
}

func TestWorker_Process_RobotsDisallowedIsSkipped(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{changeDetection: true, respectRobots: true})
	h.robots.deny[seedURL] = true

	res, err := h.worker.Process(context.Background(), seedTarget())
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, res.Outcome)
	require.ErrorIs(t, res.Err, crawler.ErrRobotsDisallowed)
	require.Zero(t, h.fetcher.calls(seedURL))

	failures := h.store.failures()
	require.Len(t, failures, 1)
	require.Equal(t, crawler.KindPermanentFetch, failures[0].Kind)
}

func TestWorker_Process_EmptyContentIsNotAFailure(t *testing.T) {
	t.Parallel()

	for _, detect := range []bool{true, false} {
		h := newHarness(t, harnessOptions{changeDetection: detect})
		h.fetcher.respond(seedURL, okResponse(seedURL, ""))

		res, err := h.worker.Process(context.Background(), seedTarget())
		require.NoError(t, err)
		require.Equal(t, OutcomeEmpty, res.Outcome)
		require.NoError(t, res.Err)
		require.False(t, res.Recorded)
		require.Empty(t, h.store.failures())
		require.Empty(t, h.store.persisted())
		require.Equal(t, []progress.Stage{progress.StageFetchDone}, h.sink.stages())
	}
}

// A page whose text is blank but which still carries links keeps the crawl
// going through them.
func TestWorker_Process_EmptyTextStillDiscoversLinks(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{changeDetection: true})
	h.fetcher.respond(seedURL, okResponse(seedURL, "<nav></nav>"))
	h.extractor.blank[seedURL] = true
	h.extractor.links[seedURL] = []crawler.Link{{URL: "https://example.com/next"}}

	res, err := h.worker.Process(context.Background(), seedTarget())
	require.NoError(t, err)
	require.Equal(t, OutcomeEmpty, res.Outcome)
	require.Equal(t, 1, res.Queued)
	require.Empty(t, h.store.failures())
	require.True(t, h.frontier.Seen("https://example.com/next"))
}

func TestWorker_Process_StoreUnavailableIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{changeDetection: true})
	h.store.persistErr = crawler.ErrStoreUnavailable
	h.fetcher.respond(seedURL, okResponse(seedURL, "content"))

	_, err := h.worker.Process(context.Background(), seedTarget())
	var fatal *crawler.FatalRunError
	require.ErrorAs(t, err, &fatal)
	require.ErrorIs(t, err, crawler.ErrStoreUnavailable)
}

func TestWorker_Process_OtherStoreErrorsAreLogged(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{changeDetection: true})
	h.store.persistErr = errors.New("disk full")
	h.fetcher.respond(seedURL, okResponse(seedURL, "content"))

	res, err := h.worker.Process(context.Background(), seedTarget())
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, res.Outcome)
}

func TestWorker_Process_ChangeDetectionDisabledPersistsAdded(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{})
	h.fetcher.respond(seedURL, okResponse(seedURL, "plain content"))

	res, err := h.worker.Process(context.Background(), seedTarget())
	require.NoError(t, err)
	require.Equal(t, crawler.ChangeAdded, res.Version.ChangeType)
	require.Len(t, h.versions.History(seedURL), 0)
	_, known := h.versions.LatestHash(seedURL)
	require.False(t, known)

	persisted := h.store.persisted()
	require.Len(t, persisted, 1)
	require.Len(t, persisted[0].ContentHash, 64)
	require.Equal(t, []progress.Stage{progress.StageFetchDone}, h.sink.stages())
}

// A fresh process primes the classifier with the text stored by an earlier
// run, so a one-word edit is scored as a small change.
func TestWorker_Process_ModifiedMeasuredAgainstStoredBaseline(t *testing.T) {
	t.Parallel()

	words := make([]string, 200)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	before := strings.Join(words, " ")
	words[50] = "edited"
	after := strings.Join(words, " ")

	h := newHarness(t, harnessOptions{changeDetection: true})
	hash, err := fingerprint.SHA256Hasher{}.Hash([]byte(before))
	require.NoError(t, err)
	h.seedPrior(seedURL, hash)
	h.history.baselines[seedURL+"|"+hash] = []byte(before)
	h.fetcher.respond(seedURL, okResponse(seedURL, after))

	res, err := h.worker.Process(context.Background(), seedTarget())
	require.NoError(t, err)
	require.Equal(t, crawler.ChangeModified, res.Version.ChangeType)
	require.Less(t, res.Version.Significance, 10.0)
	require.False(t, res.Recorded)
	require.Equal(t, 1, h.history.loads())
}

func TestWorker_Process_MissingBaselineScoresFullRewrite(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{changeDetection: true})
	h.seedPrior(seedURL, "0000")
	h.fetcher.respond(seedURL, okResponse(seedURL, "text with no stored baseline"))

	res, err := h.worker.Process(context.Background(), seedTarget())
	require.NoError(t, err)
	require.Equal(t, crawler.ChangeModified, res.Version.ChangeType)
	require.InDelta(t, 100, res.Version.Significance, 0.001)
	require.Equal(t, 1, h.history.loads())

	persisted := h.store.persisted()
	require.Len(t, persisted, 1)
	require.Equal(t, "text with no stored baseline", string(h.store.bodies[0]), "page text is stored as the body")
}

func TestWorker_Process_RediscoveredLinkGainsPriority(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{changeDetection: true})
	require.True(t, h.frontier.Offer(crawler.CrawlTarget{URL: "https://example.com/a", Depth: 1, Priority: 40}))
	h.fetcher.respond(seedURL, okResponse(seedURL, "hub page linking to a"))
	h.extractor.links[seedURL] = []crawler.Link{{URL: "https://example.com/a", Relevance: 0.5}}

	res, err := h.worker.Process(context.Background(), seedTarget())
	require.NoError(t, err)
	require.Zero(t, res.Queued)

	queued, ok, err := h.frontier.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 40+frontier.Prioritizer{Adaptive: true}.Rediscovery(0.5, 100), queued.Priority, 0.001)
}

// Links the frontier refuses still count as reached for this run.
func TestWorker_Reached(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{changeDetection: true})
	h.fetcher.respond(seedURL, okResponse(seedURL, "deep page"))
	h.extractor.links[seedURL] = []crawler.Link{
		{URL: "https://example.com/too-deep"},
		{URL: "https://other.org/out-of-scope"},
	}
	target := seedTarget()
	target.Depth = 3

	res, err := h.worker.Process(context.Background(), target)
	require.NoError(t, err)
	require.Zero(t, res.Queued)
	require.True(t, h.worker.Reached(seedURL))
	require.True(t, h.worker.Reached("https://example.com/too-deep"))
	require.False(t, h.frontier.Seen("https://example.com/too-deep"))
	require.False(t, h.worker.Reached("https://other.org/out-of-scope"))
}

func TestWorker_Process_EvictsDroppedVersion(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{changeDetection: true, maxVersions: 1})
	h.fetcher.respond(seedURL, okResponse(seedURL, "alpha beta gamma delta epsilon"))
	h.fetcher.respond(seedURL, okResponse(seedURL, "zeta eta theta iota kappa lambda"))

	_, err := h.worker.Process(context.Background(), seedTarget())
	require.NoError(t, err)
	res, err := h.worker.Process(context.Background(), seedTarget())
	require.NoError(t, err)
	require.Equal(t, crawler.ChangeModified, res.Version.ChangeType)
	require.True(t, res.Recorded)

	evicted := h.store.evicted()
	require.Len(t, evicted, 1)
	require.Equal(t, crawler.ChangeAdded, evicted[0].ChangeType)
	require.Len(t, h.versions.History(seedURL), 1)
}

func TestWorker_Remove(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{changeDetection: true})
	h.seedPrior("https://example.com/gone", "abc")

	version, err := h.worker.Remove(context.Background(), "https://example.com/gone")
	require.NoError(t, err)
	require.Equal(t, crawler.ChangeRemoved, version.ChangeType)
	_, known := h.versions.LatestHash("https://example.com/gone")
	require.False(t, known)
	require.Len(t, h.store.persisted(), 1)
	require.Nil(t, h.store.bodies[0])
	require.Equal(t, []progress.Stage{progress.StageContentChanged}, h.sink.stages())
}

func TestWorker_Process_CancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{changeDetection: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.worker.Process(ctx, seedTarget())
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, h.fetcher.calls(seedURL))
	require.Empty(t, h.store.failures())
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		resp crawler.FetchResponse
		err  error
		want int
	}{
		{name: "success", resp: crawler.FetchResponse{StatusCode: 200}, want: 200},
		{name: "fetch error status", err: crawler.NewTransientFetchError("u", 503, nil), want: 503},
		{name: "network error", err: errors.New("reset"), want: 0},
		{name: "error with response", resp: crawler.FetchResponse{StatusCode: 429}, err: errors.New("x"), want: 429},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, statusOf(tc.resp, tc.err))
		})
	}
}

type harnessOptions struct {
	changeDetection bool
	respectRobots   bool
	maxRetries      int
	maxVersions     int
}

type harness struct {
	worker    *Worker
	fetcher   *fakeFetcher
	extractor *fakeExtractor
	robots    *fakeRobots
	store     *fakeStore
	sink      *fakeSink
	history   *fakeHistory
	governor  *ratelimit.Governor
	versions  *versions.Policy
	frontier  *frontier.Scheduler
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	clk := manual.New(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	maxVersions := opts.maxVersions
	if maxVersions == 0 {
		maxVersions = 5
	}
	h := &harness{
		fetcher:   newFakeFetcher(),
		extractor: &fakeExtractor{links: make(map[string][]crawler.Link), blank: make(map[string]bool)},
		robots:    &fakeRobots{deny: make(map[string]bool)},
		store:     &fakeStore{},
		sink:      &fakeSink{},
		history:   &fakeHistory{baselines: make(map[string][]byte)},
		governor: ratelimit.New(ratelimit.Config{
			Adaptive: true,
			MinDelay: 10 * time.Millisecond,
			MaxDelay: time.Second,
			Clock:    clk,
		}),
		versions: versions.New(versions.Config{TrackContentVersions: true, MaxVersionsToKeep: maxVersions}),
		frontier: frontier.New(frontier.Config{MaxDepth: 3, QueueSize: 100}),
	}
	cfg := crawler.RunConfig{BaseURL: seedURL}
	h.worker = New(Config{
		RunID:           uuid.Must(uuid.NewV7()),
		UserAgent:       "test-agent",
		RequestTimeout:  time.Second,
		RespectRobots:   opts.respectRobots,
		ChangeDetection: opts.changeDetection,
		NotifyThreshold: 50,
		Prioritizer:     frontier.Prioritizer{Adaptive: true},
	}, Deps{
		Fetcher:    h.fetcher,
		Robots:     h.robots,
		Extractor:  h.extractor,
		Store:      h.store,
		History:    h.history,
		Sink:       h.sink,
		Pacer:      h.governor,
		Classifier: fingerprint.New(fingerprint.Config{Clock: clk}),
		Versions:   h.versions,
		Frontier:   h.frontier,
		Scope:      crawler.NewScope(cfg),
		Retry:      crawler.NewExponentialRetryPolicy(opts.maxRetries),
		Clock:      clk,
	}, zap.NewNop())
	return h
}

// seedPrior loads one version of url as if an earlier run recorded it.
func (h *harness) seedPrior(url, hash string) {
	h.versions.SeedHistory(url, []crawler.ContentVersion{{
		URL:         url,
		ContentHash: hash,
		CapturedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ChangeType:  crawler.ChangeAdded,
	}})
}

func seedTarget() crawler.CrawlTarget {
	return crawler.CrawlTarget{URL: seedURL, Priority: frontier.SeedPriority}
}

func okResponse(url, body string) crawler.FetchResponse {
	return crawler.FetchResponse{
		URL:        url,
		StatusCode: http.StatusOK,
		Body:       []byte(body),
		Latency:    20 * time.Millisecond,
	}
}

type fetchStep struct {
	resp crawler.FetchResponse
	err  error
}

type fakeFetcher struct {
	mu      sync.Mutex
	steps   map[string][]fetchStep
	counter map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{steps: make(map[string][]fetchStep), counter: make(map[string]int)}
}

func (f *fakeFetcher) respond(url string, resp crawler.FetchResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps[url] = append(f.steps[url], fetchStep{resp: resp})
}

func (f *fakeFetcher) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps[url] = append(f.steps[url], fetchStep{err: err})
}

func (f *fakeFetcher) calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[url]
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter[req.URL]++
	steps := f.steps[req.URL]
	if len(steps) == 0 {
		return crawler.FetchResponse{}, crawler.NewPermanentFetchError(req.URL, http.StatusNotFound, nil)
	}
	step := steps[0]
	if len(steps) > 1 {
		f.steps[req.URL] = steps[1:]
	}
	return step.resp, step.err
}

type fakeExtractor struct {
	links map[string][]crawler.Link
	blank map[string]bool
}

func (e *fakeExtractor) Extract(resp crawler.FetchResponse) (crawler.Page, error) {
	if len(resp.Body) == 0 {
		return crawler.Page{}, crawler.ErrEmptyContent
	}
	if e.blank[resp.URL] {
		return crawler.Page{Links: e.links[resp.URL]}, nil
	}
	return crawler.Page{Text: resp.Body, Links: e.links[resp.URL]}, nil
}

type fakeRobots struct {
	deny map[string]bool
}

func (r *fakeRobots) IsAllowed(_ context.Context, rawURL string, _ string) bool {
	return !r.deny[rawURL]
}

type fakeStore struct {
	mu         sync.Mutex
	versions   []crawler.ContentVersion
	bodies     [][]byte
	fails      []crawler.TargetFailure
	evicts     []crawler.ContentVersion
	persistErr error
}

func (s *fakeStore) Persist(_ context.Context, _ string, v crawler.ContentVersion, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistErr != nil {
		return s.persistErr
	}
	s.versions = append(s.versions, v)
	s.bodies = append(s.bodies, body)
	return nil
}

func (s *fakeStore) PersistFailure(_ context.Context, _ string, f crawler.TargetFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails = append(s.fails, f)
	return nil
}

func (s *fakeStore) Evict(_ context.Context, v crawler.ContentVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evicts = append(s.evicts, v)
	return nil
}

func (s *fakeStore) persisted() []crawler.ContentVersion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawler.ContentVersion(nil), s.versions...)
}

func (s *fakeStore) failures() []crawler.TargetFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawler.TargetFailure(nil), s.fails...)
}

func (s *fakeStore) evicted() []crawler.ContentVersion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawler.ContentVersion(nil), s.evicts...)
}

type fakeSink struct {
	mu     sync.Mutex
	events []progress.Event
}

func (s *fakeSink) Emit(evt progress.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *fakeSink) stages() []progress.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]progress.Stage, 0, len(s.events))
	for _, evt := range s.events {
		out = append(out, evt.Stage)
	}
	return out
}

type fakeHistory struct {
	mu        sync.Mutex
	baselines map[string][]byte
	calls     int
}

func (h *fakeHistory) RecentVersions(context.Context, string, int) (map[string][]crawler.ContentVersion, error) {
	return nil, nil
}

func (h *fakeHistory) Baseline(_ context.Context, url, hash string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	body, ok := h.baselines[url+"|"+hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return body, nil
}

func (h *fakeHistory) loads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}
