package frontier

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
)

func target(url string, depth int, priority float64) crawler.CrawlTarget {
	return crawler.CrawlTarget{URL: url, Depth: depth, Priority: priority, SourceURL: "https://example.com/"}
}

func drain(t *testing.T, s *Scheduler) []crawler.CrawlTarget {
	t.Helper()
	var out []crawler.CrawlTarget
	for s.Len() > 0 {
		got, ok, err := s.Poll(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		out = append(out, got)
	}
	return out
}

// Seed at depth 0 with maxDepth=1: depth-1 links are accepted, depth-2 links
// are refused, and the queue holds only depth-1 targets afterwards.
func TestSeedChildrenRespectMaxDepth(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxDepth: 1, QueueSize: 10})
	seed := crawler.CrawlTarget{URL: "https://example.com/", Depth: 0, Priority: SeedPriority}
	require.True(t, s.Offer(seed))

	got, ok, err := s.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, seed, got)

	prio := Prioritizer{}
	require.True(t, s.Offer(target("https://example.com/a", 1, prio.Child(SeedPriority, 1, 0, 100))))
	require.True(t, s.Offer(target("https://example.com/b", 1, prio.Child(SeedPriority, 1, 0, 100))))
	require.False(t, s.Offer(target("https://example.com/a/deep", 2, prio.Child(90, 2, 0, 100))))
	s.Done(seed.URL)

	queued := drain(t, s)
	require.Len(t, queued, 2)
	for _, q := range queued {
		require.Equal(t, 1, q.Depth)
	}
}

// With capacity 2, offering priorities 10, 20, 30 evicts 10 and polls 30 then 20.
func TestBoundedQueueEvictsLowestPriority(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxDepth: 5, QueueSize: 2})
	require.True(t, s.Offer(target("https://example.com/p10", 1, 10)))
	require.True(t, s.Offer(target("https://example.com/p20", 1, 20)))
	require.True(t, s.Offer(target("https://example.com/p30", 1, 30)))
	require.Equal(t, 2, s.Len())
	require.False(t, s.Seen("https://example.com/p10"), "evicted target is forgotten")

	polled := drain(t, s)
	require.Equal(t, []float64{30, 20}, []float64{polled[0].Priority, polled[1].Priority})
}

func TestFullQueueRejectsNonImprovingTargets(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxDepth: 5, QueueSize: 2})
	require.True(t, s.Offer(target("https://example.com/a", 1, 50)))
	require.True(t, s.Offer(target("https://example.com/b", 1, 40)))
	require.False(t, s.Offer(target("https://example.com/c", 1, 40)), "equal to minimum is rejected")
	require.False(t, s.Offer(target("https://example.com/d", 1, 5)))
	require.False(t, s.Seen("https://example.com/c"))
	require.Equal(t, 2, s.Len())
}

func TestEvictionPicksNewestAmongLowest(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxDepth: 5, QueueSize: 2})
	require.True(t, s.Offer(target("https://example.com/old", 1, 10)))
	require.True(t, s.Offer(target("https://example.com/new", 1, 10)))
	require.True(t, s.Offer(target("https://example.com/high", 1, 99)))
	require.True(t, s.Seen("https://example.com/old"))
	require.False(t, s.Seen("https://example.com/new"))
}

func TestEvictedTargetCanBeOfferedAgain(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxDepth: 5, QueueSize: 1})
	require.True(t, s.Offer(target("https://example.com/low", 1, 1)))
	require.True(t, s.Offer(target("https://example.com/high", 1, 2)))
	_, _, err := s.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, s.Offer(target("https://example.com/low", 1, 1)))
}

// Repeated offers of one URL yield exactly one poll.
func TestOfferDeduplicates(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxDepth: 3, QueueSize: 100})
	accepted := 0
	for i := 0; i < 10; i++ {
		if s.Offer(target("https://example.com/same", 1, float64(i))) {
			accepted++
		}
	}
	require.Equal(t, 1, accepted)

	got, ok, err := s.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://example.com/same", got.URL)
	require.False(t, s.Offer(target("https://example.com/same", 1, 100)), "in-flight URL is still seen")
	s.Done(got.URL)
	require.False(t, s.Offer(target("https://example.com/same", 1, 100)), "completed URL is still seen")

	_, ok, err = s.Poll(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEqualPrioritiesPollInDiscoveryOrder(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxDepth: 3, QueueSize: 100})
	for i := 0; i < 5; i++ {
		require.True(t, s.Offer(target(fmt.Sprintf("https://example.com/%d", i), 1, 50)))
	}
	polled := drain(t, s)
	for i, got := range polled {
		require.Equal(t, fmt.Sprintf("https://example.com/%d", i), got.URL)
	}
}

func TestDepthBoundWithQualityExtension(t *testing.T) {
	t.Parallel()

	plain := New(Config{MaxDepth: 2, QueueSize: 10, QualityThreshold: 60})
	deep := target("https://example.com/deep", 3, 10)
	deep.SourceSignificance = 100
	require.False(t, plain.Offer(deep), "extension disabled")

	s := New(Config{MaxDepth: 2, QueueSize: 10, AdjustDepthBasedOnQuality: true, QualityThreshold: 60})
	require.True(t, s.Offer(deep))

	relevant := target("https://example.com/relevant", 3, 10)
	relevant.Relevance = 0.7
	require.True(t, s.Offer(relevant))

	weak := target("https://example.com/weak", 3, 10)
	weak.Relevance = 0.2
	weak.SourceSignificance = 30
	require.False(t, s.Offer(weak))

	tooDeep := target("https://example.com/too-deep", 4, 10)
	tooDeep.SourceSignificance = 100
	require.False(t, s.Offer(tooDeep), "only one extra level is allowed")

	require.False(t, s.Offer(target("https://example.com/negative", -1, 10)))

	for _, got := range drain(t, s) {
		require.LessOrEqual(t, got.Depth, 3)
	}
}

func TestPollBlocksUntilOfferOrQuiescence(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxDepth: 3, QueueSize: 10})
	require.True(t, s.Offer(target("https://example.com/", 0, 100)))
	first, ok, err := s.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	type result struct {
		target crawler.CrawlTarget
		ok     bool
	}
	results := make(chan result, 2)
	go func() {
		got, ok, _ := s.Poll(context.Background())
		results <- result{got, ok}
	}()

	select {
	case <-results:
		t.Fatal("poll returned while a target was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, s.Offer(target("https://example.com/child", 1, 90)))
	got := <-results
	require.True(t, got.ok)
	require.Equal(t, "https://example.com/child", got.target.URL)

	go func() {
		got, ok, _ := s.Poll(context.Background())
		results <- result{got, ok}
	}()
	s.Done(first.URL)
	s.Done(got.target.URL)
	select {
	case res := <-results:
		require.False(t, res.ok, "quiescent frontier ends polling")
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not observe quiescence")
	}
}

func TestPollCancellationAndClose(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxDepth: 3, QueueSize: 10})
	require.True(t, s.Offer(target("https://example.com/", 0, 100)))
	_, _, err := s.Poll(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok, err := s.Poll(ctx)
	require.False(t, ok)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, ok, err := s.Poll(context.Background())
		assert.NoError(t, err)
		assert.False(t, ok)
	}()
	s.Close()
	wg.Wait()
	require.False(t, s.Offer(target("https://example.com/late", 1, 100)))
}

func TestUpdatePriority(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxDepth: 3, QueueSize: 10})
	require.True(t, s.Offer(target("https://example.com/a", 1, 10)))
	require.True(t, s.Offer(target("https://example.com/b", 1, 20)))
	require.True(t, s.UpdatePriority("https://example.com/a", 15))
	require.False(t, s.UpdatePriority("https://example.com/missing", 1))

	polled := drain(t, s)
	require.Equal(t, "https://example.com/a", polled[0].URL)
	require.InDelta(t, 25.0, polled[0].Priority, 0.001)
}

func TestConcurrentOffersNeverExceedCapacity(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxDepth: 3, QueueSize: 16})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Offer(target(fmt.Sprintf("https://example.com/%d/%d", w, i), 1, float64((w*50+i)%97)))
			}
		}(w)
	}
	wg.Wait()
	require.LessOrEqual(t, s.Len(), 16)
}
