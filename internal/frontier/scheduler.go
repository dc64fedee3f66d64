// Package frontier holds the run's bounded priority queue of crawl targets.
package frontier

import (
	"container/heap"
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
	"github.com/uridolan77/WebScraping-sub002/internal/metrics"
)

// Reasons a target is refused or dropped.
const (
	DropDepth     = "depth"
	DropDuplicate = "duplicate"
	DropFull      = "full"
	DropEvicted   = "evicted"
	DropClosed    = "closed"
)

// Config controls the Scheduler.
type Config struct {
	MaxDepth                  int
	QueueSize                 int
	AdjustDepthBasedOnQuality bool
	QualityThreshold          float64
	Logger                    *zap.Logger
}

// Scheduler is a bounded max-priority frontier with visited-set dedup and
// in-flight tracking. It is safe for concurrent use.
type Scheduler struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	poll     pollHeap
	evict    evictHeap
	queued   map[string]*item
	seen     map[string]struct{}
	inFlight map[string]struct{}
	seq      uint64
	closed   bool
	notify   chan struct{}
}

// New builds a Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:      cfg,
		logger:   logger.Named("frontier"),
		queued:   make(map[string]*item),
		seen:     make(map[string]struct{}),
		inFlight: make(map[string]struct{}),
		notify:   make(chan struct{}),
	}
}

// Offer enqueues t unless it breaks the depth rule, was already seen in this
// run, or the queue is full of higher-priority work.
func (s *Scheduler) Offer(t crawler.CrawlTarget) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reason := s.refuseLocked(t); reason != "" {
		metrics.ObserveFrontierDrop(reason)
		s.logger.Debug("target refused", zap.String("url", t.URL), zap.String("reason", reason))
		return false
	}

	it := &item{target: t, seq: s.seq}
	s.seq++
	heap.Push(&s.poll, it)
	heap.Push(&s.evict, it)
	s.queued[t.URL] = it
	s.seen[t.URL] = struct{}{}

	if len(s.poll) > s.cfg.QueueSize {
		victim := heap.Pop(&s.evict).(*item)
		heap.Remove(&s.poll, victim.maxIdx)
		delete(s.queued, victim.target.URL)
		// Evicted targets were never crawled, so a later offer may bring them back.
		delete(s.seen, victim.target.URL)
		metrics.ObserveFrontierDrop(DropEvicted)
		s.logger.Debug("target evicted",
			zap.String("url", victim.target.URL),
			zap.Float64("priority", victim.target.Priority),
		)
	}
	s.signalLocked()
	return true
}

func (s *Scheduler) refuseLocked(t crawler.CrawlTarget) string {
	switch {
	case s.closed:
		return DropClosed
	case !s.depthAllowed(t):
		return DropDepth
	}
	if _, dup := s.seen[t.URL]; dup {
		return DropDuplicate
	}
	if len(s.poll) >= s.cfg.QueueSize && t.Priority <= s.evict[0].target.Priority {
		return DropFull
	}
	return ""
}

// depthAllowed accepts MaxDepth+1 only for high-quality sources when the
// quality extension is enabled.
func (s *Scheduler) depthAllowed(t crawler.CrawlTarget) bool {
	switch {
	case t.Depth < 0:
		return false
	case t.Depth <= s.cfg.MaxDepth:
		return true
	case t.Depth == s.cfg.MaxDepth+1 && s.cfg.AdjustDepthBasedOnQuality:
		quality := t.Relevance * 100
		if t.SourceSignificance > quality {
			quality = t.SourceSignificance
		}
		return quality >= s.cfg.QualityThreshold
	default:
		return false
	}
}

// Poll removes and returns the highest-priority target, marking it in
// flight. It blocks while the queue is empty but other targets are still in
// flight, and returns ok=false once the frontier is quiescent or closed.
func (s *Scheduler) Poll(ctx context.Context) (crawler.CrawlTarget, bool, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return crawler.CrawlTarget{}, false, nil
		}
		if len(s.poll) > 0 {
			it := heap.Pop(&s.poll).(*item)
			heap.Remove(&s.evict, it.minIdx)
			delete(s.queued, it.target.URL)
			s.inFlight[it.target.URL] = struct{}{}
			s.mu.Unlock()
			return it.target, true, nil
		}
		if len(s.inFlight) == 0 {
			s.mu.Unlock()
			return crawler.CrawlTarget{}, false, nil
		}
		wake := s.notify
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return crawler.CrawlTarget{}, false, fmt.Errorf("frontier poll: %w", ctx.Err())
		case <-wake:
		}
	}
}

// Done marks a polled target finished. Its URL stays in the visited set.
func (s *Scheduler) Done(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[url]; !ok {
		return
	}
	delete(s.inFlight, url)
	s.signalLocked()
}

// UpdatePriority adjusts a queued target's priority by delta. It reports
// false when the URL is not currently queued.
func (s *Scheduler) UpdatePriority(url string, delta float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.queued[url]
	if !ok {
		return false
	}
	it.target.Priority += delta
	heap.Fix(&s.poll, it.maxIdx)
	heap.Fix(&s.evict, it.minIdx)
	return true
}

// Close wakes all pollers and refuses further offers.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.signalLocked()
}

// Len returns the number of queued targets.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.poll)
}

// Seen reports whether url was queued, is in flight, or completed this run.
func (s *Scheduler) Seen(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[url]
	return ok
}

func (s *Scheduler) signalLocked() {
	close(s.notify)
	s.notify = make(chan struct{})
}
