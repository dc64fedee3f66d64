// Package ratelimit implements the per-domain adaptive rate governor. Each
// domain carries its own delay, which grows on throttling or server errors
// and shrinks again while responses stay fast.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uridolan77/WebScraping-sub002/internal/clock/system"
	"github.com/uridolan77/WebScraping-sub002/internal/metrics"
)

const (
	backoffFactor        = 1.5
	speedupFactor        = 0.9
	slowdownFactor       = 1.1
	fastLatencyRatio     = 0.8
	slowLatencyRatio     = 2.0
	defaultDegradeAfter  = 5
	defaultLatencyWindow = 20
	minBackoffStep       = 100 * time.Millisecond
	requestWindow        = time.Minute
)

// Clock supplies time and a cancellable sleep.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Config controls the Governor.
type Config struct {
	Adaptive             bool
	FixedDelay           time.Duration
	MinDelay             time.Duration
	MaxDelay             time.Duration
	MaxRequestsPerMinute int
	// DegradeThreshold is the consecutive error count that pins a domain to MaxDelay.
	DegradeThreshold int
	// LatencyWindow is the number of recent latencies averaged per domain.
	LatencyWindow int
	Clock         Clock
	Logger        *zap.Logger
}

// DomainRateState is a point-in-time snapshot of one domain's pacing state.
type DomainRateState struct {
	Domain             string
	CurrentDelay       time.Duration
	ConsecutiveErrors  int
	RecentLatencies    []time.Duration
	RequestsThisMinute int
	WindowStart        time.Time
	Degraded           bool
	NextSlot           time.Time
}

type domainState struct {
	DomainRateState
	lastSlot time.Time
}

// Governor paces requests per domain. It is safe for concurrent use; callers
// for the same domain serialize through slot reservation in Wait.
type Governor struct {
	cfg    Config
	clock  Clock
	logger *zap.Logger
	warn   *rate.Sometimes

	mu      sync.Mutex
	domains map[string]*domainState
}

// New builds a Governor. In adaptive mode MinDelay must be below MaxDelay;
// the run configuration validates that before a Governor is built.
func New(cfg Config) *Governor {
	if cfg.DegradeThreshold <= 0 {
		cfg.DegradeThreshold = defaultDegradeAfter
	}
	if cfg.LatencyWindow <= 0 {
		cfg.LatencyWindow = defaultLatencyWindow
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	clk := cfg.Clock
	if clk == nil {
		clk = system.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{
		cfg:     cfg,
		clock:   clk,
		logger:  logger.Named("ratelimit"),
		warn:    &rate.Sometimes{Interval: 10 * time.Second},
		domains: make(map[string]*domainState),
	}
}

// DelayBeforeNext returns the policy delay for domain without blocking.
func (g *Governor) DelayBeforeNext(domain string) time.Duration {
	if !g.cfg.Adaptive {
		return g.cfg.FixedDelay
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.domains[domain]
	if !ok {
		return g.initialDelay()
	}
	return g.delayLocked(st)
}

// Wait reserves the domain's next request slot and sleeps until it arrives.
// It returns how long the caller waited.
func (g *Governor) Wait(ctx context.Context, domain string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("rate governor wait: %w", err)
	}
	now := g.clock.Now()

	g.mu.Lock()
	st := g.stateLocked(domain)
	delay := g.delayLocked(st)
	prev := reservation{
		lastSlot:    st.lastSlot,
		nextSlot:    st.NextSlot,
		windowStart: st.WindowStart,
		count:       st.RequestsThisMinute,
	}
	slot := now
	if !st.lastSlot.IsZero() {
		if candidate := st.lastSlot.Add(delay); candidate.After(slot) {
			slot = candidate
		}
	}
	if limit := g.cfg.MaxRequestsPerMinute; limit > 0 {
		if st.WindowStart.IsZero() || !slot.Before(st.WindowStart.Add(requestWindow)) {
			st.WindowStart = slot
			st.RequestsThisMinute = 0
		}
		if st.RequestsThisMinute >= limit {
			slot = st.WindowStart.Add(requestWindow)
			st.WindowStart = slot
			st.RequestsThisMinute = 0
		}
		st.RequestsThisMinute++
	}
	st.lastSlot = slot
	st.NextSlot = slot.Add(delay)
	window := st.WindowStart
	g.mu.Unlock()

	wait := slot.Sub(now)
	if wait <= 0 {
		return 0, nil
	}
	if err := g.clock.Sleep(ctx, wait); err != nil {
		g.cancelReservation(domain, slot, window, prev)
		return 0, fmt.Errorf("rate governor wait: %w", err)
	}
	metrics.ObserveRateLimitDelay(domain, wait)
	return wait, nil
}

// reservation is the slot state a Wait replaced.
type reservation struct {
	lastSlot    time.Time
	nextSlot    time.Time
	windowStart time.Time
	count       int
}

// cancelReservation gives back a slot whose caller stopped waiting. When a
// later caller already reserved behind it only the request count is returned.
func (g *Governor) cancelReservation(domain string, slot, window time.Time, prev reservation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.domains[domain]
	if !ok {
		return
	}
	if st.lastSlot.Equal(slot) {
		st.lastSlot = prev.lastSlot
		st.NextSlot = prev.nextSlot
		if g.cfg.MaxRequestsPerMinute > 0 {
			st.WindowStart = prev.windowStart
			st.RequestsThisMinute = prev.count
		}
		return
	}
	if g.cfg.MaxRequestsPerMinute > 0 && st.WindowStart.Equal(window) && st.RequestsThisMinute > 0 {
		st.RequestsThisMinute--
	}
}

// Observe feeds one response back into the domain's delay. statusCode 0
// means the request failed before any response arrived.
func (g *Governor) Observe(domain string, latency time.Duration, statusCode int) {
	if !g.cfg.Adaptive {
		return
	}
	g.mu.Lock()
	st := g.stateLocked(domain)
	switch {
	case isOverload(statusCode):
		g.backoffLocked(st)
	case statusCode < http.StatusBadRequest:
		g.successLocked(st, latency)
	default:
		// Client errors say nothing about server load.
	}
	current := st.CurrentDelay
	degraded := st.Degraded
	errs := st.ConsecutiveErrors
	g.mu.Unlock()

	metrics.SetDomainDelay(domain, current)
	if degraded {
		g.warn.Do(func() {
			g.logger.Warn("domain degraded; pinned to max delay",
				zap.String("domain", domain),
				zap.Int("consecutive_errors", errs),
				zap.Duration("delay", current),
			)
		})
	}
}

// State returns a snapshot of the domain's state.
func (g *Governor) State(domain string) (DomainRateState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.domains[domain]
	if !ok {
		return DomainRateState{}, false
	}
	snapshot := st.DomainRateState
	snapshot.RecentLatencies = append([]time.Duration(nil), st.RecentLatencies...)
	return snapshot, true
}

func (g *Governor) stateLocked(domain string) *domainState {
	st, ok := g.domains[domain]
	if !ok {
		st = &domainState{DomainRateState: DomainRateState{
			Domain:       domain,
			CurrentDelay: g.initialDelay(),
		}}
		g.domains[domain] = st
	}
	return st
}

func (g *Governor) initialDelay() time.Duration {
	if g.cfg.Adaptive {
		return g.cfg.MinDelay
	}
	return g.cfg.FixedDelay
}

func (g *Governor) delayLocked(st *domainState) time.Duration {
	switch {
	case !g.cfg.Adaptive:
		return g.cfg.FixedDelay
	case st.Degraded:
		return g.cfg.MaxDelay
	default:
		return st.CurrentDelay
	}
}

func (g *Governor) backoffLocked(st *domainState) {
	next := time.Duration(float64(st.CurrentDelay) * backoffFactor)
	if next-st.CurrentDelay < minBackoffStep {
		next = st.CurrentDelay + minBackoffStep
	}
	st.CurrentDelay = g.clamp(next)
	st.ConsecutiveErrors++
	if st.ConsecutiveErrors >= g.cfg.DegradeThreshold {
		st.Degraded = true
		st.CurrentDelay = g.cfg.MaxDelay
	}
}

func (g *Governor) successLocked(st *domainState, latency time.Duration) {
	avg, samples := average(st.RecentLatencies)
	st.RecentLatencies = append(st.RecentLatencies, latency)
	if len(st.RecentLatencies) > g.cfg.LatencyWindow {
		st.RecentLatencies = st.RecentLatencies[len(st.RecentLatencies)-g.cfg.LatencyWindow:]
	}
	st.ConsecutiveErrors = 0
	st.Degraded = false

	switch {
	case samples == 0 || float64(latency) < fastLatencyRatio*float64(avg):
		st.CurrentDelay = g.clamp(time.Duration(float64(st.CurrentDelay) * speedupFactor))
	case float64(latency) > slowLatencyRatio*float64(avg):
		st.CurrentDelay = g.clamp(time.Duration(float64(st.CurrentDelay) * slowdownFactor))
	}
}

func (g *Governor) clamp(d time.Duration) time.Duration {
	if d < g.cfg.MinDelay {
		return g.cfg.MinDelay
	}
	if d > g.cfg.MaxDelay {
		return g.cfg.MaxDelay
	}
	return d
}

func isOverload(statusCode int) bool {
	return statusCode == 0 ||
		statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode >= http.StatusInternalServerError
}

func average(values []time.Duration) (time.Duration, int) {
	if len(values) == 0 {
		return 0, 0
	}
	var total time.Duration
	for _, v := range values {
		total += v
	}
	return total / time.Duration(len(values)), len(values)
}
