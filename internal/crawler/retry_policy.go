package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"time"
)

// ExponentialRetryPolicy decides whether a failed fetch is retried and how
// long to back off before the next attempt. The rate governor still gates
// every attempt; this backoff only adds jitter on top of it.
type ExponentialRetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

const (
	defaultRetryBaseDelay = 250 * time.Millisecond
	defaultRetryMaxDelay  = 5 * time.Second
)

// NewExponentialRetryPolicy builds a policy allowing maxRetries retries after
// the first attempt.
func NewExponentialRetryPolicy(maxRetries int) *ExponentialRetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ExponentialRetryPolicy{
		maxRetries: maxRetries,
		baseDelay:  defaultRetryBaseDelay,
		maxDelay:   defaultRetryMaxDelay,
	}
}

// WithDelays overrides the base and maximum backoff.
func (p *ExponentialRetryPolicy) WithDelays(base, maxDelay time.Duration) *ExponentialRetryPolicy {
	cp := *p
	cp.baseDelay = base
	cp.maxDelay = maxDelay
	return &cp
}

// MaxRetries returns the retry budget per target.
func (p *ExponentialRetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// ShouldRetry reports whether err deserves another attempt. retries is the
// number of retries already performed for the target.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, retries int) bool {
	if err == nil {
		return false
	}
	if retries >= p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrPermanentFetch) {
		return false
	}
	if errors.Is(err, ErrTransientFetch) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Backoff returns the wait duration before retry number attempt (0-based).
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	if p.baseDelay <= 0 {
		return 0
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *ExponentialRetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
