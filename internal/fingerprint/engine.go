// Package fingerprint hashes page content and classifies how it changed
// relative to the previously recorded version of the same URL.
package fingerprint

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
)

const (
	defaultSignificanceThreshold = 10
	defaultMaxSignatures         = 10000
	shingleSize                  = 3
)

// Config controls the Engine.
type Config struct {
	// SignificanceThreshold marks a Modified version as significant (0-100).
	SignificanceThreshold float64
	// MaxSignatures bounds the per-URL shingle cache; the oldest entry is
	// dropped first.
	MaxSignatures int
	Hasher        crawler.Hasher
	Clock         crawler.Clock
}

type signature struct {
	shingles map[uint64]struct{}
	size     int64
}

// Engine classifies fetched content. It is safe for concurrent use.
type Engine struct {
	threshold     float64
	maxSignatures int
	hasher        crawler.Hasher
	now           func() time.Time

	mu         sync.Mutex
	signatures map[string]signature
	order      []string
}

// New builds an Engine, filling defaults for zero-valued fields.
func New(cfg Config) *Engine {
	if cfg.SignificanceThreshold <= 0 {
		cfg.SignificanceThreshold = defaultSignificanceThreshold
	}
	if cfg.MaxSignatures <= 0 {
		cfg.MaxSignatures = defaultMaxSignatures
	}
	if cfg.Hasher == nil {
		cfg.Hasher = SHA256Hasher{}
	}
	now := func() time.Time { return time.Now().UTC() }
	if cfg.Clock != nil {
		now = cfg.Clock.Now
	}
	return &Engine{
		threshold:     cfg.SignificanceThreshold,
		maxSignatures: cfg.MaxSignatures,
		hasher:        cfg.Hasher,
		now:           now,
		signatures:    make(map[string]signature),
	}
}

// Classify fingerprints content and compares it with priorHash. The boolean
// reports whether the result is worth recording as a new version.
func (e *Engine) Classify(url string, content []byte, priorHash string) (crawler.ContentVersion, bool, error) {
	if len(content) == 0 {
		return crawler.ContentVersion{}, false, fmt.Errorf("classify %s: %w", url, crawler.ErrEmptyContent)
	}
	hash, err := e.hasher.Hash(content)
	if err != nil {
		return crawler.ContentVersion{}, false, fmt.Errorf("hash content: %w", err)
	}
	version := crawler.ContentVersion{
		URL:         url,
		ContentHash: hash,
		CapturedAt:  e.now(),
		SizeBytes:   int64(len(content)),
	}

	switch {
	case priorHash == "":
		version.ChangeType = crawler.ChangeAdded
		version.Significance = 100
		e.remember(url, content)
		return version, true, nil
	case priorHash == hash:
		version.ChangeType = crawler.ChangeUnchanged
		version.Significance = 0
		return version, false, nil
	}

	current := newSignature(content)
	prior, ok := e.lookup(url)
	version.ChangeType = crawler.ChangeModified
	switch {
	case !ok:
		// No baseline snapshot cached or primed: treat the whole page as new.
		version.Significance = 100
	case len(prior.shingles) == 0 || len(current.shingles) == 0:
		version.Significance = sizeSignificance(prior.size, current.size)
	default:
		version.Significance = shingleSignificance(prior, current)
	}
	e.store(url, current)
	return version, version.Significance >= e.threshold, nil
}

// HasBaseline reports whether a signature for url is cached.
func (e *Engine) HasBaseline(url string) bool {
	_, ok := e.lookup(url)
	return ok
}

// Prime caches content recorded by an earlier run as the baseline for url,
// so the next Modified classification measures against it.
func (e *Engine) Prime(url string, content []byte) {
	if url == "" || len(content) == 0 {
		return
	}
	e.store(url, newSignature(content))
}

// Forget drops the cached signature for url.
func (e *Engine) Forget(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.signatures, url)
}

func (e *Engine) remember(url string, content []byte) {
	e.store(url, newSignature(content))
}

func (e *Engine) lookup(url string) (signature, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sig, ok := e.signatures[url]
	return sig, ok
}

func (e *Engine) store(url string, sig signature) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.signatures[url]; !exists {
		e.order = append(e.order, url)
	}
	e.signatures[url] = sig
	for len(e.signatures) > e.maxSignatures && len(e.order) > 0 {
		oldest := e.order[0]
		e.order = e.order[1:]
		delete(e.signatures, oldest)
	}
	// Forget leaves stale keys behind in order; compact once they dominate.
	if len(e.order) > 2*e.maxSignatures {
		live := e.order[:0]
		for _, key := range e.order {
			if _, ok := e.signatures[key]; ok {
				live = append(live, key)
			}
		}
		e.order = live
	}
}

func newSignature(content []byte) signature {
	words := strings.Fields(string(content))
	shingles := make(map[uint64]struct{})
	if len(words) < shingleSize {
		if len(words) > 0 {
			shingles[hashWords(words)] = struct{}{}
		}
	} else {
		for i := 0; i+shingleSize <= len(words); i++ {
			shingles[hashWords(words[i:i+shingleSize])] = struct{}{}
		}
	}
	return signature{shingles: shingles, size: int64(len(content))}
}

func hashWords(words []string) uint64 {
	h := fnv.New64a()
	for i, w := range words {
		if i > 0 {
			_, _ = h.Write([]byte{0})
		}
		_, _ = h.Write([]byte(strings.ToLower(w)))
	}
	return h.Sum64()
}

// shingleSignificance is 100 x (1 - Jaccard similarity), floored at 1 because
// the hashes already differ.
func shingleSignificance(prior, current signature) float64 {
	union := len(prior.shingles)
	intersection := 0
	for key := range current.shingles {
		if _, ok := prior.shingles[key]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 1
	}
	similarity := float64(intersection) / float64(union)
	return clampSignificance(100 * (1 - similarity))
}

func sizeSignificance(priorSize, currentSize int64) float64 {
	delta := math.Abs(float64(currentSize - priorSize))
	largest := math.Max(float64(currentSize), float64(priorSize))
	return clampSignificance(100 * delta / largest)
}

func clampSignificance(v float64) float64 {
	v = math.Round(v*100) / 100
	switch {
	case v < 1:
		return 1
	case v > 100:
		return 100
	default:
		return v
	}
}
