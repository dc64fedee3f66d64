// Package versions keeps the bounded per-URL history of content versions and
// the latest hash used as the baseline for change detection.
package versions

import (
	"sort"
	"sync"

	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
)

// Config controls retention.
type Config struct {
	TrackContentVersions bool
	MaxVersionsToKeep    int
}

// Policy is a concurrency-safe version history. When tracking is disabled it
// only remembers the latest hash per URL.
type Policy struct {
	track bool
	max   int

	mu      sync.Mutex
	history map[string][]crawler.ContentVersion
	latest  map[string]string
	seeded  map[string]struct{}
}

// New builds a Policy.
func New(cfg Config) *Policy {
	maxVersions := cfg.MaxVersionsToKeep
	if maxVersions <= 0 {
		maxVersions = 1
	}
	return &Policy{
		track:   cfg.TrackContentVersions,
		max:     maxVersions,
		history: make(map[string][]crawler.ContentVersion),
		latest:  make(map[string]string),
		seeded:  make(map[string]struct{}),
	}
}

// Record appends v to its URL's history and returns the evicted oldest
// version when the cap is exceeded. A Removed version clears the baseline
// hash so a later reappearance is classified as Added.
func (p *Policy) Record(v crawler.ContentVersion) *crawler.ContentVersion {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v.ChangeType == crawler.ChangeRemoved {
		delete(p.latest, v.URL)
	} else if v.ContentHash != "" {
		p.latest[v.URL] = v.ContentHash
	}
	if !p.track {
		return nil
	}

	entries := append(p.history[v.URL], v)
	var dropped *crawler.ContentVersion
	if len(entries) > p.max {
		oldest := entries[0]
		dropped = &oldest
		entries = append([]crawler.ContentVersion(nil), entries[1:]...)
	}
	p.history[v.URL] = entries
	return dropped
}

// LatestHash returns the hash of the last recorded (or seeded) version.
func (p *Policy) LatestHash(url string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	hash, ok := p.latest[url]
	return hash, ok
}

// History returns a copy of the URL's versions, oldest first.
func (p *Policy) History(url string) []crawler.ContentVersion {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := p.history[url]
	if len(entries) == 0 {
		return nil
	}
	return append([]crawler.ContentVersion(nil), entries...)
}

// SeedHistory preloads versions recorded by earlier runs, oldest first. When
// tracking, the newest max versions become the URL's history so later records
// evict them. A URL whose last version is Removed gets no baseline hash and is
// not listed by Seeded.
func (p *Policy) SeedHistory(url string, prior []crawler.ContentVersion) {
	if url == "" || len(prior) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track {
		keep := prior[max(0, len(prior)-p.max):]
		p.history[url] = append([]crawler.ContentVersion(nil), keep...)
	}
	last := prior[len(prior)-1]
	if last.ChangeType == crawler.ChangeRemoved || last.ContentHash == "" {
		delete(p.latest, url)
		delete(p.seeded, url)
		return
	}
	p.latest[url] = last.ContentHash
	p.seeded[url] = struct{}{}
}

// Seeded lists URLs preloaded with a live baseline, sorted for stable iteration.
func (p *Policy) Seeded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	urls := make([]string, 0, len(p.seeded))
	for u := range p.seeded {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// Tracking reports whether history is retained.
func (p *Policy) Tracking() bool {
	return p.track
}
