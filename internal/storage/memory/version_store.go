package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
	"github.com/uridolan77/WebScraping-sub002/internal/store"
)

// VersionStore implements store.VersionRepository in memory.
type VersionStore struct {
	mu       sync.RWMutex
	versions map[string][]store.VersionRecord
	failures []FailureRecord
}

// FailureRecord is a stored target failure.
type FailureRecord struct {
	RunID   uuid.UUID
	Failure crawler.TargetFailure
}

// NewVersionStore constructs an empty VersionStore.
func NewVersionStore() *VersionStore {
	return &VersionStore{versions: make(map[string][]store.VersionRecord)}
}

// InsertVersion appends a version row for its URL.
func (s *VersionStore) InsertVersion(_ context.Context, record store.VersionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[record.URL] = append(s.versions[record.URL], record)
	return nil
}

// DeleteVersion removes the row matching URL, capture time and hash.
func (s *VersionStore) DeleteVersion(_ context.Context, version crawler.ContentVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.versions[version.URL]
	for i, row := range rows {
		if row.ContentHash == version.ContentHash && row.CapturedAt.Equal(version.CapturedAt) {
			s.versions[version.URL] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// InsertFailure records a target failure.
func (s *VersionStore) InsertFailure(_ context.Context, runID uuid.UUID, failure crawler.TargetFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, FailureRecord{RunID: runID, Failure: failure})
	return nil
}

// RecentVersions returns the last limit rows per URL under baseURL in
// insertion order.
func (s *VersionStore) RecentVersions(_ context.Context, baseURL string, limit int) (map[string][]store.VersionRecord, error) {
	if limit <= 0 {
		limit = 1
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]store.VersionRecord)
	for url, rows := range s.versions {
		if len(rows) == 0 || !strings.HasPrefix(url, baseURL) {
			continue
		}
		out[url] = append([]store.VersionRecord(nil), rows[max(0, len(rows)-limit):]...)
	}
	return out, nil
}

// FindVersion returns the most recent row for url with hash.
func (s *VersionStore) FindVersion(_ context.Context, url, hash string) (store.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.versions[url]
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].ContentHash == hash {
			return rows[i], nil
		}
	}
	return store.VersionRecord{}, store.ErrNotFound
}

// Versions returns a copy of the stored rows for url, oldest first.
func (s *VersionStore) Versions(url string) []store.VersionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.VersionRecord(nil), s.versions[url]...)
}

// Failures returns a copy of all recorded failures.
func (s *VersionStore) Failures() []FailureRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]FailureRecord(nil), s.failures...)
}
