package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uridolan77/WebScraping-sub002/internal/store"
)

// RunStore implements store.RunRepository in memory.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]store.Run
	sites map[uuid.UUID]map[string]store.SiteStats
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:  make(map[uuid.UUID]store.Run),
		sites: make(map[uuid.UUID]map[string]store.SiteStats),
	}
}

// UpsertRunStart stores a run in the running state.
func (s *RunStore) UpsertRunStart(_ context.Context, runID uuid.UUID, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if ok && run.Status != store.RunRunning {
		return nil
	}
	run.ID = runID
	run.StartedAt = startedAt
	run.Status = store.RunRunning
	s.runs[runID] = run
	return nil
}

// CompleteRun records the terminal status, totals and optional error.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	totals store.RunTotals,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("complete run %s: %w", runID, store.ErrNotFound)
	}
	finished := finishedAt
	run.FinishedAt = &finished
	run.Status = status
	run.Totals = totals
	if errMsg != nil {
		msg := *errMsg
		run.ErrorMessage = &msg
	}
	s.runs[runID] = run
	return nil
}

// UpsertSiteStats adds visit and byte deltas for a site within a run.
func (s *RunStore) UpsertSiteStats(
	_ context.Context,
	runID uuid.UUID,
	site string,
	deltaVisits int64,
	deltaBytes int64,
	statusClass string,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sites := s.sites[runID]
	if sites == nil {
		sites = make(map[string]store.SiteStats)
		s.sites[runID] = sites
	}
	stat := sites[site]
	stat.RunID = runID
	stat.Site = site
	stat.Visits += deltaVisits
	stat.BytesTotal += deltaBytes
	switch statusClass {
	case "2xx":
		stat.Fetch2xx += deltaVisits
	case "3xx":
		stat.Fetch3xx += deltaVisits
	case "4xx":
		stat.Fetch4xx += deltaVisits
	case "5xx":
		stat.Fetch5xx += deltaVisits
	}
	if at.After(stat.LastUpdate) {
		stat.LastUpdate = at
	}
	sites[site] = stat
	return nil
}

// GetRun loads a run or returns store.ErrNotFound.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	runs := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return page(runs, limit, offset), nil
}

// ListRunSites returns site stats for a run, most recently updated first.
func (s *RunStore) ListRunSites(_ context.Context, runID uuid.UUID, limit, offset int) ([]store.SiteStats, error) {
	s.mu.RLock()
	stats := make([]store.SiteStats, 0, len(s.sites[runID]))
	for _, stat := range s.sites[runID] {
		stats = append(stats, stat)
	}
	s.mu.RUnlock()
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].LastUpdate.Equal(stats[j].LastUpdate) {
			return stats[i].Site < stats[j].Site
		}
		return stats[i].LastUpdate.After(stats[j].LastUpdate)
	})
	return page(stats, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
