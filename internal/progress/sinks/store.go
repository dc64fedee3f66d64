package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uridolan77/WebScraping-sub002/internal/progress"
	"github.com/uridolan77/WebScraping-sub002/internal/store"
)

// StoreSink persists run lifecycle rows and site counters via a
// store.RunRepository. Site-level deltas are collapsed per batch.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards run transitions in order and flushes collapsed site deltas
// at the end of the batch. Repository errors are returned wrapped.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	stats := make(map[statsKey]*statsDelta)

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch {
		case evt.Stage == progress.StageRunStart || evt.Stage.Terminal():
			if err := s.handleRunEvent(ctx, runID, evt); err != nil {
				return err
			}
		case evt.Stage == progress.StageFetchDone:
			s.recordSiteStats(stats, runID, evt)
		}
	}

	for key, delta := range stats {
		if delta.visits == 0 && delta.bytes == 0 {
			continue
		}
		if err := s.repo.UpsertSiteStats(
			ctx,
			key.runID,
			key.site,
			delta.visits,
			delta.bytes,
			key.statusClass,
			delta.at,
		); err != nil {
			return fmt.Errorf("upsert site stats: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) handleRunEvent(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	if evt.Stage == progress.StageRunStart {
		if err := s.repo.UpsertRunStart(ctx, runID, evt.TS); err != nil {
			return fmt.Errorf("upsert run start: %w", err)
		}
		return nil
	}
	var note *string
	if evt.Note != "" {
		note = &evt.Note
	}
	status := runStatusFor(evt.Stage)
	if err := s.repo.CompleteRun(ctx, runID, evt.TS, status, totalsFrom(evt.Totals), note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	s.logger.Debug("run persisted",
		zap.String("run_id", runID.String()),
		zap.String("status", string(status)),
	)
	return nil
}

func (s *StoreSink) recordSiteStats(stats map[statsKey]*statsDelta, runID uuid.UUID, evt progress.Event) {
	if evt.Site == "" {
		return
	}
	key := statsKey{
		runID:       runID,
		site:        evt.Site,
		statusClass: string(evt.StatusClass),
	}
	stat := stats[key]
	if stat == nil {
		stat = &statsDelta{}
		stats[key] = stat
	}
	stat.visits += evt.Visits
	stat.bytes += evt.Bytes
	if evt.TS.After(stat.at) || stat.at.IsZero() {
		stat.at = evt.TS
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

func runStatusFor(stage progress.Stage) store.RunStatus {
	switch stage {
	case progress.StageRunDone:
		return store.RunCompleted
	case progress.StageRunFailed:
		return store.RunFailed
	default:
		return store.RunStopped
	}
}

func totalsFrom(t *progress.Totals) store.RunTotals {
	if t == nil {
		return store.RunTotals{}
	}
	return store.RunTotals{
		URLsProcessed:      t.Processed,
		URLsQueued:         t.Queued,
		DocumentsProcessed: t.Documents,
		URLsFailed:         t.Failed,
		URLsSkipped:        t.Skipped,
		ChangesDetected:    t.Changes,
	}
}

type statsKey struct {
	runID       uuid.UUID
	site        string
	statusClass string
}

type statsDelta struct {
	visits int64
	bytes  int64
	at     time.Time
}
