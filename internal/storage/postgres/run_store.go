package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/uridolan77/WebScraping-sub002/internal/store"
)

// RunStore implements store.RunRepository using Postgres.
type RunStore struct {
	pool Pool
}

// NewRunStore wraps an existing pool.
func NewRunStore(pool Pool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// UpsertRunStart inserts a run row in the running state.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	query := `
		INSERT INTO crawl_runs (id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET started_at = EXCLUDED.started_at
		WHERE crawl_runs.status = EXCLUDED.status;
	`
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, string(store.RunRunning)); err != nil {
		return wrapErr("upsert run start", err)
	}
	return nil
}

// CompleteRun marks a run finished with its terminal status and totals.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	totals store.RunTotals,
	errMsg *string,
) error {
	query := `
		UPDATE crawl_runs
		SET finished_at = $1, status = $2, error_message = $3,
			urls_processed = $4, urls_queued = $5, documents_processed = $6,
			urls_failed = $7, urls_skipped = $8, changes_detected = $9
		WHERE id = $10;
	`
	_, err := s.pool.Exec(
		ctx,
		query,
		finishedAt,
		string(status),
		errMsg,
		totals.URLsProcessed,
		totals.URLsQueued,
		totals.DocumentsProcessed,
		totals.URLsFailed,
		totals.URLsSkipped,
		totals.ChangesDetected,
		runID,
	)
	if err != nil {
		return wrapErr("complete run", err)
	}
	return nil
}

// UpsertSiteStats adds visit and byte deltas for a site within a run.
func (s *RunStore) UpsertSiteStats(
	ctx context.Context,
	runID uuid.UUID,
	site string,
	deltaVisits,
	deltaBytes int64,
	statusClass string,
	at time.Time,
) error {
	var fetch2xx, fetch3xx, fetch4xx, fetch5xx int64
	switch statusClass {
	case "2xx":
		fetch2xx = deltaVisits
	case "3xx":
		fetch3xx = deltaVisits
	case "4xx":
		fetch4xx = deltaVisits
	case "5xx":
		fetch5xx = deltaVisits
	case "other":
	default:
		return fmt.Errorf("unknown status class: %s", statusClass)
	}

	query := `
		INSERT INTO site_stats (run_id, site, last_update, visits, bytes_total, fetch_2xx, fetch_3xx, fetch_4xx, fetch_5xx)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, site) DO UPDATE
		SET visits = site_stats.visits + EXCLUDED.visits,
			bytes_total = site_stats.bytes_total + EXCLUDED.bytes_total,
			fetch_2xx = site_stats.fetch_2xx + EXCLUDED.fetch_2xx,
			fetch_3xx = site_stats.fetch_3xx + EXCLUDED.fetch_3xx,
			fetch_4xx = site_stats.fetch_4xx + EXCLUDED.fetch_4xx,
			fetch_5xx = site_stats.fetch_5xx + EXCLUDED.fetch_5xx,
			last_update = GREATEST(site_stats.last_update, EXCLUDED.last_update);
	`
	_, err := s.pool.Exec(
		ctx,
		query,
		runID,
		site,
		at,
		deltaVisits,
		deltaBytes,
		fetch2xx,
		fetch3xx,
		fetch4xx,
		fetch5xx,
	)
	if err != nil {
		return wrapErr("upsert site stats", err)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, status, urls_processed, urls_queued,
	documents_processed, urls_failed, urls_skipped, changes_detected, error_message`

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM crawl_runs WHERE id = $1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, wrapErr("get run", err)
	}
	return run, nil
}

// ListRuns retrieves runs ordered by start time, newest first.
func (s *RunStore) ListRuns(
	ctx context.Context,
	status *store.RunStatus,
	limit,
	offset int,
) ([]store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM crawl_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}
	rows, err := s.pool.Query(ctx, query, statusArg, limit, offset)
	if err != nil {
		return nil, wrapErr("list runs", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate runs", err)
	}
	return runs, nil
}

// ListRunSites retrieves aggregated site statistics for a run.
func (s *RunStore) ListRunSites(
	ctx context.Context,
	runID uuid.UUID,
	limit,
	offset int,
) ([]store.SiteStats, error) {
	query := `
		SELECT run_id, site, last_update, visits, bytes_total, fetch_2xx, fetch_3xx, fetch_4xx, fetch_5xx
		FROM site_stats
		WHERE run_id = $1
		ORDER BY last_update DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, wrapErr("list run sites", err)
	}
	defer rows.Close()

	var stats []store.SiteStats
	for rows.Next() {
		var stat store.SiteStats
		err := rows.Scan(
			&stat.RunID,
			&stat.Site,
			&stat.LastUpdate,
			&stat.Visits,
			&stat.BytesTotal,
			&stat.Fetch2xx,
			&stat.Fetch3xx,
			&stat.Fetch4xx,
			&stat.Fetch5xx,
		)
		if err != nil {
			return nil, fmt.Errorf("scan site stats row: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate site stats", err)
	}
	return stats, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Totals.URLsProcessed,
		&run.Totals.URLsQueued,
		&run.Totals.DocumentsProcessed,
		&run.Totals.URLsFailed,
		&run.Totals.URLsSkipped,
		&run.Totals.ChangesDetected,
		&run.ErrorMessage,
	)
	if err != nil {
		return store.Run{}, err //nolint:wrapcheck // callers wrap with context
	}
	run.Status = store.RunStatus(status)
	return run, nil
}
