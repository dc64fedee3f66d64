package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
	"github.com/uridolan77/WebScraping-sub002/internal/store"
)

// VersionStoreConfig names the tables used by VersionStore.
type VersionStoreConfig struct {
	VersionsTable string
	FailuresTable string
}

// VersionStore implements store.VersionRepository using Postgres.
type VersionStore struct {
	pool          Pool
	versionsTable string
	failuresTable string
}

// NewVersionStore wraps an existing pool. Empty table names default to
// content_versions and target_failures.
func NewVersionStore(pool Pool, cfg VersionStoreConfig) (*VersionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if cfg.VersionsTable == "" {
		cfg.VersionsTable = "content_versions"
	}
	if cfg.FailuresTable == "" {
		cfg.FailuresTable = "target_failures"
	}
	for _, table := range []string{cfg.VersionsTable, cfg.FailuresTable} {
		if err := checkTable(table); err != nil {
			return nil, err
		}
	}
	return &VersionStore{
		pool:          pool,
		versionsTable: cfg.VersionsTable,
		failuresTable: cfg.FailuresTable,
	}, nil
}

// Close releases the underlying pool resources.
func (s *VersionStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// InsertVersion writes one content version row.
func (s *VersionStore) InsertVersion(ctx context.Context, record store.VersionRecord) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	url,
	content_hash,
	captured_at,
	size_bytes,
	change_type,
	significance,
	blob_uri
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
ON CONFLICT DO NOTHING`, s.versionsTable)

	args := []any{
		record.RunID,
		record.URL,
		record.ContentHash,
		record.CapturedAt,
		record.SizeBytes,
		string(record.ChangeType),
		record.Significance,
		nullable(record.BlobURI),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return wrapErr("insert version", err)
	}
	return nil
}

// DeleteVersion removes a version dropped by the retention policy.
func (s *VersionStore) DeleteVersion(ctx context.Context, version crawler.ContentVersion) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE url = $1 AND captured_at = $2 AND content_hash = $3`, s.versionsTable)
	if _, err := s.pool.Exec(ctx, query, version.URL, version.CapturedAt, version.ContentHash); err != nil {
		return wrapErr("delete version", err)
	}
	return nil
}

// InsertFailure records a target that could not be processed.
func (s *VersionStore) InsertFailure(ctx context.Context, runID uuid.UUID, failure crawler.TargetFailure) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	url,
	depth,
	source_url,
	status_code,
	attempts,
	kind,
	reason,
	failed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, s.failuresTable)

	args := []any{
		runID,
		failure.URL,
		failure.Depth,
		nullable(failure.SourceURL),
		failure.StatusCode,
		failure.Attempts,
		string(failure.Kind),
		failure.Reason,
		failure.FailedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return wrapErr("insert failure", err)
	}
	return nil
}

const versionColumns = `run_id, url, content_hash, captured_at, size_bytes, change_type, significance, blob_uri`

// RecentVersions returns up to limit of the newest versions per URL under
// baseURL, oldest first.
func (s *VersionStore) RecentVersions(ctx context.Context, baseURL string, limit int) (map[string][]store.VersionRecord, error) {
	if limit <= 0 {
		limit = 1
	}
	query := fmt.Sprintf(`
SELECT %[1]s FROM (
	SELECT %[1]s,
		row_number() OVER (PARTITION BY url ORDER BY captured_at DESC) AS rn
	FROM %[2]s
	WHERE starts_with(url, $1)
) recent
WHERE rn <= $2
ORDER BY url, captured_at ASC`, versionColumns, s.versionsTable)

	rows, err := s.pool.Query(ctx, query, baseURL, limit)
	if err != nil {
		return nil, wrapErr("query recent versions", err)
	}
	defer rows.Close()

	out := make(map[string][]store.VersionRecord)
	for rows.Next() {
		record, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out[record.URL] = append(out[record.URL], record)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate recent versions", err)
	}
	return out, nil
}

// FindVersion returns the newest row for url with hash.
func (s *VersionStore) FindVersion(ctx context.Context, url, hash string) (store.VersionRecord, error) {
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE url = $1 AND content_hash = $2
ORDER BY captured_at DESC
LIMIT 1`, versionColumns, s.versionsTable)

	record, err := scanVersion(s.pool.QueryRow(ctx, query, url, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.VersionRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.VersionRecord{}, wrapErr("find version", err)
	}
	return record, nil
}

func scanVersion(row pgx.Row) (store.VersionRecord, error) {
	var (
		record     store.VersionRecord
		changeType string
		blobURI    *string
	)
	if err := row.Scan(
		&record.RunID,
		&record.URL,
		&record.ContentHash,
		&record.CapturedAt,
		&record.SizeBytes,
		&changeType,
		&record.Significance,
		&blobURI,
	); err != nil {
		return store.VersionRecord{}, fmt.Errorf("scan version row: %w", err)
	}
	record.ChangeType = crawler.ChangeType(changeType)
	if blobURI != nil {
		record.BlobURI = *blobURI
	}
	return record, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
