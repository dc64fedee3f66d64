package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
	"github.com/uridolan77/WebScraping-sub002/internal/store"
)

func TestNewVersionStoreValidatesTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewVersionStore(mock, VersionStoreConfig{VersionsTable: "bad;table"})
	require.ErrorContains(t, err, "invalid table name")

	_, err = NewVersionStore(nil, VersionStoreConfig{})
	require.ErrorContains(t, err, "pool is required")
}

func TestVersionStoreInsertVersion(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	versions, err := NewVersionStore(mock, VersionStoreConfig{})
	require.NoError(t, err)

	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	record := store.VersionRecord{
		ContentVersion: crawler.ContentVersion{
			URL:          "https://example.com/",
			ContentHash:  "abc",
			CapturedAt:   now,
			SizeBytes:    12,
			ChangeType:   crawler.ChangeModified,
			Significance: 40,
		},
		RunID:   runID,
		BlobURI: "memory://runs/abc.txt",
	}
	mock.ExpectExec("INSERT INTO content_versions").
		WithArgs(runID, "https://example.com/", "abc", now, int64(12), "modified", 40.0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, versions.InsertVersion(context.Background(), record))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionStoreDeleteVersion(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	versions, err := NewVersionStore(mock, VersionStoreConfig{VersionsTable: "history"})
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("DELETE FROM history").
		WithArgs("https://example.com/", now, "abc").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err = versions.DeleteVersion(context.Background(), crawler.ContentVersion{
		URL:         "https://example.com/",
		ContentHash: "abc",
		CapturedAt:  now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionStoreInsertFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	versions, err := NewVersionStore(mock, VersionStoreConfig{})
	require.NoError(t, err)

	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	failure := crawler.TargetFailure{
		URL:        "https://example.com/missing",
		Depth:      1,
		StatusCode: 404,
		Attempts:   1,
		Kind:       crawler.KindPermanentFetch,
		Reason:     "status 404",
		FailedAt:   now,
	}
	mock.ExpectExec("INSERT INTO target_failures").
		WithArgs(runID, failure.URL, 1, (*string)(nil), 404, 1, "permanent_fetch", "status 404", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, versions.InsertFailure(context.Background(), runID, failure))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionStoreRecentVersions(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	versions, err := NewVersionStore(mock, VersionStoreConfig{})
	require.NoError(t, err)

	runA, runB := uuid.New(), uuid.New()
	t1 := time.Unix(1700000000, 0).UTC()
	t2 := t1.Add(time.Hour)
	uri := "memory://pages/h2.txt"
	rows := pgxmock.NewRows(versionColumnNames).
		AddRow(runA, "https://example.com/", "h1", t1, int64(10), "added", 100.0, (*string)(nil)).
		AddRow(runB, "https://example.com/", "h2", t2, int64(12), "modified", 35.5, &uri).
		AddRow(runB, "https://example.com/gone", "", t2, int64(0), "removed", 100.0, (*string)(nil))
	mock.ExpectQuery("row_number\\(\\) OVER \\(PARTITION BY url").
		WithArgs("https://example.com/", 2).
		WillReturnRows(rows)

	got, err := versions.RecentVersions(context.Background(), "https://example.com/", 2)
	require.NoError(t, err)
	require.Len(t, got["https://example.com/"], 2)
	latest := got["https://example.com/"][1]
	require.Equal(t, "h2", latest.ContentHash)
	require.Equal(t, crawler.ChangeModified, latest.ChangeType)
	require.Equal(t, runB, latest.RunID)
	require.Equal(t, uri, latest.BlobURI)
	require.Equal(t, crawler.ChangeRemoved, got["https://example.com/gone"][0].ChangeType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionStoreFindVersion(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	versions, err := NewVersionStore(mock, VersionStoreConfig{})
	require.NoError(t, err)

	runID := uuid.New()
	captured := time.Unix(1700000000, 0).UTC()
	uri := "file:///data/pages/h1.txt"
	mock.ExpectQuery("SELECT run_id, url, content_hash").
		WithArgs("https://example.com/", "h1").
		WillReturnRows(pgxmock.NewRows(versionColumnNames).
			AddRow(runID, "https://example.com/", "h1", captured, int64(10), "added", 100.0, &uri))
	mock.ExpectQuery("SELECT run_id, url, content_hash").
		WithArgs("https://example.com/", "nope").
		WillReturnRows(pgxmock.NewRows(versionColumnNames))

	record, err := versions.FindVersion(context.Background(), "https://example.com/", "h1")
	require.NoError(t, err)
	require.Equal(t, runID, record.RunID)
	require.Equal(t, uri, record.BlobURI)

	_, err = versions.FindVersion(context.Background(), "https://example.com/", "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

var versionColumnNames = []string{
	"run_id", "url", "content_hash", "captured_at", "size_bytes", "change_type", "significance", "blob_uri",
}

func TestMigrateAppliesSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS crawl_runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, Migrate(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())
}
