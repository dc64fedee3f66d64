package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
)

// VersionRecord is a persisted content version plus the location of its body.
type VersionRecord struct {
	crawler.ContentVersion
	RunID   uuid.UUID `json:"run_id"`
	BlobURI string    `json:"blob_uri,omitempty"`
}

// VersionRepository persists content version rows and target failures.
// Implementations wrap connectivity failures with crawler.ErrStoreUnavailable.
type VersionRepository interface {
	InsertVersion(ctx context.Context, record VersionRecord) error
	// DeleteVersion removes a version evicted by the retention policy.
	DeleteVersion(ctx context.Context, version crawler.ContentVersion) error
	InsertFailure(ctx context.Context, runID uuid.UUID, failure crawler.TargetFailure) error
	// RecentVersions returns up to limit of the newest rows per URL under
	// baseURL, oldest first.
	RecentVersions(ctx context.Context, baseURL string, limit int) (map[string][]VersionRecord, error)
	// FindVersion returns the newest row for url with hash, or ErrNotFound.
	FindVersion(ctx context.Context, url, hash string) (VersionRecord, error)
}
