package crawler

import (
	"context"
	"io"
	"time"

	"github.com/uridolan77/WebScraping-sub002/internal/progress"
)

// PageFetcher fetches a URL and returns the body plus metadata. Failures
// should be *FetchError values so the controller can tell transient from
// permanent errors.
type PageFetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RobotsChecker answers basic robots.txt allow/disallow questions.
type RobotsChecker interface {
	IsAllowed(ctx context.Context, rawURL string, userAgent string) bool
}

// LinkExtractor turns a fetched document into canonical text and outbound links.
type LinkExtractor interface {
	Extract(resp FetchResponse) (Page, error)
}

// ContentStore persists versions and failures. Calls are fire-and-forget from
// the controller's perspective except ErrStoreUnavailable, which is fatal.
type ContentStore interface {
	Persist(ctx context.Context, runID string, version ContentVersion, body []byte) error
	PersistFailure(ctx context.Context, runID string, failure TargetFailure) error
	Evict(ctx context.Context, version ContentVersion) error
}

// HistoryLoader returns what earlier runs recorded for URLs under a base URL.
type HistoryLoader interface {
	// RecentVersions returns up to limit of the newest versions per URL,
	// oldest first.
	RecentVersions(ctx context.Context, baseURL string, limit int) (map[string][]ContentVersion, error)
	// Baseline returns the stored text of the version of url with hash.
	Baseline(ctx context.Context, url, hash string) ([]byte, error)
}

// NotificationSink receives run and change events. Emit must not block.
type NotificationSink interface {
	Emit(evt progress.Event)
}

// BlobStore writes raw page bodies and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
