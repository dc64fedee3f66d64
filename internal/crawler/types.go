package crawler

import (
	"net/http"
	"time"
)

// ChangeType classifies a content version relative to the prior one.
type ChangeType string

// Change classifications assigned to content versions.
const (
	ChangeAdded     ChangeType = "added"
	ChangeModified  ChangeType = "modified"
	ChangeRemoved   ChangeType = "removed"
	ChangeUnchanged ChangeType = "unchanged"
)

// CrawlTarget is a discovered URL awaiting or under processing.
type CrawlTarget struct {
	URL          string
	Depth        int
	Priority     float64
	DiscoveredAt time.Time
	// SourceURL is the referrer; empty for the seed.
	SourceURL string
	// Relevance is the link relevance hint in [0,1] supplied by extraction.
	Relevance float64
	// SourceSignificance is the change significance (0-100) of the page the link was found on.
	SourceSignificance float64
}

// IsSeed reports whether the target was not discovered from another page.
func (t CrawlTarget) IsSeed() bool {
	return t.SourceURL == ""
}

// ContentVersion is one immutable fingerprinted snapshot of a URL's content.
type ContentVersion struct {
	URL          string     `json:"url"`
	ContentHash  string     `json:"content_hash"`
	CapturedAt   time.Time  `json:"captured_at"`
	SizeBytes    int64      `json:"size_bytes"`
	ChangeType   ChangeType `json:"change_type"`
	Significance float64    `json:"significance"`
}

// FetchRequest captures everything a PageFetcher needs for one URL.
type FetchRequest struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	Headers   http.Header
}

// FetchResponse is the result returned by a PageFetcher.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Latency    time.Duration
}

// Link is one outbound link discovered on a page.
type Link struct {
	URL string
	// Relevance is a [0,1] hint derived from anchor text.
	Relevance float64
}

// Page is the extraction output for a fetched document.
type Page struct {
	// Text is the normalized content used for fingerprinting.
	Text  []byte
	Links []Link
}

// TargetFailure records why a target could not be processed.
type TargetFailure struct {
	URL        string    `json:"url"`
	Depth      int       `json:"depth"`
	SourceURL  string    `json:"source_url,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Attempts   int       `json:"attempts"`
	Kind       ErrorKind `json:"kind"`
	Reason     string    `json:"reason"`
	FailedAt   time.Time `json:"failed_at"`
}

// RunStatus is the lifecycle state of a crawl run.
type RunStatus string

// Crawl run states.
const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunStopped   RunStatus = "stopped"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunStopped
}

// RunCounters tracks run-scoped processing stats.
type RunCounters struct {
	URLsProcessed      int64 `json:"urls_processed"`
	URLsQueued         int64 `json:"urls_queued"`
	DocumentsProcessed int64 `json:"documents_processed"`
	URLsFailed         int64 `json:"urls_failed"`
	URLsSkipped        int64 `json:"urls_skipped"`
	ChangesDetected    int64 `json:"changes_detected"`
	HasErrors          bool  `json:"has_errors"`
}

// RunResult is the structured outcome of one crawl run.
type RunResult struct {
	RunID      string      `json:"run_id"`
	Status     RunStatus   `json:"status"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Counters   RunCounters `json:"counters"`
	LastError  string      `json:"last_error,omitempty"`
}
