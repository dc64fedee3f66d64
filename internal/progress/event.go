package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported crawl stages.
const (
	StageRunStart       Stage = "RUN_START"
	StageRunDone        Stage = "RUN_DONE"
	StageRunFailed      Stage = "RUN_FAILED"
	StageRunStopped     Stage = "RUN_STOPPED"
	StageFetchDone      Stage = "FETCH_DONE"
	StageTargetFailed   Stage = "TARGET_FAILED"
	StageContentChanged Stage = "CONTENT_CHANGED"
)

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	return s == StageRunDone || s == StageRunFailed || s == StageRunStopped
}

// retained reports whether the hub keeps events of this stage when its
// buffer is full.
func (s Stage) retained() bool {
	return s != StageFetchDone && s != StageTargetFailed
}

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Totals is the counter snapshot carried by terminal run events.
type Totals struct {
	Processed int64 `json:"urls_processed"`
	Queued    int64 `json:"urls_queued"`
	Documents int64 `json:"documents_processed"`
	Failed    int64 `json:"urls_failed"`
	Skipped   int64 `json:"urls_skipped"`
	Changes   int64 `json:"changes_detected"`
}

// Event captures a single crawl milestone.
type Event struct {
	// RunID uniquely identifies a crawl run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Site scopes fetch and change events to a host label.
	Site string
	// URL is the page URL; it should not contain credentials.
	URL   string
	Bytes int64
	// Visits increments by one for each successfully fetched page.
	Visits      int64
	StatusClass StatusClass
	// Dur is the fetch latency, or the run wall time for terminal events.
	Dur time.Duration
	// ChangeType and Significance describe CONTENT_CHANGED events.
	ChangeType   string
	Significance float64
	ContentHash  string
	// Totals is set on terminal run events.
	Totals *Totals
	// Note carries low-volume context such as the error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunFailed, StageRunStopped:
	case StageFetchDone:
		if e.Site == "" {
			return errors.New("fetch done requires site")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	case StageTargetFailed:
		if e.URL == "" {
			return errors.New("target failed requires url")
		}
	case StageContentChanged:
		if e.URL == "" {
			return errors.New("content changed requires url")
		}
		if e.ChangeType == "" {
			return errors.New("content changed requires change type")
		}
		if e.Significance < 0 || e.Significance > 100 {
			return fmt.Errorf("significance %v out of range", e.Significance)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
