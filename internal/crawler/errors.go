package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind labels the failure taxonomy used across the crawl pipeline.
type ErrorKind string

// Failure classes recognized by the controller.
const (
	KindConfiguration  ErrorKind = "configuration"
	KindTransientFetch ErrorKind = "transient_fetch"
	KindPermanentFetch ErrorKind = "permanent_fetch"
	KindEmptyContent   ErrorKind = "empty_content"
	KindFatalRun       ErrorKind = "fatal_run"
)

var (
	// ErrTransientFetch matches any retryable fetch failure.
	ErrTransientFetch = errors.New("transient fetch error")
	// ErrPermanentFetch matches any fetch failure that must not be retried.
	ErrPermanentFetch = errors.New("permanent fetch error")
	// ErrRobotsDisallowed is returned when robots.txt forbids the target.
	ErrRobotsDisallowed = fmt.Errorf("%w: disallowed by robots.txt", ErrPermanentFetch)
	// ErrEmptyContent signals a zero-length or unusable body.
	ErrEmptyContent = errors.New("empty content")
	// ErrStoreUnavailable signals the persistence collaborator cannot accept writes.
	ErrStoreUnavailable = errors.New("content store unavailable")
)

// FetchError describes a failed fetch together with its retry class.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Err        error
}

// NewTransientFetchError wraps err as a retryable failure.
func NewTransientFetchError(url string, statusCode int, err error) *FetchError {
	return &FetchError{Kind: KindTransientFetch, URL: url, StatusCode: statusCode, Err: err}
}

// NewPermanentFetchError wraps err as a non-retryable failure.
func NewPermanentFetchError(url string, statusCode int, err error) *FetchError {
	return &FetchError{Kind: KindPermanentFetch, URL: url, StatusCode: statusCode, Err: err}
}

func (e *FetchError) Error() string {
	msg := string(e.Kind)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, msg)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets callers match the retry class with errors.Is.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTransientFetch:
		return e.Kind == KindTransientFetch
	case ErrPermanentFetch:
		return e.Kind == KindPermanentFetch
	}
	return false
}

// StatusKind maps an HTTP status code onto the fetch taxonomy. Success and
// redirect codes return an empty kind.
func StatusKind(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests, code >= 500:
		return KindTransientFetch
	case code >= 400:
		return KindPermanentFetch
	default:
		return ""
	}
}

// ConfigurationError reports an invalid or contradictory setting detected
// before a run starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// FatalRunError ends a run in the failed state.
type FatalRunError struct {
	Err error
}

func (e *FatalRunError) Error() string {
	return fmt.Sprintf("fatal run error: %v", e.Err)
}

func (e *FatalRunError) Unwrap() error {
	return e.Err
}

// KindOf returns the taxonomy class for err, or an empty kind when unknown.
func KindOf(err error) ErrorKind {
	var (
		fetchErr *FetchError
		cfgErr   *ConfigurationError
		fatalErr *FatalRunError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fatalErr):
		return KindFatalRun
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &fetchErr):
		return fetchErr.Kind
	case errors.Is(err, ErrPermanentFetch):
		return KindPermanentFetch
	case errors.Is(err, ErrTransientFetch):
		return KindTransientFetch
	case errors.Is(err, ErrEmptyContent):
		return KindEmptyContent
	default:
		return ""
	}
}
