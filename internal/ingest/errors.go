package ingest

import (
	"errors"
	"fmt"
)

// Error taxonomy. Everything except ErrSessionUnavailable is recoverable at item level.
var (
	// ErrNavigationTimeout means the page or API did not answer within the call timeout.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrResourceUnavailable means the remote answered with an error or could not be reached.
	ErrResourceUnavailable = errors.New("resource unavailable")
	// ErrContentNotReady means the payload arrived but lacked the expected structure.
	ErrContentNotReady = errors.New("content not ready")
	// ErrSessionUnavailable means the browser could not be started. Runs abort on it.
	ErrSessionUnavailable = errors.New("browser session unavailable")
	// ErrExtractionIncomplete marks a record dropped for missing identity fields.
	ErrExtractionIncomplete = errors.New("extraction incomplete")
	// ErrPersistenceConflict is a unique violation that could not be resolved by lookup.
	ErrPersistenceConflict = errors.New("persistence conflict")
	// ErrPersistenceFailure wraps any other storage error.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("record not found")
)

// FetchError describes a failed fetch. It matches its Kind with errors.Is and unwraps the
// underlying cause.
type FetchError struct {
	Kind       error
	URL        string
	StatusCode int
	Err        error
}

// NewFetchError builds a FetchError.
func NewFetchError(kind error, url string, status int, err error) *FetchError {
	return &FetchError{Kind: kind, URL: url, StatusCode: status, Err: err}
}

func (e *FetchError) Error() string {
	msg := e.Kind.Error()
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.URL != "" {
		msg += ": " + e.URL
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSessionUnavailable)
}

// ErrorKind returns a stable label for err suitable for logs and metric labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrSessionUnavailable):
		return "session_unavailable"
	case errors.Is(err, ErrNavigationTimeout):
		return "navigation_timeout"
	case errors.Is(err, ErrResourceUnavailable):
		return "resource_unavailable"
	case errors.Is(err, ErrContentNotReady):
		return "content_not_ready"
	case errors.Is(err, ErrExtractionIncomplete):
		return "extraction_incomplete"
	case errors.Is(err, ErrPersistenceConflict):
		return "persistence_conflict"
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence_failure"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unknown"
	}
}
