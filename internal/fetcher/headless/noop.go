package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

// Noop implements ingest.Fetcher for deployments without a browser. Every call fails with
// ErrSessionUnavailable so runs that need rendered pages abort instead of looping.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Open always fails.
func (Noop) Open(_ context.Context, req ingest.FetchRequest) (ingest.FetchResult, error) {
	return ingest.FetchResult{}, ingest.NewFetchError(ingest.ErrSessionUnavailable, req.URL, 0,
		errors.New("headless fetcher not configured"))
}
