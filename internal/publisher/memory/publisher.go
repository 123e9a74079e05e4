// Package memory contains an in-memory run report publisher for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

// Publisher stores published reports for inspection.
type Publisher struct {
	mu      sync.RWMutex
	reports []ingest.RunReport
	err     error
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes subsequent publishes return err. A nil err restores normal behavior.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records the report and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, report ingest.RunReport) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.reports = append(p.reports, report)
	return fmt.Sprintf("memory-%d", len(p.reports)), nil
}

// Reports returns a copy of the recorded reports.
func (p *Publisher) Reports() []ingest.RunReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ingest.RunReport, len(p.reports))
	copy(out, p.reports)
	return out
}
