package ingest

import (
	"errors"
	"fmt"
	"time"
)

// RunRequest parameterizes a single pipeline run.
type RunRequest struct {
	// RunID names the run. Empty means one is generated.
	RunID    string
	SourceID string
	Stage    Stage
	// PageStart is the first discovery page (1-based). Zero means 1.
	PageStart int
	// PageEnd is the last discovery page, inclusive. Zero means run until a page is empty.
	PageEnd int
	// Force bypasses stage flags and, for enrichment, includes complete media.
	Force bool
	// Pacing is the delay between items. Negative disables pacing; zero selects the default.
	Pacing time.Duration
	// TargetID restricts the run to one page number, creator id or media id.
	TargetID int64
}

// Validate checks the request is well formed.
func (r RunRequest) Validate() error {
	if r.SourceID == "" {
		return errors.New("source is required")
	}
	if !r.Stage.Valid() {
		return fmt.Errorf("unknown stage %q", r.Stage)
	}
	if r.PageStart < 0 || r.PageEnd < 0 {
		return errors.New("page range must be >= 0")
	}
	if r.PageEnd > 0 && r.PageStart > r.PageEnd {
		return fmt.Errorf("page start %d is after page end %d", r.PageStart, r.PageEnd)
	}
	if r.TargetID < 0 {
		return errors.New("target id must be >= 0")
	}
	return nil
}

// RunState is the lifecycle state of a run.
type RunState string

// Run states.
const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunAborted   RunState = "aborted"
)

// RunReport summarizes a finished run.
type RunReport struct {
	RunID          string    `json:"run_id"`
	Source         string    `json:"source"`
	Stage          Stage     `json:"stage"`
	State          RunState  `json:"state"`
	ItemsProcessed int       `json:"items_processed"`
	ItemsSkipped   int       `json:"items_skipped"`
	RecordsFound   int       `json:"records_found"`
	RecordsSaved   int       `json:"records_saved"`
	Duplicates     int       `json:"duplicates"`
	Errors         int       `json:"errors"`
	FatalError     string    `json:"fatal_error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Summary renders a one-line description of the report.
func (r RunReport) Summary() string {
	s := fmt.Sprintf("%s %s %s: processed=%d skipped=%d found=%d saved=%d duplicates=%d errors=%d",
		r.Source, r.Stage, r.State, r.ItemsProcessed, r.ItemsSkipped, r.RecordsFound,
		r.RecordsSaved, r.Duplicates, r.Errors)
	if r.FatalError != "" {
		s += " fatal=" + r.FatalError
	}
	return s
}
