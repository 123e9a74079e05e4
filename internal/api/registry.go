package api

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
	"github.com/JakeFAU/creator-ingest/internal/progress"
)

// ErrRunExists is returned when a run id is already in flight.
var ErrRunExists = errors.New("run already in flight")

// RunInfo describes an in-flight run.
type RunInfo struct {
	RunID           string       `json:"run_id"`
	Source          string       `json:"source"`
	Stage           ingest.Stage `json:"stage"`
	StartedAt       time.Time    `json:"started_at"`
	Events          int          `json:"events"`
	Errors          int          `json:"errors"`
	LastMessage     string       `json:"last_message,omitempty"`
	CancelRequested bool         `json:"cancel_requested"`
}

type runEntry struct {
	info   RunInfo
	cancel context.CancelFunc
	out    progress.Emitter
}

// Registry tracks streamed runs. It is also the progress.Emitter the orchestrator reports to,
// routing each event to the stream of the run that produced it.
type Registry struct {
	mu    sync.Mutex
	runs  map[string]*runEntry
	clock ingest.Clock
}

// NewRegistry builds an empty Registry.
func NewRegistry(clock ingest.Clock) *Registry {
	return &Registry{runs: make(map[string]*runEntry), clock: clock}
}

// Register adds a run. Events for req.RunID are forwarded to out until Remove.
func (r *Registry) Register(req ingest.RunRequest, cancel context.CancelFunc, out progress.Emitter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[req.RunID]; ok {
		return ErrRunExists
	}
	r.runs[req.RunID] = &runEntry{
		info: RunInfo{
			RunID:     req.RunID,
			Source:    req.SourceID,
			Stage:     req.Stage,
			StartedAt: r.clock.Now(),
		},
		cancel: cancel,
		out:    out,
	}
	return nil
}

// Remove forgets a run. No event is forwarded to its stream after Remove returns.
func (r *Registry) Remove(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, runID)
}

// Cancel requests a between-items stop. It reports false for unknown runs.
func (r *Registry) Cancel(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[runID]
	if !ok {
		return false
	}
	entry.info.CancelRequested = true
	entry.cancel()
	return true
}

// Get returns the state of one run.
func (r *Registry) Get(runID string) (RunInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[runID]
	if !ok {
		return RunInfo{}, false
	}
	return entry.info, true
}

// Active lists the runs in flight, oldest first.
func (r *Registry) Active() []RunInfo {
	r.mu.Lock()
	out := make([]RunInfo, 0, len(r.runs))
	for _, entry := range r.runs {
		out = append(out, entry.info)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Emit implements progress.Emitter.
func (r *Registry) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[evt.RunID]
	if !ok {
		return
	}
	entry.info.Events++
	if evt.Type == progress.TypeError {
		entry.info.Errors++
	}
	if evt.Message != "" {
		entry.info.LastMessage = evt.Message
	}
	entry.out.Emit(evt)
}
