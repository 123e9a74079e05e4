// Package pipeline drives the discovery, listing and enrichment stages. A run walks its items
// strictly in order on one goroutine, pacing fetches and isolating per-item failures so one
// bad page never stops the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-ingest/internal/adapter"
	"github.com/JakeFAU/creator-ingest/internal/clock/system"
	"github.com/JakeFAU/creator-ingest/internal/id/uuid"
	"github.com/JakeFAU/creator-ingest/internal/ingest"
	"github.com/JakeFAU/creator-ingest/internal/logging"
	"github.com/JakeFAU/creator-ingest/internal/metrics"
	"github.com/JakeFAU/creator-ingest/internal/progress"
	"github.com/JakeFAU/creator-ingest/internal/stage"
)

// Defaults applied to zero Config values.
const (
	DefaultPacing               = 2 * time.Second
	DefaultMaxConsecutiveErrors = 3
)

var tracer = otel.Tracer("github.com/JakeFAU/creator-ingest/internal/pipeline")

// Config tunes run behavior.
type Config struct {
	// Pacing is the delay before every fetch but the first of a run. Negative disables it.
	Pacing time.Duration
	// MaxConsecutiveErrors stops open-ended discovery after this many failed pages in a row.
	MaxConsecutiveErrors int
	// MaxPages caps the pages fetched per paginated walk. Zero means no cap.
	MaxPages int
}

// IDGenerator creates run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Deps are the collaborators of an Orchestrator. Fetcher, Store and Adapters are required.
type Deps struct {
	Fetcher   ingest.Fetcher
	Store     ingest.Store
	Adapters  *adapter.Registry
	Sources   []ingest.Source
	Tracker   *stage.Tracker
	Clock     ingest.Clock
	IDs       IDGenerator
	Pacer     Pacer
	Archive   ingest.BlobStore
	Publisher ingest.Publisher
	Emitter   progress.Emitter
	Logger    *zap.Logger
}

// Orchestrator runs pipeline stages against configured sources.
type Orchestrator struct {
	cfg       Config
	fetcher   ingest.Fetcher
	store     ingest.Store
	adapters  *adapter.Registry
	sources   map[string]ingest.Source
	tracker   *stage.Tracker
	clock     ingest.Clock
	ids       IDGenerator
	pacer     Pacer
	archive   ingest.BlobStore
	publisher ingest.Publisher
	emitter   progress.Emitter
	logger    *zap.Logger
}

// New validates deps and fills defaults.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("pipeline: fetcher is required")
	}
	if deps.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if deps.Adapters == nil {
		return nil, errors.New("pipeline: adapter registry is required")
	}
	if cfg.Pacing == 0 {
		cfg.Pacing = DefaultPacing
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	logger := logging.OrNop(deps.Logger).Named("pipeline")

	sources := make(map[string]ingest.Source, len(deps.Sources))
	for _, src := range deps.Sources {
		if err := src.Validate(); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		if _, dup := sources[src.ID]; dup {
			return nil, fmt.Errorf("pipeline: duplicate source %q", src.ID)
		}
		sources[src.ID] = src
	}

	o := &Orchestrator{
		cfg:       cfg,
		fetcher:   deps.Fetcher,
		store:     deps.Store,
		adapters:  deps.Adapters,
		sources:   sources,
		tracker:   deps.Tracker,
		clock:     deps.Clock,
		ids:       deps.IDs,
		pacer:     deps.Pacer,
		archive:   deps.Archive,
		publisher: deps.Publisher,
		emitter:   deps.Emitter,
		logger:    logger,
	}
	if o.clock == nil {
		o.clock = system.New()
	}
	if o.ids == nil {
		o.ids = uuid.New()
	}
	if o.pacer == nil {
		o.pacer = TimerPacer{}
	}
	if o.tracker == nil {
		o.tracker = stage.New(o.store, o.clock, logger)
	}
	return o, nil
}

// Sources returns the configured source ids in lexical order.
func (o *Orchestrator) Sources() []string {
	ids := make([]string, 0, len(o.sources))
	for id := range o.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Tracker returns the stage tracker used by runs.
func (o *Orchestrator) Tracker() *stage.Tracker {
	return o.tracker
}

// Prepare resolves req into a ready run without starting it, so callers can reject bad
// requests before committing to a response.
func (o *Orchestrator) Prepare(req ingest.RunRequest) (ingest.RunRequest, error) {
	if err := req.Validate(); err != nil {
		return req, err
	}
	src, ok := o.sources[req.SourceID]
	if !ok {
		return req, fmt.Errorf("unknown source %q", req.SourceID)
	}
	if _, err := o.adapters.For(src, req.Stage); err != nil {
		return req, err
	}
	if req.RunID == "" {
		id, err := o.ids.NewID()
		if err != nil {
			return req, fmt.Errorf("generate run id: %w", err)
		}
		req.RunID = id
	}
	return req, nil
}

// Run executes one stage. The returned error is non-nil only when the request cannot start;
// item failures, cancellation and fatal session loss are reported in the RunReport.
func (o *Orchestrator) Run(ctx context.Context, req ingest.RunRequest) (ingest.RunReport, error) {
	req, err := o.Prepare(req)
	if err != nil {
		return ingest.RunReport{}, err
	}
	src := o.sources[req.SourceID]
	stageCfg, err := src.Stage(req.Stage)
	if err != nil {
		return ingest.RunReport{}, err
	}
	ad, err := o.adapters.For(src, req.Stage)
	if err != nil {
		return ingest.RunReport{}, err
	}

	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run_id", req.RunID),
		attribute.String("source", src.ID),
		attribute.String("stage", string(req.Stage)),
	))
	defer span.End()

	pacing := o.cfg.Pacing
	if req.Pacing != 0 {
		pacing = req.Pacing
	}
	r := &run{
		o:        o,
		req:      req,
		src:      src,
		stageCfg: stageCfg,
		adapter:  ad,
		pacing:   pacing,
		work:     context.WithoutCancel(ctx),
		logger: o.logger.With(
			zap.String("run_id", req.RunID),
			zap.String("source", src.ID),
			zap.String("stage", string(req.Stage)),
		),
		report: ingest.RunReport{
			RunID:     req.RunID,
			Source:    src.ID,
			Stage:     req.Stage,
			State:     ingest.RunRunning,
			StartedAt: o.clock.Now(),
		},
	}

	metrics.IncActiveRuns()
	defer metrics.DecActiveRuns()

	r.logger.Info("run started",
		zap.Int("page_start", req.PageStart),
		zap.Int("page_end", req.PageEnd),
		zap.Bool("force", req.Force),
		zap.Int64("target_id", req.TargetID),
		zap.Duration("pacing", pacing),
	)
	switch req.Stage {
	case ingest.StageDiscovery:
		r.discover(ctx)
	case ingest.StageListing:
		r.list(ctx)
	case ingest.StageEnrichment:
		r.enrich(ctx)
	}
	r.finish()

	span.SetAttributes(
		attribute.String("state", string(r.report.State)),
		attribute.Int("items_processed", r.report.ItemsProcessed),
		attribute.Int("records_saved", r.report.RecordsSaved),
		attribute.Int("errors", r.report.Errors),
	)
	if r.report.FatalError != "" {
		span.SetStatus(codes.Error, r.report.FatalError)
	}
	return r.report, nil
}
