// Package app builds and holds the long-lived services of a process: the store, the fetch
// driver, the snapshot archive, the report publisher, the progress hub and the orchestrator.
// It is the only package that knows about every backend.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-ingest/internal/adapter"
	"github.com/JakeFAU/creator-ingest/internal/api"
	"github.com/JakeFAU/creator-ingest/internal/clock/system"
	"github.com/JakeFAU/creator-ingest/internal/config"
	"github.com/JakeFAU/creator-ingest/internal/fetcher"
	collyfetcher "github.com/JakeFAU/creator-ingest/internal/fetcher/colly"
	"github.com/JakeFAU/creator-ingest/internal/fetcher/headless"
	"github.com/JakeFAU/creator-ingest/internal/id/uuid"
	"github.com/JakeFAU/creator-ingest/internal/ingest"
	"github.com/JakeFAU/creator-ingest/internal/logging"
	"github.com/JakeFAU/creator-ingest/internal/metrics"
	"github.com/JakeFAU/creator-ingest/internal/pipeline"
	"github.com/JakeFAU/creator-ingest/internal/policy/ratelimit"
	"github.com/JakeFAU/creator-ingest/internal/progress"
	"github.com/JakeFAU/creator-ingest/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/creator-ingest/internal/publisher/pubsub"
	"github.com/JakeFAU/creator-ingest/internal/storage/gcs"
	"github.com/JakeFAU/creator-ingest/internal/storage/local"
	"github.com/JakeFAU/creator-ingest/internal/storage/memory"
	"github.com/JakeFAU/creator-ingest/internal/storage/postgres"
	"github.com/JakeFAU/creator-ingest/internal/stage"
	"github.com/JakeFAU/creator-ingest/internal/telemetry"
)

const (
	serviceName     = "creator-ingest"
	hubCloseTimeout = 10 * time.Second
)

// Option customizes New.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	store      ingest.Store
	rendered   ingest.Fetcher
	api        ingest.Fetcher
	clock      ingest.Clock
}

// WithRegisterer registers the progress collectors against reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithStore uses store instead of the configured database backend.
func WithStore(store ingest.Store) Option {
	return func(o *options) { o.store = store }
}

// WithFetchers replaces the browser and HTTP fetchers.
func WithFetchers(rendered, api ingest.Fetcher) Option {
	return func(o *options) {
		o.rendered = rendered
		o.api = api
	}
}

// WithClock overrides the wall clock.
func WithClock(clock ingest.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// App holds the shared services of one process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     ingest.Clock
	store     ingest.Store
	driver    *fetcher.Driver
	archive   ingest.BlobStore
	publisher ingest.Publisher
	hub       *progress.Hub
	registry  *api.Registry
	orch      *pipeline.Orchestrator
	closers   []func() error
	closeOnce sync.Once
}

// New builds every service from cfg and fails fast on the first one that cannot start.
// Resources acquired before a failure are released.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger = logging.OrNop(logger)
	metrics.Init()

	a := &App{cfg: cfg, logger: logger, clock: o.clock}
	if a.clock == nil {
		a.clock = system.New()
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	tp, err := telemetry.InitTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { return tp.Shutdown(context.Background()) })

	if a.store, err = a.openStore(ctx, o.store); err != nil {
		return nil, err
	}
	if a.driver, err = a.buildDriver(o.rendered, o.api); err != nil {
		return nil, err
	}
	if a.archive, err = a.openArchive(ctx); err != nil {
		return nil, err
	}
	if err = a.openPublisher(ctx); err != nil {
		return nil, err
	}
	if err = a.startHub(ctx, o.registerer); err != nil {
		return nil, err
	}

	sources, err := cfg.IngestSources()
	if err != nil {
		return nil, err
	}
	a.registry = api.NewRegistry(a.clock)
	a.orch, err = pipeline.New(pipeline.Config{
		Pacing:               cfg.Pipeline.Pacing,
		MaxConsecutiveErrors: cfg.Pipeline.MaxConsecutiveErrors,
		MaxPages:             cfg.Pipeline.MaxPages,
	}, pipeline.Deps{
		Fetcher:   a.driver,
		Store:     a.store,
		Adapters:  adapter.NewRegistry(),
		Sources:   sources,
		Tracker:   stage.New(a.store, a.clock, logger),
		Clock:     a.clock,
		IDs:       uuid.New(),
		Archive:   a.archive,
		Publisher: a.publisher,
		Emitter:   progress.Multi(a.hub, a.registry),
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	logger.Info("application services initialized",
		zap.String("database", cfg.Database.Backend),
		zap.String("archive", cfg.Archive.Backend),
		zap.Bool("headless", cfg.Fetch.Headless),
		zap.Bool("pubsub", a.publisher != nil),
		zap.Strings("sources", a.orch.Sources()),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context, injected ingest.Store) (ingest.Store, error) {
	if injected != nil {
		return injected, nil
	}
	switch a.cfg.Database.Backend {
	case config.BackendPostgres:
		a.logger.Info("connecting to postgres")
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             a.cfg.Database.DSN,
			MaxConns:        a.cfg.Database.MaxConns,
			MinConns:        a.cfg.Database.MinConns,
			MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case config.BackendMemory:
		a.logger.Warn("using in-memory store; records are lost on exit")
		return memory.NewStore(a.clock), nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", a.cfg.Database.Backend)
	}
}

func (a *App) buildDriver(rendered, apiFetcher ingest.Fetcher) (*fetcher.Driver, error) {
	fc := a.cfg.Fetch
	if apiFetcher == nil {
		apiFetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent: fc.UserAgent,
			Timeout:   fc.APITimeout,
		})
	}
	if rendered == nil {
		if fc.Headless {
			browser, err := headless.NewChromedp(headless.Config{
				UserAgent:         fc.UserAgent,
				ViewportWidth:     fc.ViewportWidth,
				ViewportHeight:    fc.ViewportHeight,
				NavigationTimeout: fc.PageTimeout,
				SettleDelay:       fc.SettleDelay,
				ExecPath:          fc.ChromePath,
				ShowBrowser:       fc.ShowBrowser,
			})
			if err != nil {
				return nil, fmt.Errorf("build headless fetcher: %w", err)
			}
			rendered = browser
		} else {
			a.logger.Warn("headless browser disabled; rendered_page stages will fail")
			rendered = headless.NewNoop()
		}
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   fc.RequestsPerSecond,
		DefaultBurst: fc.Burst,
	})
	return fetcher.NewDriver(fetcher.Config{
		PageTimeout: fc.PageTimeout,
		APITimeout:  fc.APITimeout,
	}, rendered, apiFetcher, limiter, a.logger), nil
}

func (a *App) openArchive(ctx context.Context) (ingest.BlobStore, error) {
	ac := a.cfg.Archive
	switch ac.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendMemory:
		return memory.NewBlobStore(), nil
	case config.BackendLocal:
		store, err := local.New(local.Config{BaseDir: ac.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("open local archive: %w", err)
		}
		return store, nil
	case config.BackendGCS:
		client, err := gcs.NewClient(ctx, ac.Bucket, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: ac.Bucket, Prefix: ac.Prefix})
		if err != nil {
			return nil, fmt.Errorf("open gcs archive: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", ac.Backend)
	}
}

func (a *App) openPublisher(ctx context.Context) error {
	if !a.cfg.PubSub.Enabled() {
		return nil
	}
	a.logger.Info("connecting to pubsub", zap.String("topic", a.cfg.PubSub.Topic))
	pub, err := pubsubpublisher.NewClient(ctx, pubsubpublisher.Config{
		ProjectID: a.cfg.PubSub.ProjectID,
		Topic:     a.cfg.PubSub.Topic,
	})
	if err != nil {
		return fmt.Errorf("open pubsub publisher: %w", err)
	}
	a.publisher = pub
	a.closers = append(a.closers, pub.Close)
	return nil
}

func (a *App) startHub(ctx context.Context, reg prometheus.Registerer) error {
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return err
	}
	pc := a.cfg.Progress
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     pc.BufferSize,
		MaxBatchEvents: pc.MaxBatchEvents,
		MaxBatchWait:   pc.MaxBatchWait,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger,
	}, sinks.NewLogSink(a.logger), promSink)
	return nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Clock returns the process clock.
func (a *App) Clock() ingest.Clock { return a.clock }

// Store returns the record store.
func (a *App) Store() ingest.Store { return a.store }

// Orchestrator returns the pipeline orchestrator.
func (a *App) Orchestrator() *pipeline.Orchestrator { return a.orch }

// Registry returns the active-run registry the orchestrator reports to.
func (a *App) Registry() *api.Registry { return a.registry }

// Close releases every service in reverse order of acquisition. It is safe on a partially
// built App and repeated calls are no-ops.
func (a *App) Close() {
	a.closeOnce.Do(a.close)
}

func (a *App) close() {
	var errs []error
	if a.hub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), hubCloseTimeout)
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if a.driver != nil {
		if err := a.driver.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close fetch driver: %w", err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error shutting down application services", zap.Error(err))
	}
	a.logger.Info("application services stopped")
}
