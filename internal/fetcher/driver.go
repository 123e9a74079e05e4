// Package fetcher routes fetch requests to the strategy-specific fetchers.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
	"github.com/JakeFAU/creator-ingest/internal/metrics"
)

// Default per-call timeouts.
const (
	DefaultPageTimeout = 60 * time.Second
	DefaultAPITimeout  = 30 * time.Second
)

// Waiter throttles requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Starter is implemented by fetchers that hold a long-lived session.
type Starter interface {
	Start(ctx context.Context) error
}

// Closer is implemented by fetchers that must release resources.
type Closer interface {
	Close() error
}

// Config sets the per-strategy defaults.
type Config struct {
	PageTimeout time.Duration
	APITimeout  time.Duration
}

// Driver implements ingest.Fetcher by dispatching on the request strategy.
type Driver struct {
	cfg      Config
	rendered ingest.Fetcher
	api      ingest.Fetcher
	limiter  Waiter
	logger   *zap.Logger
}

// NewDriver wires the strategy fetchers. limiter and logger may be nil.
func NewDriver(cfg Config, rendered, api ingest.Fetcher, limiter Waiter, logger *zap.Logger) *Driver {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = DefaultPageTimeout
	}
	if cfg.APITimeout <= 0 {
		cfg.APITimeout = DefaultAPITimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		cfg:      cfg,
		rendered: rendered,
		api:      api,
		limiter:  limiter,
		logger:   logger.Named("fetch"),
	}
}

// Open fetches req with the fetcher registered for its strategy.
func (d *Driver) Open(ctx context.Context, req ingest.FetchRequest) (ingest.FetchResult, error) {
	target, err := d.route(req)
	if err != nil {
		return ingest.FetchResult{}, err
	}
	if req.Timeout <= 0 {
		req.Timeout = d.defaultTimeout(req.Strategy)
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, req.URL); err != nil {
			return ingest.FetchResult{}, ingest.NewFetchError(ingest.ErrNavigationTimeout, req.URL, 0, err)
		}
	}

	start := time.Now()
	res, err := target.Open(ctx, req)
	elapsed := time.Since(start)
	metrics.ObserveFetch(string(req.Strategy), req.URL, ingest.ErrorKind(err), len(res.Body), elapsed)
	if err != nil {
		d.logger.Debug("fetch failed",
			zap.String("url", req.URL),
			zap.String("strategy", string(req.Strategy)),
			zap.String("kind", ingest.ErrorKind(err)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return ingest.FetchResult{}, err
	}
	d.logger.Debug("fetched",
		zap.String("url", req.URL),
		zap.String("strategy", string(req.Strategy)),
		zap.Int("status", res.StatusCode),
		zap.Int("bytes", len(res.Body)),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

// Start launches any session-holding fetcher so a missing browser surfaces before the
// first item.
func (d *Driver) Start(ctx context.Context) error {
	if s, ok := d.rendered.(Starter); ok {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("start rendered fetcher: %w", err)
		}
	}
	return nil
}

// Close releases the underlying fetchers.
func (d *Driver) Close() error {
	var errs []error
	for _, f := range []ingest.Fetcher{d.rendered, d.api} {
		if c, ok := f.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (d *Driver) route(req ingest.FetchRequest) (ingest.Fetcher, error) {
	switch req.Strategy {
	case ingest.StrategyRenderedPage:
		if d.rendered == nil {
			return nil, ingest.NewFetchError(ingest.ErrSessionUnavailable, req.URL, 0,
				errors.New("no rendered-page fetcher configured"))
		}
		return d.rendered, nil
	case ingest.StrategyJSONAPI:
		if d.api == nil {
			return nil, ingest.NewFetchError(ingest.ErrResourceUnavailable, req.URL, 0,
				errors.New("no json api fetcher configured"))
		}
		return d.api, nil
	default:
		return nil, fmt.Errorf("unknown fetch strategy %q", req.Strategy)
	}
}

func (d *Driver) defaultTimeout(strategy ingest.Strategy) time.Duration {
	if strategy == ingest.StrategyRenderedPage {
		return d.cfg.PageTimeout
	}
	return d.cfg.APITimeout
}
