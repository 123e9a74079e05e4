// Package collyfetcher implements the JSON API fetch strategy using gocolly.
package collyfetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

const acceptJSON = "application/json, text/plain;q=0.9, */*;q=0.8"

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements ingest.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchState collects what the hooks observed during one visit.
type fetchState struct {
	result ingest.FetchResult
	status int
	err    error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Open executes a single GET and validates the body is JSON.
func (f *Fetcher) Open(ctx context.Context, req ingest.FetchRequest) (ingest.FetchResult, error) {
	start := time.Now()
	state := &fetchState{}
	collector := f.buildCollector(req, start, state)

	if err := f.runCollector(ctx, collector, req, state); err != nil {
		return ingest.FetchResult{}, err
	}
	if !json.Valid(state.result.Body) {
		return ingest.FetchResult{}, ingest.NewFetchError(ingest.ErrContentNotReady, req.URL,
			state.result.StatusCode, errors.New("response body is not valid json"))
	}
	return state.result, nil
}

func (f *Fetcher) buildCollector(req ingest.FetchRequest, start time.Time, state *fetchState) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	if collector.UserAgent == "" {
		collector.UserAgent = defaultUserAgent
	}
	// Clones share the visited set; pages are re-read on every run.
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.timeout(req.Timeout))

	f.configureCollectorHooks(collector, req, start, state)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, req ingest.FetchRequest, start time.Time, state *fetchState) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptJSON)
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	hooks.OnResponse(func(r *colly.Response) {
		finalURL := req.URL
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		contentType := ""
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		state.status = r.StatusCode
		state.result = ingest.FetchResult{
			RequestURL:  req.URL,
			FinalURL:    finalURL,
			Strategy:    ingest.StrategyJSONAPI,
			StatusCode:  r.StatusCode,
			ContentType: contentType,
			Body:        append([]byte(nil), r.Body...),
			FetchedAt:   start.UTC(),
			Duration:    time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			state.status = r.StatusCode
		}
		state.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, req ingest.FetchRequest, state *fetchState) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(req.URL)
	}()

	select {
	case <-ctx.Done():
		return ingest.NewFetchError(ingest.ErrNavigationTimeout, req.URL, 0, fmt.Errorf("colly fetch canceled: %w", ctx.Err()))
	case err := <-done:
		if err == nil {
			err = state.err
		}
		if err == nil {
			return nil
		}
		return classify(req.URL, state.status, err)
	}
}

// classify maps a failed visit onto the fetch error taxonomy.
func classify(url string, status int, err error) error {
	var netErr net.Error
	switch {
	case status >= http.StatusMultipleChoices:
		return ingest.NewFetchError(ingest.ErrResourceUnavailable, url, status, err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return ingest.NewFetchError(ingest.ErrNavigationTimeout, url, 0, err)
	default:
		return ingest.NewFetchError(ingest.ErrResourceUnavailable, url, status, err)
	}
}

func (f *Fetcher) timeout(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	if f.cfg.Timeout > 0 {
		return f.cfg.Timeout
	}
	return 30 * time.Second
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36"

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
