// Package headless contains the rendered-page fetcher backed by a headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

// DefaultUserAgent is a current desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36"

// maskWebdriver hides the automation marker before any page script runs.
const maskWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
window.chrome = window.chrome || {runtime: {}};
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});`

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	// SettleDelay is slept after the page is ready so late scripts can fill the DOM.
	SettleDelay time.Duration
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
	// ShowBrowser runs Chrome with a visible window.
	ShowBrowser bool
}

// Fetcher implements ingest.Fetcher using chromedp. It owns one browser for its lifetime and
// opens one tab per call.
type Fetcher struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc

	mu            sync.Mutex
	browser       context.Context
	browserCancel context.CancelFunc
	startErr      error
	closed        bool
}

// NewChromedp creates a headless fetcher. The browser is launched lazily by Start or the
// first Open.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.ViewportWidth < 0 || cfg.ViewportHeight < 0 {
		return nil, fmt.Errorf("viewport must be >= 0")
	}
	if cfg.SettleDelay < 0 {
		return nil, fmt.Errorf("settle delay must be >= 0")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.ViewportWidth == 0 {
		cfg.ViewportWidth = 1920
	}
	if cfg.ViewportHeight == 0 {
		cfg.ViewportHeight = 1080
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	return &Fetcher{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if cfg.ShowBrowser {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Start launches the browser. It is safe to call more than once; a failed launch is sticky.
func (f *Fetcher) Start(ctx context.Context) error {
	_, err := f.session(ctx)
	return err
}

func (f *Fetcher) session(ctx context.Context) (context.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ingest.NewFetchError(ingest.ErrSessionUnavailable, "", 0, errors.New("fetcher closed"))
	}
	if f.startErr != nil {
		return nil, f.startErr
	}
	if f.browser != nil {
		if err := f.browser.Err(); err != nil {
			return nil, ingest.NewFetchError(ingest.ErrSessionUnavailable, "", 0, fmt.Errorf("browser exited: %w", err))
		}
		return f.browser, nil
	}

	browserCtx, browserCancel := chromedp.NewContext(f.allocator)
	stop := context.AfterFunc(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		browserCancel()
		f.startErr = ingest.NewFetchError(ingest.ErrSessionUnavailable, "", 0, fmt.Errorf("launch browser: %w", err))
		return nil, f.startErr
	}
	f.browser = browserCtx
	f.browserCancel = browserCancel
	return browserCtx, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if f.browserCancel != nil {
		f.browserCancel()
	}
	f.allocCancel()
	return nil
}

// Open navigates a fresh tab to req.URL and returns the rendered DOM.
func (f *Fetcher) Open(ctx context.Context, req ingest.FetchRequest) (ingest.FetchResult, error) {
	browser, err := f.session(ctx)
	if err != nil {
		return ingest.FetchResult{}, err
	}

	tabCtx, tabCancel := chromedp.NewContext(browser)
	defer tabCancel()

	tabCtx, cancel := context.WithTimeout(tabCtx, f.navTimeout(req.Timeout))
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := f.runHeadless(tabCtx, req)
	if err != nil {
		return ingest.FetchResult{}, err
	}

	status, responseURL, mimeType := meta.snapshotWithFallbacks(req.URL, finalURL)
	if status >= http.StatusBadRequest {
		return ingest.FetchResult{}, ingest.NewFetchError(ingest.ErrResourceUnavailable, req.URL, status, nil)
	}
	return ingest.FetchResult{
		RequestURL:  req.URL,
		FinalURL:    responseURL,
		Strategy:    ingest.StrategyRenderedPage,
		StatusCode:  status,
		ContentType: mimeType,
		Body:        []byte(html),
		FetchedAt:   start.UTC(),
		Duration:    time.Since(start),
	}, nil
}

type fetchPhase int

const (
	phaseNavigate fetchPhase = iota
	phaseReady
	phaseCapture
)

func (f *Fetcher) runHeadless(ctx context.Context, req ingest.FetchRequest) (string, string, error) {
	if err := chromedp.Run(ctx,
		f.networkSetupAction(),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return "", "", classify(req.URL, phaseNavigate, err)
	}

	if req.ReadySelector != "" {
		if err := chromedp.Run(ctx, chromedp.WaitReady(req.ReadySelector, chromedp.ByQuery)); err != nil {
			return "", "", classify(req.URL, phaseReady, err)
		}
	}

	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{}
	if f.cfg.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(f.cfg.SettleDelay))
	}
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", classify(req.URL, phaseCapture, err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).
			WithAcceptLanguage("en-US,en;q=0.9").Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(
			int64(f.cfg.ViewportWidth), int64(f.cfg.ViewportHeight), 1, false,
		).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(maskWebdriver).Do(ctx); err != nil {
			return fmt.Errorf("mask webdriver: %w", err)
		}
		return nil
	})
}

// classify maps a chromedp failure onto the fetch error taxonomy.
func classify(url string, phase fetchPhase, err error) error {
	timedOut := errors.Is(err, context.DeadlineExceeded)
	switch {
	case phase == phaseReady:
		return ingest.NewFetchError(ingest.ErrContentNotReady, url, 0, err)
	case timedOut:
		return ingest.NewFetchError(ingest.ErrNavigationTimeout, url, 0, err)
	case phase == phaseCapture:
		return ingest.NewFetchError(ingest.ErrContentNotReady, url, 0, err)
	default:
		return ingest.NewFetchError(ingest.ErrResourceUnavailable, url, 0, err)
	}
}

type responseMeta struct {
	mu       sync.RWMutex
	status   int
	url      string
	mimeType string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mimeType = event.Response.MimeType
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string, string) {
	m.mu.RLock()
	status, url, mimeType := m.status, m.url, m.mimeType
	m.mu.RUnlock()

	// The location after scripts ran beats the first document response.
	switch {
	case finalURL != "":
		url = finalURL
	case url != "":
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	if mimeType == "" {
		mimeType = "text/html"
	}
	return status, url, mimeType
}

func (f *Fetcher) navTimeout(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return 60 * time.Second
}
