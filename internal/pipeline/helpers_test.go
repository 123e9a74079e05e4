package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/creator-ingest/internal/adapter"
	"github.com/JakeFAU/creator-ingest/internal/clock/system"
	"github.com/JakeFAU/creator-ingest/internal/ingest"
	"github.com/JakeFAU/creator-ingest/internal/progress"
	memorypublisher "github.com/JakeFAU/creator-ingest/internal/publisher/memory"
	"github.com/JakeFAU/creator-ingest/internal/storage/memory"
)

const testBase = "https://example.test"

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeFetcher serves scripted bodies by URL. Unknown URLs fail as unavailable.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	calls  []string
	onOpen func(url string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeFetcher) serve(url, body string) { f.bodies[url] = body }

func (f *fakeFetcher) fail(url string, err error) { f.errs[url] = err }

func (f *fakeFetcher) Open(_ context.Context, req ingest.FetchRequest) (ingest.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	body, ok := f.bodies[req.URL]
	err := f.errs[req.URL]
	hook := f.onOpen
	f.mu.Unlock()
	if hook != nil {
		hook(req.URL)
	}
	if err != nil {
		return ingest.FetchResult{}, err
	}
	if !ok {
		return ingest.FetchResult{}, ingest.NewFetchError(ingest.ErrResourceUnavailable, req.URL, 404, errors.New("not found"))
	}
	return ingest.FetchResult{
		RequestURL: req.URL,
		Strategy:   req.Strategy,
		StatusCode: 200,
		Body:       []byte(body),
		FetchedAt:  testNow,
	}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakePacer records requested pauses without sleeping.
type fakePacer struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (p *fakePacer) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits = append(p.waits, d)
	return nil
}

func (p *fakePacer) Waits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waits)
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

// eventLog collects emitted progress events.
type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (l *eventLog) Emit(evt progress.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
}

func (l *eventLog) Events() []progress.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]progress.Event(nil), l.events...)
}

func (l *eventLog) ofType(typ progress.Type) []progress.Event {
	var out []progress.Event
	for _, evt := range l.Events() {
		if evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}

func testSource() ingest.Source {
	return ingest.Source{
		ID:        "fansite",
		BaseURL:   testBase,
		PageLimit: 3,
		Stages: map[ingest.Stage]ingest.StageSource{
			ingest.StageDiscovery: {
				URLTemplate: "/api/creators?page={page}&limit={limit}",
				Strategy:    ingest.StrategyJSONAPI,
				Adapter:     adapter.KindCreatorJSON,
			},
			ingest.StageListing: {
				URLTemplate: "/api/creators/{creator_external_id}/media?page={page}&limit={limit}",
				Strategy:    ingest.StrategyJSONAPI,
				Adapter:     adapter.KindMediaJSON,
			},
			ingest.StageEnrichment: {
				URLTemplate: "/api/media/{post_id}/{media_id}",
				Strategy:    ingest.StrategyJSONAPI,
				Adapter:     adapter.KindDetailJSON,
			},
		},
	}
}

func directoryURL(page int) string {
	return fmt.Sprintf("%s/api/creators?page=%d&limit=3", testBase, page)
}

func listingURL(externalID string, page int) string {
	return fmt.Sprintf("%s/api/creators/%s/media?page=%d&limit=3", testBase, externalID, page)
}

func detailURL(postID, mediaID string) string {
	return fmt.Sprintf("%s/api/media/%s/%s", testBase, postID, mediaID)
}

func creatorsBody(ids ...string) string {
	body := `{"creators":[`
	for i, id := range ids {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"id":"%s","display_name":"Creator %s","username":"c%s"}`, id, id, id)
	}
	return body + `]}`
}

func mediaBody(postIDs ...string) string {
	body := `{"creator":{"followers_count":"1200"},"media":[`
	for i, id := range postIDs {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"post_id":"%s","media_id":"m%s","url":"%s/post/%s","title":"Clip %s"}`, id, id, testBase, id, id)
	}
	return body + `]}`
}

func detailBody(postID string) string {
	return fmt.Sprintf(`{"media":{"video_url":"https://cdn.example.test/v/%s.mp4","poster_url":"https://cdn.example.test/p/%s.jpg"}}`, postID, postID)
}

type harness struct {
	orch      *Orchestrator
	fetcher   *fakeFetcher
	pacer     *fakePacer
	store     *memory.Store
	archive   *memory.BlobStore
	events    *eventLog
	publisher *memorypublisher.Publisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithConfig(t, Config{Pacing: time.Second})
}

func newHarnessWithConfig(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		fetcher:   newFakeFetcher(),
		pacer:     &fakePacer{},
		store:     memory.NewStore(system.Fixed(testNow)),
		archive:   memory.NewBlobStore(),
		events:    &eventLog{},
		publisher: memorypublisher.New(),
	}
	orch, err := New(cfg, Deps{
		Fetcher:   h.fetcher,
		Store:     h.store,
		Adapters:  adapter.NewRegistry(),
		Sources:   []ingest.Source{testSource()},
		Clock:     system.Fixed(testNow),
		IDs:       &seqIDs{},
		Pacer:     h.pacer,
		Archive:   h.archive,
		Publisher: h.publisher,
		Emitter:   h.events,
		Logger:    zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	h.orch = orch
	return h
}

func (h *harness) run(t *testing.T, req ingest.RunRequest) ingest.RunReport {
	t.Helper()
	return h.runCtx(t, context.Background(), req)
}

func (h *harness) runCtx(t *testing.T, ctx context.Context, req ingest.RunRequest) ingest.RunReport {
	t.Helper()
	if req.SourceID == "" {
		req.SourceID = "fansite"
	}
	report, err := h.orch.Run(ctx, req)
	require.NoError(t, err)
	return report
}

// seedCreators runs a two page discovery producing creators 101..104.
func (h *harness) seedCreators(t *testing.T) {
	t.Helper()
	h.fetcher.serve(directoryURL(1), creatorsBody("101", "102", "103"))
	h.fetcher.serve(directoryURL(2), creatorsBody("104"))
	report := h.run(t, ingest.RunRequest{Stage: ingest.StageDiscovery, PageStart: 1, PageEnd: 2})
	require.Equal(t, 4, report.RecordsSaved)
}

func (h *harness) creatorByExternalID(t *testing.T, externalID string) ingest.Creator {
	t.Helper()
	creators, err := h.store.ListCreators(context.Background(), "fansite")
	require.NoError(t, err)
	for _, c := range creators {
		if c.ExternalID == externalID {
			return c
		}
	}
	t.Fatalf("creator %s not found", externalID)
	return ingest.Creator{}
}
