package app_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/creator-ingest/internal/app"
	"github.com/JakeFAU/creator-ingest/internal/config"
	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		Database: config.DatabaseConfig{Backend: config.BackendMemory},
		Fetch:    config.FetchConfig{APITimeout: 5 * time.Second},
		Pipeline: config.PipelineConfig{Pacing: -1, MaxConsecutiveErrors: 3},
		Archive:  config.ArchiveConfig{Backend: config.BackendMemory},
		Progress: config.ProgressConfig{BufferSize: 64, MaxBatchEvents: 8, MaxBatchWait: 10 * time.Millisecond},
		Sources: map[string]config.SourceConfig{
			"fansite": {
				BaseURL:   baseURL,
				PageLimit: 3,
				Stages: map[string]config.StageSourceConfig{
					"discovery": {
						URLTemplate: "/api/creators?page={page}&limit={limit}",
						Strategy:    "json_api",
						Adapter:     "creator-json",
					},
				},
			},
		},
	}
}

func TestNewRunsDiscoveryAgainstHTTPSource(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") != "1" {
			fmt.Fprint(w, `{"creators":[]}`)
			return
		}
		fmt.Fprint(w, `{"creators":[{"id":"7","display_name":"Seven"},{"id":"8","display_name":"Eight"}]}`)
	}))
	t.Cleanup(srv.Close)

	a, err := app.New(t.Context(), testConfig(srv.URL), zaptest.NewLogger(t),
		app.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Equal(t, []string{"fansite"}, a.Orchestrator().Sources())

	report, err := a.Orchestrator().Run(context.Background(), ingest.RunRequest{
		SourceID: "fansite",
		Stage:    ingest.StageDiscovery,
	})
	require.NoError(t, err)
	assert.Equal(t, ingest.RunCompleted, report.State)
	assert.Equal(t, 2, report.RecordsSaved)
	assert.Zero(t, report.Errors)

	creators, err := a.Store().ListCreators(context.Background(), "fansite")
	require.NoError(t, err)
	assert.Len(t, creators, 2)
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://example.test")
	cfg.Database.Backend = "sqlite"
	_, err := app.New(t.Context(), cfg, nil, app.WithRegisterer(prometheus.NewRegistry()))
	require.ErrorContains(t, err, `unknown database backend "sqlite"`)

	cfg = testConfig("https://example.test")
	cfg.Archive.Backend = "s3"
	_, err = app.New(t.Context(), cfg, nil, app.WithRegisterer(prometheus.NewRegistry()))
	require.ErrorContains(t, err, `unknown archive backend "s3"`)
}

func TestNewLocalArchiveRequiresDirectory(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://example.test")
	cfg.Archive.Backend = config.BackendLocal
	_, err := app.New(t.Context(), cfg, nil, app.WithRegisterer(prometheus.NewRegistry()))
	require.ErrorContains(t, err, "open local archive")

	cfg.Archive.BaseDir = t.TempDir()
	a, err := app.New(t.Context(), cfg, nil, app.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	a.Close()
}

func TestAccessors(t *testing.T) {
	t.Parallel()

	a, err := app.New(t.Context(), testConfig("https://example.test"), nil,
		app.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NotNil(t, a.Registry())
	assert.Empty(t, a.Registry().Active())
	assert.Equal(t, config.BackendMemory, a.Config().Database.Backend)
	assert.NotNil(t, a.Clock())
	assert.NotNil(t, a.Logger())
}
