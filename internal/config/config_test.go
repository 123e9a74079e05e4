package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

const sourcesYAML = `
sources:
  fansite:
    base_url: https://fansite.example
    cdn_base_url: https://cdn.fansite.example
    page_limit: 24
    stages:
      discovery:
        url_template: /api/creators?page={page}&limit={limit}
        strategy: json_api
        adapter: creator-json
      listing:
        url_template: /{creator_key}
        strategy: rendered_page
        adapter: media-html
        ready_selector: article
      enrichment:
        strategy: rendered_page
        adapter: detail-html
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
database:
  backend: memory
fetch:
  viewport_width: 1280
  page_timeout: 45s
  ready_selector: main
  requests_per_second: 0.5
pipeline:
  pacing: 3s
  page_end: 10
  max_consecutive_errors: 5
archive:
  backend: local
  base_dir: /tmp/snapshots
pubsub:
  project_id: proj
  topic: runs
logging:
  development: true
  level: debug
`+sourcesYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "secret", cfg.Auth.APIKey)
	assert.Equal(t, BackendMemory, cfg.Database.Backend)
	assert.Equal(t, 1280, cfg.Fetch.ViewportWidth)
	assert.Equal(t, 1080, cfg.Fetch.ViewportHeight, "unset keys keep defaults")
	assert.Equal(t, 45*time.Second, cfg.Fetch.PageTimeout)
	assert.InDelta(t, 0.5, cfg.Fetch.RequestsPerSecond, 1e-9)
	assert.Equal(t, 3*time.Second, cfg.Pipeline.Pacing)
	assert.Equal(t, 10, cfg.Pipeline.PageEnd)
	assert.Equal(t, 5, cfg.Pipeline.MaxConsecutiveErrors)
	assert.Equal(t, BackendLocal, cfg.Archive.Backend)
	assert.True(t, cfg.PubSub.Enabled())
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "debug", cfg.Logging.Level)

	sources, err := cfg.IngestSources()
	require.NoError(t, err)
	require.Len(t, sources, 1)
	src := sources[0]
	assert.Equal(t, "fansite", src.ID)
	assert.Equal(t, 24, src.PageLimit)
	assert.Equal(t, ingest.StrategyJSONAPI, src.Stages[ingest.StageDiscovery].Strategy)
	assert.Equal(t, "article", src.Stages[ingest.StageListing].ReadySelector)
	assert.Equal(t, "main", src.Stages[ingest.StageEnrichment].ReadySelector, "fetch.ready_selector is the fallback")
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "database:\n  backend: memory\n"+sourcesYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.Pacing)
	assert.Equal(t, 1, cfg.Pipeline.PageStart)
	assert.Equal(t, 3, cfg.Pipeline.MaxConsecutiveErrors)
	assert.Equal(t, 60*time.Second, cfg.Fetch.PageTimeout)
	assert.Equal(t, 30*time.Second, cfg.Fetch.APITimeout)
	assert.Equal(t, BackendNone, cfg.Archive.Backend)
	assert.False(t, cfg.PubSub.Enabled())
	assert.Equal(t, 1024, cfg.Progress.BufferSize)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Backend: BackendMemory},
			Archive:  ArchiveConfig{Backend: BackendNone},
			Sources: map[string]SourceConfig{
				"fansite": {
					BaseURL: "https://fansite.example",
					Stages: map[string]StageSourceConfig{
						"discovery": {URLTemplate: "/creators?page={page}", Strategy: "json_api", Adapter: "creator-json"},
					},
				},
			},
		}
	}
	require.NoError(t, base().Validate())

	tests := map[string]func(*Config){
		"port":            func(c *Config) { c.Server.Port = 0 },
		"auth key":        func(c *Config) { c.Auth.Enabled = true },
		"postgres dsn":    func(c *Config) { c.Database.Backend = BackendPostgres },
		"backend":         func(c *Config) { c.Database.Backend = "sqlite" },
		"page range":      func(c *Config) { c.Pipeline.PageStart, c.Pipeline.PageEnd = 5, 2 },
		"archive bucket":  func(c *Config) { c.Archive.Backend = BackendGCS },
		"archive backend": func(c *Config) { c.Archive.Backend = "s3" },
		"pubsub pair":     func(c *Config) { c.PubSub.ProjectID = "proj" },
		"no sources":      func(c *Config) { c.Sources = nil },
		"bad strategy": func(c *Config) {
			c.Sources["fansite"].Stages["discovery"] = StageSourceConfig{URLTemplate: "/x", Strategy: "ftp", Adapter: "creator-json"}
		},
		"relative base": func(c *Config) { c.Sources["other"] = SourceConfig{BaseURL: "/relative"} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "database:\n  backend: memory\n"+sourcesYAML)
	t.Setenv("INGEST_SERVER_PORT", "7070")
	t.Setenv("INGEST_PIPELINE_PACING", "500ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.Pacing)
}
