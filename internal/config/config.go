// Package config loads and validates ingest configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
	"github.com/JakeFAU/creator-ingest/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. INGEST_DATABASE_DSN.
const EnvPrefix = "INGEST"

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendNone     = "none"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig            `mapstructure:"server"`
	Auth     AuthConfig              `mapstructure:"auth"`
	Database DatabaseConfig          `mapstructure:"database"`
	Fetch    FetchConfig             `mapstructure:"fetch"`
	Pipeline PipelineConfig          `mapstructure:"pipeline"`
	Archive  ArchiveConfig           `mapstructure:"archive"`
	PubSub   PubSubConfig            `mapstructure:"pubsub"`
	Progress ProgressConfig          `mapstructure:"progress"`
	Logging  logging.Config          `mapstructure:"logging"`
	Sources  map[string]SourceConfig `mapstructure:"sources"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	StreamBuffer    int           `mapstructure:"stream_buffer"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DatabaseConfig selects and tunes the record store.
type DatabaseConfig struct {
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// FetchConfig configures both fetch strategies and the per-host limiter.
type FetchConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	ViewportWidth     int           `mapstructure:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height"`
	PageTimeout       time.Duration `mapstructure:"page_timeout"`
	APITimeout        time.Duration `mapstructure:"api_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	ReadySelector     string        `mapstructure:"ready_selector"`
	Headless          bool          `mapstructure:"headless"`
	ChromePath        string        `mapstructure:"chrome_path"`
	ShowBrowser       bool          `mapstructure:"show_browser"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// PipelineConfig holds run defaults that CLI flags may override.
type PipelineConfig struct {
	Pacing               time.Duration `mapstructure:"pacing"`
	PageStart            int           `mapstructure:"page_start"`
	PageEnd              int           `mapstructure:"page_end"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`
	MaxPages             int           `mapstructure:"max_pages"`
	ForceRescrape        bool          `mapstructure:"force_rescrape"`
}

// ArchiveConfig selects where raw payloads of problem pages are kept.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig names the topic run reports are published to. Empty disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether report publishing is configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" || c.Topic != ""
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
}

// SourceConfig describes one site. Its map key is the source id.
type SourceConfig struct {
	BaseURL    string                       `mapstructure:"base_url"`
	CDNBaseURL string                       `mapstructure:"cdn_base_url"`
	PageLimit  int                          `mapstructure:"page_limit"`
	Stages     map[string]StageSourceConfig `mapstructure:"stages"`
}

// StageSourceConfig configures one stage of a source.
type StageSourceConfig struct {
	URLTemplate   string `mapstructure:"url_template"`
	Strategy      string `mapstructure:"strategy"`
	Adapter       string `mapstructure:"adapter"`
	ReadySelector string `mapstructure:"ready_selector"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.stream_buffer", 256)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("database.backend", BackendPostgres)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.viewport_width", 1920)
	v.SetDefault("fetch.viewport_height", 1080)
	v.SetDefault("fetch.page_timeout", "60s")
	v.SetDefault("fetch.api_timeout", "30s")
	v.SetDefault("fetch.settle_delay", "1500ms")
	v.SetDefault("fetch.ready_selector", "")
	v.SetDefault("fetch.headless", true)
	v.SetDefault("fetch.chrome_path", "")
	v.SetDefault("fetch.show_browser", false)
	v.SetDefault("fetch.requests_per_second", 0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("pipeline.pacing", "2s")
	v.SetDefault("pipeline.page_start", 1)
	v.SetDefault("pipeline.page_end", 0)
	v.SetDefault("pipeline.max_consecutive_errors", 3)
	v.SetDefault("pipeline.max_pages", 0)
	v.SetDefault("pipeline.force_rescrape", false)
	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.base_dir", "data/snapshots")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 64)
	v.SetDefault("progress.max_batch_wait", "200ms")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	switch c.Database.Backend {
	case BackendPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("database.backend must be %s or %s, got %q", BackendPostgres, BackendMemory, c.Database.Backend)
	}
	if c.Database.MaxConns < 0 || c.Database.MinConns < 0 {
		return errors.New("database pool sizes must be >= 0")
	}
	if c.Fetch.ViewportWidth < 0 || c.Fetch.ViewportHeight < 0 {
		return errors.New("fetch viewport must be >= 0")
	}
	if c.Fetch.PageTimeout < 0 || c.Fetch.APITimeout < 0 || c.Fetch.SettleDelay < 0 {
		return errors.New("fetch timeouts must be >= 0")
	}
	if c.Fetch.RequestsPerSecond < 0 {
		return errors.New("fetch.requests_per_second must be >= 0")
	}
	if c.Pipeline.PageStart < 0 || c.Pipeline.PageEnd < 0 {
		return errors.New("pipeline page range must be >= 0")
	}
	if c.Pipeline.PageEnd > 0 && c.Pipeline.PageStart > c.Pipeline.PageEnd {
		return fmt.Errorf("pipeline.page_start %d is after pipeline.page_end %d", c.Pipeline.PageStart, c.Pipeline.PageEnd)
	}
	if c.Pipeline.MaxConsecutiveErrors < 0 || c.Pipeline.MaxPages < 0 {
		return errors.New("pipeline limits must be >= 0")
	}
	switch c.Archive.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if c.Archive.BaseDir == "" {
			return errors.New("archive.base_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Archive.Bucket == "" {
			return errors.New("archive.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend must be none, memory, local or gcs, got %q", c.Archive.Backend)
	}
	if c.PubSub.Enabled() && (c.PubSub.ProjectID == "" || c.PubSub.Topic == "") {
		return errors.New("pubsub.project_id and pubsub.topic must be set together")
	}
	if len(c.Sources) == 0 {
		return errors.New("at least one source must be configured")
	}
	if _, err := c.IngestSources(); err != nil {
		return err
	}
	return nil
}

// IngestSources converts the configured sources to the domain model, ordered by id.
func (c Config) IngestSources() ([]ingest.Source, error) {
	ids := make([]string, 0, len(c.Sources))
	for id := range c.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]ingest.Source, 0, len(ids))
	for _, id := range ids {
		sc := c.Sources[id]
		src := ingest.Source{
			ID:         id,
			BaseURL:    sc.BaseURL,
			CDNBaseURL: sc.CDNBaseURL,
			PageLimit:  sc.PageLimit,
			Stages:     make(map[ingest.Stage]ingest.StageSource, len(sc.Stages)),
		}
		for name, stage := range sc.Stages {
			ready := stage.ReadySelector
			if ready == "" {
				ready = c.Fetch.ReadySelector
			}
			src.Stages[ingest.Stage(strings.ToLower(name))] = ingest.StageSource{
				URLTemplate:   stage.URLTemplate,
				Strategy:      ingest.Strategy(strings.ToLower(stage.Strategy)),
				Adapter:       stage.Adapter,
				ReadySelector: ready,
			}
		}
		if err := src.Validate(); err != nil {
			return nil, fmt.Errorf("sources: %w", err)
		}
		out = append(out, src)
	}
	return out, nil
}
