// Package cmd defines the creator-ingest command line: one subcommand per pipeline stage plus
// repair, serve and schema.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-ingest/internal/api"
	"github.com/JakeFAU/creator-ingest/internal/app"
	"github.com/JakeFAU/creator-ingest/internal/config"
	"github.com/JakeFAU/creator-ingest/internal/ingest"
	"github.com/JakeFAU/creator-ingest/internal/logging"
	"github.com/JakeFAU/creator-ingest/internal/pipeline"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what the subcommands need from the service container. Tests inject their own.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Clock() ingest.Clock
	Orchestrator() *pipeline.Orchestrator
	Registry() *api.Registry
}

// appFactory builds the App from a config file path.
type appFactory func(ctx context.Context, cfgPath string) (App, error)

func defaultApp(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

// newRootCmd creates the root command. Every subcommand except schema gets an App built in
// PersistentPreRunE and closed in PersistentPostRun.
func newRootCmd(newApp appFactory) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "creator-ingest",
		Short: "Staged creator and media ingestion.",
		Long: `creator-ingest walks creator directories, lists each creator's media and
enriches media items with playable URLs. Each stage can run from the command
line or be triggered over HTTP with "serve".`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
				_ = appInstance.Logger().Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); INGEST_* env vars override it")

	cmd.AddCommand(
		newStageCmd(ingest.StageDiscovery),
		newStageCmd(ingest.StageListing),
		newStageCmd(ingest.StageEnrichment),
		newRepairCmd(),
		newServeCmd(),
		newSchemaCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services are not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd(defaultApp).ExecuteContext(context.Background()); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		os.Exit(1)
	}
}
