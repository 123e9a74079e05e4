package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-ingest/internal/api"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP run trigger",
		Long: `Starts the HTTP server. POST /v1/runs starts a stage and streams its progress
as NDJSON until the run finishes; /healthz and /metrics are always open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				return serve(cmd.Context(), appInstance, port)
			}
			return serve(cmd.Context(), appInstance, appInstance.Config().Server.Port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}

func serve(parent context.Context, appInstance App, port int) error {
	cfg := appInstance.Config()
	logger := appInstance.Logger()

	apiKey := ""
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	registry := appInstance.Registry()
	apiServer := api.NewServer(appInstance.Orchestrator(), registry, appInstance.Clock(), api.Config{
		APIKey:         apiKey,
		RequestTimeout: cfg.Server.RequestTimeout,
		StreamBuffer:   cfg.Server.StreamBuffer,
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	logger.Info("http server starting", zap.Int("port", port), zap.Bool("auth", apiKey != ""))
	go func() {
		err := srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			stop()
		}
		serveErr <- err
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")
	for _, run := range registry.Active() {
		registry.Cancel(run.RunID)
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
