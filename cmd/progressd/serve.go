package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ivrit-hub/progress-hub/internal/app"
	httpapi "github.com/ivrit-hub/progress-hub/internal/interface/http"
)

//nolint:gochecknoglobals // Cobra boilerplate
var servePort int

//nolint:gochecknoglobals // Cobra boilerplate
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the progress HTTP API",
	Long: `Run the progress HTTP API until SIGINT or SIGTERM.

The server drains in-flight requests and pending event handlers before exit.

Example:
  progressd serve
  progressd serve --port 9090 --storage memory`,
	RunE: runServe,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides HTTP_PORT)")
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.HTTP.Port = servePort
	}

	zl, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Logger

	log.Info("starting progress service",
		"env", cfg.App.Env,
		"version", cfg.App.Version,
		"timezone", cfg.App.Location.String(),
		"storage", cfg.Storage.Driver,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ, КЭШ, СОБЫТИЯ
	// ─────────────────────────────────────────────────────────────────────────
	c, err := app.Build(ctx, cfg, log)
	if err != nil {
		return errors.Wrap(err, "failed to build service")
	}
	defer func() {
		log.Info("releasing resources...")
		if cerr := c.Close(); cerr != nil {
			log.Error("failed to release resources", "error", cerr)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	server := httpapi.NewServer(c.HTTPConfig(), c.HTTPDependencies())
	errCh := server.StartAsync()

	log.Info("progress service is running",
		"http_address", cfg.HTTP.Address(),
		"redis", c.Cache != nil,
		"kafka", c.Forwarder != nil,
		"metrics", c.Metrics != nil,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Error("http server failed", "error", err)
			return err
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		return errors.Wrap(err, "shutdown")
	}

	log.Info("shutdown completed successfully")
	return nil
}
