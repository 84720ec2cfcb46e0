package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ivrit-hub/progress-hub/config"
	"github.com/ivrit-hub/progress-hub/pkg/logger"
)

//nolint:gochecknoglobals // Cobra boilerplate
var logLevel string

//nolint:gochecknoglobals // Cobra boilerplate
var storageDriver string

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "progressd",
	Short: "Progress and gamification service for Ivrit Hub learners",
	Long: `progressd tracks XP, levels, daily streaks, achievements and learning
goals of Ivrit Hub users and serves them over a JSON API.

Configuration is read from the environment (see config/.env.example).
Flags override the matching variables.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&storageDriver, "storage", "", "Storage driver: postgres, sqlite, memory (overrides STORAGE_DRIVER)")
}

// loadConfig reads the configuration and applies persistent flags.
func loadConfig() (cfg *config.Config, err error) {
	cfg, err = config.Load()
	if err != nil {
		err = errors.Wrap(err, "failed to load config")
		return cfg, err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if storageDriver != "" {
		cfg.Storage.Driver = storageDriver
		err = cfg.Validate()
		if err != nil {
			err = errors.Wrap(err, "invalid --storage")
			return cfg, err
		}
	}

	return cfg, err
}

// newLogger builds the process logger from the configuration.
func newLogger(cfg *config.Config) (log *logger.Logger, err error) {
	log, err = logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  logger.Format(cfg.Log.Format),
		Env:     string(cfg.App.Env),
		Service: cfg.App.Name,
	})
	if err != nil {
		err = errors.Wrap(err, "failed to create logger")
	}
	return log, err
}
