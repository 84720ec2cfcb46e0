package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ivrit-hub/progress-hub/config"
	"github.com/ivrit-hub/progress-hub/internal/app"
	"github.com/ivrit-hub/progress-hub/internal/infrastructure/persistence/postgres"
	"github.com/ivrit-hub/progress-hub/internal/infrastructure/persistence/sqlite"
)

//nolint:gochecknoglobals // Cobra boilerplate
var migrateStatus bool

//nolint:gochecknoglobals // Cobra boilerplate
var migrateRollback bool

//nolint:gochecknoglobals // Cobra boilerplate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply pending migrations to the configured store.

PostgreSQL keeps versioned migrations that can be listed and rolled back.
SQLite creates its schema in place. The memory driver has nothing to migrate.

Example:
  progressd migrate
  progressd migrate --status
  progressd migrate --rollback`,
	RunE: runMigrate,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "List migrations and exit")
	migrateCmd.Flags().BoolVar(&migrateRollback, "rollback", false, "Roll back the latest migration")
}

func runMigrate(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		var conn *postgres.Connection
		conn, err = postgres.NewConnection(ctx, app.PostgresConfig(cfg.Storage.Postgres))
		if err != nil {
			return errors.Wrap(err, "failed to connect to database")
		}
		defer conn.Close()

		migrator := postgres.NewMigrator(conn)
		switch {
		case migrateStatus:
			return printMigrations(cmd, migrator)
		case migrateRollback:
			err = migrator.Rollback(ctx)
			if err != nil {
				return errors.Wrap(err, "rollback failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rolled back the latest migration")
			return nil
		}

		var applied int
		applied, err = migrator.Migrate(ctx)
		if err != nil {
			return errors.Wrap(err, "migration failed")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)

	case config.DriverSQLite:
		if migrateStatus || migrateRollback {
			return errors.New("--status and --rollback need the postgres driver")
		}
		var store *sqlite.Store
		store, err = sqlite.Open(ctx, sqlite.Config{Path: cfg.Storage.SQLite.Path, BusyTimeout: cfg.Storage.SQLite.BusyTimeout})
		if err != nil {
			return errors.Wrap(err, "failed to open sqlite")
		}
		defer store.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "schema ready at %s\n", cfg.Storage.SQLite.Path)

	default:
		return errors.Errorf("driver %q has no migrations", cfg.Storage.Driver)
	}

	return err
}

func printMigrations(cmd *cobra.Command, migrator *postgres.Migrator) (err error) {
	status, err := migrator.Status(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "failed to read migration status")
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
	for _, m := range status {
		applied := "-"
		if m.IsApplied {
			applied = m.AppliedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, applied)
	}
	return w.Flush()
}
