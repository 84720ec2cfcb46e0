package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ivrit-hub/progress-hub/internal/app"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/infrastructure/export"
)

//nolint:gochecknoglobals // Cobra boilerplate
var exportOutput string

//nolint:gochecknoglobals // Cobra boilerplate
var exportUser string

//nolint:gochecknoglobals // Cobra boilerplate
var exportActivityLimit int

//nolint:gochecknoglobals // Cobra boilerplate
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export progress to an Excel workbook",
	Long: `Export progress records to an xlsx workbook.

Without --user every record is written to one sheet. With --user the workbook
also lists the user's achievements and recent activity.

Example:
  progressd export --out progress.xlsx
  progressd export --user 42 --out user-42.xlsx --activity-limit 100`,
	RunE: runExport,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "out", "o", "progress.xlsx", "Output file")
	exportCmd.Flags().StringVar(&exportUser, "user", "", "Export a single user")
	exportCmd.Flags().IntVar(&exportActivityLimit, "activity-limit", 0, "Activity rows per user (default 50)")
}

func runExport(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	zl, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	c, err := app.BuildStore(ctx, cfg, zl.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	defer c.Close()

	if dir := filepath.Dir(exportOutput); dir != "." {
		err = os.MkdirAll(dir, 0o755)
		if err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}

	f, err := os.Create(exportOutput)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", exportOutput)
	}
	defer func() {
		cerr := f.Close()
		if err == nil && cerr != nil {
			err = errors.Wrap(cerr, "failed to close output")
		}
	}()

	reporter := export.NewReporter(c.Store, progress.DefaultLevels, c.Clock, zl.Logger)
	stats, err := reporter.Write(ctx, f, export.Options{UserID: exportUser, ActivityLimit: exportActivityLimit})
	if err != nil {
		return errors.Wrap(err, "export failed")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d user(s), %d achievement(s), %d activity row(s)\n",
		exportOutput, stats.Users, stats.Achievements, stats.Activities)
	return nil
}
