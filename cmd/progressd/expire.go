package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ivrit-hub/progress-hub/internal/app"
	"github.com/ivrit-hub/progress-hub/internal/infrastructure/scheduler/jobs"
)

//nolint:gochecknoglobals // Cobra boilerplate
var expireStreaks bool

//nolint:gochecknoglobals // Cobra boilerplate
var expireGoals bool

//nolint:gochecknoglobals // Cobra boilerplate
var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expire stale streaks and overdue goals once",
	Long: `Run the expiry jobs once and exit. Useful under an external scheduler;
cmd/worker runs the same jobs on an interval.

Without flags both jobs run.

Example:
  progressd expire
  progressd expire --streaks`,
	RunE: runExpire,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(expireCmd)
	expireCmd.Flags().BoolVar(&expireStreaks, "streaks", false, "Expire streaks of users who missed a day")
	expireCmd.Flags().BoolVar(&expireGoals, "goals", false, "Expire goals past their end date")
}

func runExpire(cmd *cobra.Command, args []string) (err error) {
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
	log := zl.Logger

	c, err := app.Build(ctx, cfg, log)
	if err != nil {
		return errors.Wrap(err, "failed to build service")
	}
	defer c.Close()

	all := !expireStreaks && !expireGoals
	var run []*jobs.ExpireJob
	if all || expireStreaks {
		run = append(run, jobs.NewExpireStreaksJob(c.ExpireStreaks(), log))
	}
	if all || expireGoals {
		run = append(run, jobs.NewExpireGoalsJob(c.ExpireGoals(), log))
	}

	for _, job := range run {
		err = job.Run(ctx)
		if err != nil {
			return errors.Wrapf(err, "job %s failed", job.Name())
		}
		res := job.LastRun()
		fmt.Fprintf(cmd.OutOrStdout(), "%s: checked %d, expired %d, failed %d\n",
			job.Name(), res.Checked, res.Expired, res.Failed)
	}
	return nil
}
