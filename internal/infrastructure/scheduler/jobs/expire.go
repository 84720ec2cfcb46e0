// Package jobs contains the scheduled jobs of the progress service.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ivrit-hub/progress-hub/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE JOB
// ══════════════════════════════════════════════════════════════════════════════

// Expirer processes one batch of stale items.
// Implemented by command.ExpireStreaksHandler and command.ExpireGoalsHandler.
type Expirer interface {
	Handle(ctx context.Context) (*command.ExpireResult, error)
}

// ExpireJob drains an Expirer batch by batch. A run stops when a batch
// expires nothing or after MaxRounds batches.
type ExpireJob struct {
	name        string
	description string
	expirer     Expirer
	maxRounds   int
	logger      *slog.Logger

	lastRun atomic.Pointer[command.ExpireResult]
}

// MaxRounds bounds the batches processed by one run.
const MaxRounds = 20

// NewExpireStreaksJob zeroes streaks of users who missed a day.
func NewExpireStreaksJob(h Expirer, logger *slog.Logger) *ExpireJob {
	return newExpireJob("expire_streaks", "reset streaks of users inactive since before yesterday", h, logger)
}

// NewExpireGoalsJob marks overdue goals as expired.
func NewExpireGoalsJob(h Expirer, logger *slog.Logger) *ExpireJob {
	return newExpireJob("expire_goals", "mark incomplete goals past their end date as expired", h, logger)
}

func newExpireJob(name, description string, h Expirer, logger *slog.Logger) *ExpireJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpireJob{
		name:        name,
		description: description,
		expirer:     h,
		maxRounds:   MaxRounds,
		logger:      logger.With("job", name),
	}
}

// Name implements scheduler.Job.
func (j *ExpireJob) Name() string { return j.name }

// Description implements scheduler.Job.
func (j *ExpireJob) Description() string { return j.description }

// Run implements scheduler.Job.
func (j *ExpireJob) Run(ctx context.Context) error {
	total := &command.ExpireResult{}
	defer func() { j.lastRun.Store(total) }()

	for round := 0; round < j.maxRounds; round++ {
		res, err := j.expirer.Handle(ctx)
		if res != nil {
			total.Checked += res.Checked
			total.Expired += res.Expired
			total.Failed += res.Failed
		}
		if err != nil {
			return fmt.Errorf("%s: %w", j.name, err)
		}
		if res == nil || res.Expired == 0 {
			break
		}
	}

	if total.Failed > 0 {
		j.logger.Warn("some items were not expired", "failed", total.Failed)
	}
	return nil
}

// LastRun returns the totals of the latest run, or nil before the first run.
func (j *ExpireJob) LastRun() *command.ExpireResult {
	return j.lastRun.Load()
}
