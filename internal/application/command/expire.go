package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ivrit-hub/progress-hub/internal/application/saga"
	"github.com/ivrit-hub/progress-hub/internal/domain/goal"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
	"github.com/ivrit-hub/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE STREAKS / EXPIRE GOALS
// Maintenance commands run by the worker. Each item goes through the
// progress flow, so it is serialized with the user's own requests.
// ══════════════════════════════════════════════════════════════════════════════

// ExpireResult counts processed and changed items.
type ExpireResult struct {
	Checked int
	Expired int
	Failed  int
}

// ExpireStreaksHandler zeroes the streaks of users inactive since before yesterday.
type ExpireStreaksHandler struct {
	flow       *saga.ProgressFlow
	uowFactory progress.UnitOfWorkFactory
	tracker    progress.StreakTracker
	batchSize  int
	logger     *slog.Logger
}

// NewExpireStreaksHandler creates a new ExpireStreaksHandler.
func NewExpireStreaksHandler(
	flow *saga.ProgressFlow,
	uowFactory progress.UnitOfWorkFactory,
	batchSize int,
	logger *slog.Logger,
) *ExpireStreaksHandler {
	if batchSize <= 0 {
		batchSize = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpireStreaksHandler{
		flow:       flow,
		uowFactory: uowFactory,
		tracker:    progress.NewStreakTracker(flow.Clock().Location()),
		batchSize:  batchSize,
		logger:     logger.With("handler", "expire_streaks"),
	}
}

// Handle expires stale streaks, one user per flow.
func (h *ExpireStreaksHandler) Handle(ctx context.Context) (*ExpireResult, error) {
	yesterday := timeutil.Today(h.flow.Clock()).AddDate(0, 0, -1)

	users, err := listInTx(ctx, h.uowFactory, func(uow progress.UnitOfWork) ([]string, error) {
		return uow.Records().ListStaleStreaks(ctx, yesterday, h.batchSize)
	})
	if err != nil {
		return nil, fmt.Errorf("expire_streaks: %w", err)
	}

	result := &ExpireResult{Checked: len(users)}
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		expired := false
		_, err := h.flow.Execute(ctx, saga.Mutation{
			Op:               "expire_streak",
			UserID:           userID,
			SkipAchievements: true,
			Apply: func(_ context.Context, tx *saga.FlowTx) error {
				prev := tx.Record.Streak
				rec, ok := h.tracker.Expire(tx.Record, tx.Now)
				expired = ok
				if !ok {
					return nil
				}
				tx.Record = rec
				missed := timeutil.DaysBetween(rec.LastActivityDate, tx.Now, h.tracker.Location()) - 1
				tx.Emit(shared.NewStreakBrokenEvent(userID, prev, missed, tx.Now))
				return nil
			},
		})
		if err != nil {
			result.Failed++
			h.logger.Warn("failed to expire streak", "user_id", userID, "error", err)
			continue
		}
		if expired {
			result.Expired++
		}
	}

	h.logger.Info("streak expiry finished",
		"checked", result.Checked, "expired", result.Expired, "failed", result.Failed)
	return result, nil
}

// ExpireGoalsHandler marks overdue incomplete goals as expired.
type ExpireGoalsHandler struct {
	flow       *saga.ProgressFlow
	uowFactory progress.UnitOfWorkFactory
	batchSize  int
	logger     *slog.Logger
}

// NewExpireGoalsHandler creates a new ExpireGoalsHandler.
func NewExpireGoalsHandler(
	flow *saga.ProgressFlow,
	uowFactory progress.UnitOfWorkFactory,
	batchSize int,
	logger *slog.Logger,
) *ExpireGoalsHandler {
	if batchSize <= 0 {
		batchSize = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpireGoalsHandler{
		flow:       flow,
		uowFactory: uowFactory,
		batchSize:  batchSize,
		logger:     logger.With("handler", "expire_goals"),
	}
}

// Handle expires overdue goals.
func (h *ExpireGoalsHandler) Handle(ctx context.Context) (*ExpireResult, error) {
	now := h.flow.Clock().Now()

	overdue, err := listInTx(ctx, h.uowFactory, func(uow progress.UnitOfWork) ([]*goal.Goal, error) {
		return uow.Goals().ListOverdue(ctx, now, h.batchSize)
	})
	if err != nil {
		return nil, fmt.Errorf("expire_goals: %w", err)
	}

	result := &ExpireResult{Checked: len(overdue)}
	for _, listed := range overdue {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		expired := false
		_, err := h.flow.Execute(ctx, saga.Mutation{
			Op:               "expire_goal",
			UserID:           listed.UserID,
			SkipAchievements: true,
			Apply: func(ctx context.Context, tx *saga.FlowTx) error {
				g, err := tx.UoW.Goals().GetForUpdate(ctx, listed.UserID, listed.ID)
				if err != nil {
					return err
				}
				if !g.Expire(tx.Now) {
					return nil
				}
				if err := tx.UoW.Goals().Update(ctx, g); err != nil {
					return err
				}
				expired = true
				tx.Emit(shared.NewGoalEvent(shared.EventGoalExpired, g.UserID, g.ID, string(g.Type), g.Target, g.Progress, 0, tx.Now))
				return nil
			},
		})
		if err != nil {
			result.Failed++
			h.logger.Warn("failed to expire goal", "goal_id", listed.ID, "user_id", listed.UserID, "error", err)
			continue
		}
		if expired {
			result.Expired++
		}
	}

	h.logger.Info("goal expiry finished",
		"checked", result.Checked, "expired", result.Expired, "failed", result.Failed)
	return result, nil
}

// listInTx runs a read in a short unit of work that is always rolled back.
func listInTx[T any](ctx context.Context, f progress.UnitOfWorkFactory, read func(progress.UnitOfWork) (T, error)) (T, error) {
	var zero T
	uow, err := f.Begin(ctx)
	if err != nil {
		return zero, err
	}
	defer func() { _ = uow.Rollback(ctx) }()
	return read(uow)
}
