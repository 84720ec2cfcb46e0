package command

import (
	"context"
	"fmt"
	"time"

	"github.com/ivrit-hub/progress-hub/internal/application/saga"
	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/goal"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE GOAL COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CreateGoalCommand contains the data to create a learning goal.
type CreateGoalCommand struct {
	UserID  string
	Type    goal.Type
	Target  int
	EndDate time.Time
}

// CreateGoalResult contains the created goal.
type CreateGoalResult struct {
	Goal *goal.Goal
}

// CreateGoalHandler handles the CreateGoalCommand.
type CreateGoalHandler struct {
	flow *saga.ProgressFlow
	ids  saga.IDGenerator
}

// NewCreateGoalHandler creates a new CreateGoalHandler.
func NewCreateGoalHandler(flow *saga.ProgressFlow, ids saga.IDGenerator) *CreateGoalHandler {
	if ids == nil {
		ids = saga.UUIDGenerator{}
	}
	return &CreateGoalHandler{flow: flow, ids: ids}
}

// Handle executes the create goal command. The user must have a progress record.
func (h *CreateGoalHandler) Handle(ctx context.Context, cmd CreateGoalCommand) (*CreateGoalResult, error) {
	id := h.ids.GenerateID()

	// Validate against the wall clock before taking the user lock.
	if _, err := goal.NewGoal(goal.NewGoalParams{
		ID: id, UserID: cmd.UserID, Type: cmd.Type, Target: cmd.Target,
		EndDate: cmd.EndDate, Now: h.flow.Clock().Now(),
	}); err != nil {
		return nil, fmt.Errorf("create_goal: %w", err)
	}

	var created *goal.Goal
	_, err := h.flow.Execute(ctx, saga.Mutation{
		Op:     "create_goal",
		UserID: cmd.UserID,
		Apply: func(ctx context.Context, tx *saga.FlowTx) error {
			g, err := goal.NewGoal(goal.NewGoalParams{
				ID: id, UserID: cmd.UserID, Type: cmd.Type, Target: cmd.Target,
				EndDate: cmd.EndDate, Now: tx.Now,
			})
			if err != nil {
				return err
			}
			if err := tx.UoW.Goals().Create(ctx, g); err != nil {
				return fmt.Errorf("save goal: %w", err)
			}
			tx.Emit(shared.NewGoalEvent(shared.EventGoalCreated, cmd.UserID, g.ID, string(g.Type), g.Target, 0, 0, tx.Now))
			created = g
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return &CreateGoalResult{Goal: created}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE GOAL PROGRESS COMMAND
// Sets the goal's progress. Crossing the target for the first time awards
// GoalCompletionXP; re-submitting a completed goal awards nothing.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateGoalProgressCommand contains the new progress value.
type UpdateGoalProgressCommand struct {
	UserID   string
	GoalID   string
	Progress int
}

// Validate validates the command.
func (c UpdateGoalProgressCommand) Validate() error {
	if c.GoalID == "" {
		return shared.NewDomainError("goal", "UpdateProgress", shared.ErrInvalidID, "goal ID is required")
	}
	if c.Progress < 0 {
		return shared.ErrNegativeProgress
	}
	return nil
}

// UpdateGoalProgressResult contains the goal and the progress changes.
type UpdateGoalProgressResult struct {
	Goal           *goal.Goal
	NewlyCompleted bool
	XPEarned       int
	Progress       ProgressResult
}

// UpdateGoalProgressHandler handles the UpdateGoalProgressCommand.
type UpdateGoalProgressHandler struct {
	flow *saga.ProgressFlow
}

// NewUpdateGoalProgressHandler creates a new UpdateGoalProgressHandler.
func NewUpdateGoalProgressHandler(flow *saga.ProgressFlow) *UpdateGoalProgressHandler {
	return &UpdateGoalProgressHandler{flow: flow}
}

// Handle executes the update goal progress command.
func (h *UpdateGoalProgressHandler) Handle(ctx context.Context, cmd UpdateGoalProgressCommand) (*UpdateGoalProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("update_goal_progress: %w", err)
	}

	out := &UpdateGoalProgressResult{}
	res, err := h.flow.Execute(ctx, saga.Mutation{
		Op:     "update_goal_progress",
		UserID: cmd.UserID,
		Apply: func(ctx context.Context, tx *saga.FlowTx) error {
			g, err := tx.UoW.Goals().GetForUpdate(ctx, cmd.UserID, cmd.GoalID)
			if err != nil {
				return err
			}

			upd, err := g.UpdateProgress(cmd.Progress, tx.Now)
			if err != nil {
				return err
			}
			if err := tx.UoW.Goals().Update(ctx, g); err != nil {
				return fmt.Errorf("save goal: %w", err)
			}

			xp := progress.GoalXP(upd.WasCompleted, upd.Completed)
			if upd.NewlyCompleted() {
				if err := tx.AddXP(progress.SourceGoal, g.ID, xp); err != nil {
					return err
				}
				tx.AppendEntry(activity.KindGoal, g.ID, fmt.Sprintf("%s goal completed", g.Type), xp)
				tx.Emit(shared.NewGoalEvent(shared.EventGoalCompleted, cmd.UserID, g.ID, string(g.Type), g.Target, g.Progress, xp, tx.Now))
			}

			out.Goal = g
			out.NewlyCompleted = upd.NewlyCompleted()
			out.XPEarned = xp
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	out.Progress = newProgressResult(res)
	return out, nil
}
