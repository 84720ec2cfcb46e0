package command

import (
	"context"
	"fmt"

	"github.com/ivrit-hub/progress-hub/internal/application/saga"
	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT PRACTICE COMMAND
// Stores a practice session result and awards practice XP:
// round(score * 0.5), plus 25 for sessions longer than five minutes.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitPracticeCommand contains a practice session result.
type SubmitPracticeCommand struct {
	UserID    string
	Type      activity.PracticeType
	Score     int
	TimeSpent int // seconds
	Mistakes  []string
	Feedback  string
}

// SubmitPracticeResult contains the stored result and progress changes.
type SubmitPracticeResult struct {
	Practice activity.PracticeResult

	// XPEarned is the practice reward alone, without achievements.
	XPEarned int

	Progress ProgressResult
}

// SubmitPracticeHandler handles the SubmitPracticeCommand.
type SubmitPracticeHandler struct {
	flow *saga.ProgressFlow
	ids  saga.IDGenerator
}

// NewSubmitPracticeHandler creates a new SubmitPracticeHandler.
func NewSubmitPracticeHandler(flow *saga.ProgressFlow, ids saga.IDGenerator) *SubmitPracticeHandler {
	if ids == nil {
		ids = saga.UUIDGenerator{}
	}
	return &SubmitPracticeHandler{flow: flow, ids: ids}
}

// Handle executes the submit practice command.
func (h *SubmitPracticeHandler) Handle(ctx context.Context, cmd SubmitPracticeCommand) (*SubmitPracticeResult, error) {
	result := activity.PracticeResult{
		ID:        h.ids.GenerateID(),
		UserID:    cmd.UserID,
		Type:      cmd.Type,
		Score:     cmd.Score,
		TimeSpent: cmd.TimeSpent,
		Mistakes:  cmd.Mistakes,
		Feedback:  cmd.Feedback,
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("submit_practice: %w", err)
	}

	xp, err := progress.PracticeXP(cmd.Score, cmd.TimeSpent)
	if err != nil {
		return nil, fmt.Errorf("submit_practice: %w", err)
	}

	res, err := h.flow.Execute(ctx, saga.Mutation{
		Op:         "submit_practice",
		UserID:     cmd.UserID,
		TickStreak: true,
		Apply: func(ctx context.Context, tx *saga.FlowTx) error {
			result.SubmittedAt = tx.Now
			if err := tx.UoW.Activity().SavePracticeResult(ctx, &result); err != nil {
				return fmt.Errorf("save practice result: %w", err)
			}
			if err := tx.AddXP(progress.SourcePractice, result.ID, xp); err != nil {
				return err
			}
			tx.AppendEntry(activity.KindPractice, result.ID, fmt.Sprintf("%s practice", result.Type), xp)
			tx.Emit(shared.NewActivityRecordedEvent(shared.EventPracticeSubmitted,
				cmd.UserID, result.ID, result.Score, result.TimeSpent, xp, tx.Now))
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	return &SubmitPracticeResult{
		Practice: result,
		XPEarned: xp,
		Progress: newProgressResult(res),
	}, nil
}
