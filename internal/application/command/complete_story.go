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
// COMPLETE STORY COMMAND
// Stores the latest result for a story and awards round(score*points/100) XP.
// Completing a story again overwrites the result and counts another attempt.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteStoryCommand contains a story quiz result.
type CompleteStoryCommand struct {
	UserID             string
	StoryID            string
	Title              string
	Score              int
	TimeSpent          int // seconds
	Points             int
	WithoutTranslation bool
}

// CompleteStoryResult contains the stored result and progress changes.
type CompleteStoryResult struct {
	Story    activity.StoryResult
	XPEarned int
	Progress ProgressResult
}

// CompleteStoryHandler handles the CompleteStoryCommand.
type CompleteStoryHandler struct {
	flow *saga.ProgressFlow
}

// NewCompleteStoryHandler creates a new CompleteStoryHandler.
func NewCompleteStoryHandler(flow *saga.ProgressFlow) *CompleteStoryHandler {
	return &CompleteStoryHandler{flow: flow}
}

// Handle executes the complete story command.
func (h *CompleteStoryHandler) Handle(ctx context.Context, cmd CompleteStoryCommand) (*CompleteStoryResult, error) {
	story := activity.StoryResult{
		UserID:             cmd.UserID,
		StoryID:            cmd.StoryID,
		Title:              cmd.Title,
		Score:              cmd.Score,
		TimeSpent:          cmd.TimeSpent,
		Points:             cmd.Points,
		WithoutTranslation: cmd.WithoutTranslation,
	}
	if err := story.Validate(); err != nil {
		return nil, fmt.Errorf("complete_story: %w", err)
	}

	xp, err := progress.StoryXP(cmd.Score, cmd.Points)
	if err != nil {
		return nil, fmt.Errorf("complete_story: %w", err)
	}

	title := story.Title
	if title == "" {
		title = story.StoryID
	}

	res, err := h.flow.Execute(ctx, saga.Mutation{
		Op:         "complete_story",
		UserID:     cmd.UserID,
		TickStreak: true,
		Apply: func(ctx context.Context, tx *saga.FlowTx) error {
			story.CompletedAt = tx.Now
			if err := tx.UoW.Activity().UpsertStoryResult(ctx, &story); err != nil {
				return fmt.Errorf("save story result: %w", err)
			}
			if err := tx.AddXP(progress.SourceStory, story.StoryID, xp); err != nil {
				return err
			}
			tx.AppendEntry(activity.KindStory, story.StoryID, title, xp)
			tx.Emit(shared.NewActivityRecordedEvent(shared.EventStoryCompleted,
				cmd.UserID, story.StoryID, story.Score, story.TimeSpent, xp, tx.Now))
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	return &CompleteStoryResult{
		Story:    story,
		XPEarned: xp,
		Progress: newProgressResult(res),
	}, nil
}
