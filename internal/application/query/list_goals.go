package query

import (
	"context"
	"fmt"

	"github.com/ivrit-hub/progress-hub/internal/domain/goal"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
	"github.com/ivrit-hub/progress-hub/pkg/timeutil"
)

// ListGoalsQuery requests a user's goals.
type ListGoalsQuery struct {
	UserID     string
	ActiveOnly bool
}

// GoalView is a goal with derived fields.
type GoalView struct {
	Goal    *goal.Goal
	Percent int
	Active  bool
}

// ListGoalsResult contains the goals, newest first.
type ListGoalsResult struct {
	Goals       []GoalView
	ActiveCount int
}

// ListGoalsHandler handles ListGoalsQuery.
type ListGoalsHandler struct {
	uowFactory progress.UnitOfWorkFactory
	clock      timeutil.Clock
}

// NewListGoalsHandler creates a new ListGoalsHandler.
func NewListGoalsHandler(uowFactory progress.UnitOfWorkFactory, clock timeutil.Clock) *ListGoalsHandler {
	return &ListGoalsHandler{uowFactory: uowFactory, clock: clock}
}

// Handle executes the query.
func (h *ListGoalsHandler) Handle(ctx context.Context, q ListGoalsQuery) (*ListGoalsResult, error) {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return nil, fmt.Errorf("list_goals: %w", err)
	}

	goals, err := readInTx(ctx, h.uowFactory, func(uow progress.UnitOfWork) ([]*goal.Goal, error) {
		return uow.Goals().ListByUser(ctx, q.UserID)
	})
	if err != nil {
		return nil, fmt.Errorf("list_goals: %w", err)
	}

	now := h.clock.Now()
	result := &ListGoalsResult{Goals: make([]GoalView, 0, len(goals))}
	for _, g := range goals {
		active := g.IsActive(now)
		if active {
			result.ActiveCount++
		}
		if q.ActiveOnly && !active {
			continue
		}
		result.Goals = append(result.Goals, GoalView{Goal: g, Percent: g.Percent(), Active: active})
	}
	return result, nil
}
