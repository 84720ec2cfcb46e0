package query

import (
	"context"
	"fmt"

	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// GetPracticeTrendsQuery requests practice statistics of a user.
type GetPracticeTrendsQuery struct {
	UserID string
}

// GetPracticeTrendsResult contains the trends and the history they were built from.
type GetPracticeTrendsResult struct {
	Trends  activity.Trends
	History []activity.PracticeResult
}

// GetPracticeTrendsHandler handles GetPracticeTrendsQuery.
type GetPracticeTrendsHandler struct {
	uowFactory progress.UnitOfWorkFactory
}

// NewGetPracticeTrendsHandler creates a new GetPracticeTrendsHandler.
func NewGetPracticeTrendsHandler(uowFactory progress.UnitOfWorkFactory) *GetPracticeTrendsHandler {
	return &GetPracticeTrendsHandler{uowFactory: uowFactory}
}

// Handle executes the query.
func (h *GetPracticeTrendsHandler) Handle(ctx context.Context, q GetPracticeTrendsQuery) (*GetPracticeTrendsResult, error) {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return nil, fmt.Errorf("get_practice_trends: %w", err)
	}

	history, err := readInTx(ctx, h.uowFactory, func(uow progress.UnitOfWork) ([]activity.PracticeResult, error) {
		if _, err := uow.Records().Get(ctx, q.UserID); err != nil {
			return nil, err
		}
		return uow.Activity().PracticeHistory(ctx, q.UserID, activity.TrendHistorySize)
	})
	if err != nil {
		return nil, fmt.Errorf("get_practice_trends: %w", err)
	}

	return &GetPracticeTrendsResult{
		Trends:  activity.CalculateTrends(history),
		History: history,
	}, nil
}
