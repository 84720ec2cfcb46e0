package query

import (
	"context"
	"fmt"

	"github.com/ivrit-hub/progress-hub/internal/application/saga"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST ACHIEVEMENTS QUERY
// Every rule with the user's progress towards it.
// ══════════════════════════════════════════════════════════════════════════════

// ListAchievementsQuery requests the achievement catalogue of a user.
type ListAchievementsQuery struct {
	UserID string
}

// ListAchievementsResult contains the catalogue.
type ListAchievementsResult struct {
	Entries       []progress.CatalogueEntry
	UnlockedCount int
	TotalXP       int // sum of rewards already earned
}

// ListAchievementsHandler handles ListAchievementsQuery.
type ListAchievementsHandler struct {
	uowFactory progress.UnitOfWorkFactory
	engine     *progress.Engine
}

// NewListAchievementsHandler creates a new ListAchievementsHandler.
func NewListAchievementsHandler(uowFactory progress.UnitOfWorkFactory, engine *progress.Engine) *ListAchievementsHandler {
	if engine == nil {
		engine = progress.NewEngine(nil)
	}
	return &ListAchievementsHandler{uowFactory: uowFactory, engine: engine}
}

// Handle executes the query.
func (h *ListAchievementsHandler) Handle(ctx context.Context, q ListAchievementsQuery) (*ListAchievementsResult, error) {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return nil, fmt.Errorf("list_achievements: %w", err)
	}

	result, err := readInTx(ctx, h.uowFactory, func(uow progress.UnitOfWork) (*ListAchievementsResult, error) {
		rec, err := uow.Records().Get(ctx, q.UserID)
		if err != nil {
			return nil, err
		}
		sum, err := uow.Activity().StorySummary(ctx, q.UserID)
		if err != nil {
			return nil, fmt.Errorf("story summary: %w", err)
		}

		stats := saga.StoryStats(progress.NewStats(q.UserID).With(progress.StatStreak, rec.Streak), sum)
		out := &ListAchievementsResult{Entries: h.engine.Catalogue(stats, rec.Achievements)}
		for _, u := range rec.Achievements {
			out.UnlockedCount++
			out.TotalXP += u.XPReward
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list_achievements: %w", err)
	}
	return result, nil
}
