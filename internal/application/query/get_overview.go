// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
	"github.com/ivrit-hub/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET OVERVIEW QUERY
// Level, XP, streak, achievements count, active goals, the latest activity
// and learning stats in one view. Served from the overview cache when present.
// The progress flow invalidates the entry on commit; the cache drops a Set of
// an overview built from an older record version.
// ══════════════════════════════════════════════════════════════════════════════

// GetOverviewQuery requests a user's progress overview.
type GetOverviewQuery struct {
	UserID string

	// SkipCache forces a read from storage.
	SkipCache bool
}

// Validate validates the query.
func (q GetOverviewQuery) Validate() error {
	_, err := shared.NewUserID(q.UserID)
	return err
}

// GetOverviewResult contains the overview.
type GetOverviewResult struct {
	Overview progress.Overview
	Cached   bool
}

// GetOverviewHandler handles GetOverviewQuery.
type GetOverviewHandler struct {
	uowFactory progress.UnitOfWorkFactory
	cache      progress.OverviewCache
	aggregator progress.Aggregator
	clock      timeutil.Clock
	window     int
	logger     *slog.Logger
}

// NewGetOverviewHandler creates a new GetOverviewHandler. cache may be nil.
func NewGetOverviewHandler(
	uowFactory progress.UnitOfWorkFactory,
	cache progress.OverviewCache,
	clock timeutil.Clock,
	window int,
	logger *slog.Logger,
) *GetOverviewHandler {
	if window <= 0 {
		window = progress.RecentActivityLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GetOverviewHandler{
		uowFactory: uowFactory,
		cache:      cache,
		aggregator: progress.NewAggregator(progress.DefaultLevels, window),
		clock:      clock,
		window:     window,
		logger:     logger.With("handler", "get_overview"),
	}
}

// Handle executes the query.
func (h *GetOverviewHandler) Handle(ctx context.Context, q GetOverviewQuery) (*GetOverviewResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_overview: %w", err)
	}

	if h.cache != nil && !q.SkipCache {
		ov, ok, err := h.cache.Get(ctx, q.UserID)
		if err != nil {
			h.logger.Warn("overview cache read failed", "user_id", q.UserID, "error", err)
		} else if ok {
			return &GetOverviewResult{Overview: *ov, Cached: true}, nil
		}
	}

	ov, err := readInTx(ctx, h.uowFactory, func(uow progress.UnitOfWork) (progress.Overview, error) {
		return h.load(ctx, uow, q.UserID)
	})
	if err != nil {
		return nil, fmt.Errorf("get_overview: %w", err)
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, q.UserID, ov); err != nil {
			h.logger.Warn("overview cache write failed", "user_id", q.UserID, "error", err)
		}
	}
	return &GetOverviewResult{Overview: ov}, nil
}

func (h *GetOverviewHandler) load(ctx context.Context, uow progress.UnitOfWork, userID string) (progress.Overview, error) {
	rec, err := uow.Records().Get(ctx, userID)
	if err != nil {
		return progress.Overview{}, err
	}

	var in progress.OverviewInput
	if in.Recent, err = uow.Activity().RecentEntries(ctx, userID, h.window); err != nil {
		return progress.Overview{}, fmt.Errorf("recent activity: %w", err)
	}
	if in.Stories, err = uow.Activity().StorySummary(ctx, userID); err != nil {
		return progress.Overview{}, fmt.Errorf("story summary: %w", err)
	}
	if in.Practice, err = uow.Activity().PracticeSummary(ctx, userID); err != nil {
		return progress.Overview{}, fmt.Errorf("practice summary: %w", err)
	}
	if in.ActiveGoals, err = uow.Goals().CountActive(ctx, userID, h.clock.Now()); err != nil {
		return progress.Overview{}, fmt.Errorf("active goals: %w", err)
	}

	return h.aggregator.Summarize(rec, in)
}

// readInTx runs a read in a unit of work that is always rolled back.
func readInTx[T any](ctx context.Context, f progress.UnitOfWorkFactory, read func(progress.UnitOfWork) (T, error)) (T, error) {
	var zero T
	uow, err := f.Begin(ctx)
	if err != nil {
		return zero, err
	}
	defer func() { _ = uow.Rollback(ctx) }()
	return read(uow)
}
