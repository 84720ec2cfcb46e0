package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/ivrit-hub/progress-hub/internal/domain/goal"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

var goalColumns = []string{
	"id", "user_id", "type", "target", "progress", "status",
	"end_date", "created_at", "updated_at", "completed_at",
}

// GoalRepository implements goal.Repository.
type GoalRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewGoalRepository creates a repository over a transaction or pool.
func NewGoalRepository(exec pgExecutor) *GoalRepository {
	return &GoalRepository{exec: exec, builder: newBuilder()}
}

// Create inserts a goal.
func (r *GoalRepository) Create(ctx context.Context, g *goal.Goal) error {
	stmt, args, err := r.builder.Insert("goals").
		Columns(goalColumns...).
		Values(g.ID, g.UserID, string(g.Type), g.Target, g.Progress, string(g.Status),
			g.EndDate, g.CreatedAt, g.UpdatedAt, nullableDate(g.CompletedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert goal sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert goal: %w", mapError(err))
	}
	return nil
}

// GetForUpdate returns the user's goal and locks its row.
func (r *GoalRepository) GetForUpdate(ctx context.Context, userID, goalID string) (*goal.Goal, error) {
	stmt, args, err := r.builder.Select(goalColumns...).
		From("goals").
		Where(squirrel.Eq{"id": goalID, "user_id": userID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select goal sql: %w", err)
	}

	g, err := scanGoal(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrGoalNotFound
		}
		return nil, fmt.Errorf("select goal: %w", err)
	}
	return g, nil
}

// Update stores progress and status.
func (r *GoalRepository) Update(ctx context.Context, g *goal.Goal) error {
	stmt, args, err := r.builder.Update("goals").
		Set("progress", g.Progress).
		Set("status", string(g.Status)).
		Set("updated_at", g.UpdatedAt).
		Set("completed_at", nullableDate(g.CompletedAt)).
		Where(squirrel.Eq{"id": g.ID, "user_id": g.UserID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update goal sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update goal: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrGoalNotFound
	}
	return nil
}

// ListByUser returns all goals of the user, newest first.
func (r *GoalRepository) ListByUser(ctx context.Context, userID string) ([]*goal.Goal, error) {
	return r.list(ctx, r.builder.Select(goalColumns...).
		From("goals").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC"))
}

// CountActive counts active goals whose end date is after now.
func (r *GoalRepository) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	stmt, args, err := r.builder.Select("COUNT(*)").
		From("goals").
		Where(squirrel.Eq{"user_id": userID, "status": string(goal.StatusActive)}).
		Where(squirrel.Gt{"end_date": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count goals sql: %w", err)
	}

	var n int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active goals: %w", err)
	}
	return n, nil
}

// ListOverdue returns active goals whose end date has passed.
func (r *GoalRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*goal.Goal, error) {
	return r.list(ctx, r.builder.Select(goalColumns...).
		From("goals").
		Where(squirrel.Eq{"status": string(goal.StatusActive)}).
		Where(squirrel.LtOrEq{"end_date": now}).
		OrderBy("end_date", "id").
		Limit(uint64(limit)))
}

func (r *GoalRepository) list(ctx context.Context, q squirrel.SelectBuilder) ([]*goal.Goal, error) {
	stmt, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list goals sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []*goal.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGoal(row rowScanner) (*goal.Goal, error) {
	var (
		g           goal.Goal
		typ, status string
		completedAt *time.Time
	)
	if err := row.Scan(
		&g.ID, &g.UserID, &typ, &g.Target, &g.Progress, &status,
		&g.EndDate, &g.CreatedAt, &g.UpdatedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	g.Type = goal.Type(typ)
	g.Status = goal.Status(status)
	if completedAt != nil {
		g.CompletedAt = *completedAt
	}
	return &g, nil
}
