package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/ivrit-hub/progress-hub/internal/domain/goal"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

type goalRow struct {
	ID          string       `db:"id"`
	UserID      string       `db:"user_id"`
	Type        string       `db:"type"`
	Target      int          `db:"target"`
	Progress    int          `db:"progress"`
	Status      string       `db:"status"`
	EndDate     time.Time    `db:"end_date"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
}

func (r goalRow) toDomain() *goal.Goal {
	return &goal.Goal{
		ID:          r.ID,
		UserID:      r.UserID,
		Type:        goal.Type(r.Type),
		Target:      r.Target,
		Progress:    r.Progress,
		Status:      goal.Status(r.Status),
		EndDate:     r.EndDate,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CompletedAt: fromNullTime(r.CompletedAt),
	}
}

var goalColumns = []string{
	"id", "user_id", "type", "target", "progress", "status",
	"end_date", "created_at", "updated_at", "completed_at",
}

// GoalRepository implements goal.Repository.
type GoalRepository struct {
	ext     sqlx.ExtContext
	builder squirrel.StatementBuilderType
}

// NewGoalRepository creates a repository over a transaction or database.
func NewGoalRepository(ext sqlx.ExtContext) *GoalRepository {
	return &GoalRepository{ext: ext, builder: newBuilder()}
}

// Create inserts a goal.
func (r *GoalRepository) Create(ctx context.Context, g *goal.Goal) error {
	stmt, args, err := r.builder.Insert("goals").
		Columns(goalColumns...).
		Values(g.ID, g.UserID, string(g.Type), g.Target, g.Progress, string(g.Status),
			utc(g.EndDate), utc(g.CreatedAt), utc(g.UpdatedAt), nullableTime(g.CompletedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert goal sql: %w", err)
	}

	if _, err := r.ext.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert goal: %w", mapError(err))
	}
	return nil
}

// GetForUpdate returns the user's goal. The surrounding immediate
// transaction holds the write lock.
func (r *GoalRepository) GetForUpdate(ctx context.Context, userID, goalID string) (*goal.Goal, error) {
	stmt, args, err := r.builder.Select(goalColumns...).
		From("goals").
		Where(squirrel.Eq{"id": goalID, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select goal sql: %w", err)
	}

	var row goalRow
	if err := sqlx.GetContext(ctx, r.ext, &row, stmt, args...); err != nil {
		if isNoRows(err) {
			return nil, shared.ErrGoalNotFound
		}
		return nil, fmt.Errorf("select goal: %w", err)
	}
	return row.toDomain(), nil
}

// Update stores progress and status.
func (r *GoalRepository) Update(ctx context.Context, g *goal.Goal) error {
	stmt, args, err := r.builder.Update("goals").
		Set("progress", g.Progress).
		Set("status", string(g.Status)).
		Set("updated_at", utc(g.UpdatedAt)).
		Set("completed_at", nullableTime(g.CompletedAt)).
		Where(squirrel.Eq{"id": g.ID, "user_id": g.UserID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update goal sql: %w", err)
	}

	res, err := r.ext.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update goal: %w", mapError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
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
		Where(squirrel.Gt{"end_date": utc(now)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count goals sql: %w", err)
	}

	var n int
	if err := sqlx.GetContext(ctx, r.ext, &n, stmt, args...); err != nil {
		return 0, fmt.Errorf("count active goals: %w", err)
	}
	return n, nil
}

// ListOverdue returns active goals whose end date has passed.
func (r *GoalRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*goal.Goal, error) {
	return r.list(ctx, r.builder.Select(goalColumns...).
		From("goals").
		Where(squirrel.Eq{"status": string(goal.StatusActive)}).
		Where(squirrel.LtOrEq{"end_date": utc(now)}).
		OrderBy("end_date", "id").
		Limit(uint64(limit)))
}

func (r *GoalRepository) list(ctx context.Context, q squirrel.SelectBuilder) ([]*goal.Goal, error) {
	stmt, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list goals sql: %w", err)
	}

	var rows []goalRow
	if err := sqlx.SelectContext(ctx, r.ext, &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}

	out := make([]*goal.Goal, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
