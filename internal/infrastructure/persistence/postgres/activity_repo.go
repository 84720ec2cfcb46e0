package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
)

// ActivityRepository implements activity.Repository using PostgreSQL.
type ActivityRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewActivityRepository creates a repository over a transaction or pool.
func NewActivityRepository(exec pgExecutor) *ActivityRepository {
	return &ActivityRepository{exec: exec, builder: newBuilder()}
}

// ─────────────────────────────────────────────────────────────────────────────
// Story results
// ─────────────────────────────────────────────────────────────────────────────

// UpsertStoryResult stores the latest result and returns the attempt count.
func (r *ActivityRepository) UpsertStoryResult(ctx context.Context, res *activity.StoryResult) error {
	stmt, args, err := r.builder.Insert("story_results").
		Columns("user_id", "story_id", "title", "score", "time_spent", "points", "without_translation", "attempts", "completed_at").
		Values(res.UserID, res.StoryID, res.Title, res.Score, res.TimeSpent, res.Points, res.WithoutTranslation, 1, res.CompletedAt).
		Suffix(`ON CONFLICT (user_id, story_id) DO UPDATE SET
			title = EXCLUDED.title,
			score = EXCLUDED.score,
			time_spent = EXCLUDED.time_spent,
			points = EXCLUDED.points,
			without_translation = EXCLUDED.without_translation,
			attempts = story_results.attempts + 1,
			completed_at = EXCLUDED.completed_at
		RETURNING attempts`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert story sql: %w", err)
	}

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&res.Attempts); err != nil {
		return fmt.Errorf("upsert story result: %w", mapError(err))
	}
	return nil
}

// StorySummary aggregates story results in SQL with the same thresholds
// as activity.SummarizeStories.
func (r *ActivityRepository) StorySummary(ctx context.Context, userID string) (activity.StorySummary, error) {
	stmt, args, err := r.builder.Select(
		"COUNT(*)",
		"COUNT(*) FILTER (WHERE score = 100)",
		fmt.Sprintf("COUNT(*) FILTER (WHERE time_spent < %d AND score >= %d)", activity.FastStoryLimit, activity.AccurateScore),
		"COUNT(*) FILTER (WHERE without_translation)",
		"COALESCE(AVG(score), 0)::float8",
	).
		From("story_results").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return activity.StorySummary{}, fmt.Errorf("build story summary sql: %w", err)
	}

	var s activity.StorySummary
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&s.Completed, &s.Perfect, &s.FastAccurate, &s.WithoutTranslation, &s.AverageScore,
	); err != nil {
		return activity.StorySummary{}, fmt.Errorf("story summary: %w", err)
	}
	return s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Practice results
// ─────────────────────────────────────────────────────────────────────────────

// SavePracticeResult inserts a practice result.
func (r *ActivityRepository) SavePracticeResult(ctx context.Context, res *activity.PracticeResult) error {
	mistakes := res.Mistakes
	if mistakes == nil {
		mistakes = []string{}
	}
	stmt, args, err := r.builder.Insert("practice_results").
		Columns("id", "user_id", "type", "score", "time_spent", "mistakes", "feedback", "submitted_at").
		Values(res.ID, res.UserID, string(res.Type), res.Score, res.TimeSpent, mistakes, res.Feedback, res.SubmittedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert practice sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert practice result: %w", mapError(err))
	}
	return nil
}

// PracticeSummary counts results and sums time spent.
func (r *ActivityRepository) PracticeSummary(ctx context.Context, userID string) (activity.PracticeSummary, error) {
	stmt, args, err := r.builder.Select("COUNT(*)", "COALESCE(SUM(time_spent), 0)").
		From("practice_results").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return activity.PracticeSummary{}, fmt.Errorf("build practice summary sql: %w", err)
	}

	var s activity.PracticeSummary
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&s.Count, &s.TotalTimeSpent); err != nil {
		return activity.PracticeSummary{}, fmt.Errorf("practice summary: %w", err)
	}
	return s, nil
}

// PracticeHistory returns the latest practice results, newest first.
func (r *ActivityRepository) PracticeHistory(ctx context.Context, userID string, limit int) ([]activity.PracticeResult, error) {
	stmt, args, err := r.builder.Select("id", "user_id", "type", "score", "time_spent", "mistakes", "feedback", "submitted_at").
		From("practice_results").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("submitted_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build practice history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select practice history: %w", err)
	}
	defer rows.Close()

	var out []activity.PracticeResult
	for rows.Next() {
		var (
			res activity.PracticeResult
			typ string
		)
		if err := rows.Scan(&res.ID, &res.UserID, &typ, &res.Score, &res.TimeSpent, &res.Mistakes, &res.Feedback, &res.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan practice result: %w", err)
		}
		res.Type = activity.PracticeType(typ)
		out = append(out, res)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Activity feed
// ─────────────────────────────────────────────────────────────────────────────

// AppendEntries inserts feed entries in one statement.
func (r *ActivityRepository) AppendEntries(ctx context.Context, entries ...activity.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	q := r.builder.Insert("activity_feed").
		Columns("id", "user_id", "kind", "ref_id", "title", "xp", "occurred_at")
	for _, e := range entries {
		q = q.Values(e.ID, e.UserID, string(e.Kind), e.RefID, e.Title, e.XP, e.OccurredAt)
	}
	stmt, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert feed sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert feed entries: %w", mapError(err))
	}
	return nil
}

// RecentEntries returns the latest feed entries, newest first.
func (r *ActivityRepository) RecentEntries(ctx context.Context, userID string, limit int) ([]activity.Entry, error) {
	stmt, args, err := r.builder.Select("id", "user_id", "kind", "ref_id", "title", "xp", "occurred_at").
		From("activity_feed").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("occurred_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent feed sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select recent feed: %w", err)
	}
	defer rows.Close()

	var out []activity.Entry
	for rows.Next() {
		var (
			e    activity.Entry
			kind string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &kind, &e.RefID, &e.Title, &e.XP, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan feed entry: %w", err)
		}
		e.Kind = activity.Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
