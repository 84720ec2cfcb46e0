package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
)

// ActivityRepository implements activity.Repository on SQLite.
type ActivityRepository struct {
	ext     sqlx.ExtContext
	builder squirrel.StatementBuilderType
}

// NewActivityRepository creates a repository over a transaction or database.
func NewActivityRepository(ext sqlx.ExtContext) *ActivityRepository {
	return &ActivityRepository{ext: ext, builder: newBuilder()}
}

// ─────────────────────────────────────────────────────────────────────────────
// Story results
// ─────────────────────────────────────────────────────────────────────────────

// UpsertStoryResult stores the latest result and returns the attempt count.
func (r *ActivityRepository) UpsertStoryResult(ctx context.Context, res *activity.StoryResult) error {
	stmt, args, err := r.builder.Insert("story_results").
		Columns("user_id", "story_id", "title", "score", "time_spent", "points", "without_translation", "attempts", "completed_at").
		Values(res.UserID, res.StoryID, res.Title, res.Score, res.TimeSpent, res.Points, res.WithoutTranslation, 1, utc(res.CompletedAt)).
		Suffix(`ON CONFLICT (user_id, story_id) DO UPDATE SET
			title = excluded.title,
			score = excluded.score,
			time_spent = excluded.time_spent,
			points = excluded.points,
			without_translation = excluded.without_translation,
			attempts = story_results.attempts + 1,
			completed_at = excluded.completed_at
		RETURNING attempts`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert story sql: %w", err)
	}

	if err := r.ext.QueryRowxContext(ctx, stmt, args...).Scan(&res.Attempts); err != nil {
		return fmt.Errorf("upsert story result: %w", mapError(err))
	}
	return nil
}

// StorySummary aggregates story results with the same thresholds as
// activity.SummarizeStories.
func (r *ActivityRepository) StorySummary(ctx context.Context, userID string) (activity.StorySummary, error) {
	stmt, args, err := r.builder.Select(
		"COUNT(*) AS completed",
		"COALESCE(SUM(CASE WHEN score = 100 THEN 1 ELSE 0 END), 0) AS perfect",
		fmt.Sprintf("COALESCE(SUM(CASE WHEN time_spent < %d AND score >= %d THEN 1 ELSE 0 END), 0) AS fast_accurate",
			activity.FastStoryLimit, activity.AccurateScore),
		"COALESCE(SUM(CASE WHEN without_translation THEN 1 ELSE 0 END), 0) AS without_translation",
		"COALESCE(AVG(score), 0.0) AS average_score",
	).
		From("story_results").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return activity.StorySummary{}, fmt.Errorf("build story summary sql: %w", err)
	}

	var row struct {
		Completed          int     `db:"completed"`
		Perfect            int     `db:"perfect"`
		FastAccurate       int     `db:"fast_accurate"`
		WithoutTranslation int     `db:"without_translation"`
		AverageScore       float64 `db:"average_score"`
	}
	if err := sqlx.GetContext(ctx, r.ext, &row, stmt, args...); err != nil {
		return activity.StorySummary{}, fmt.Errorf("story summary: %w", err)
	}
	return activity.StorySummary{
		Completed:          row.Completed,
		Perfect:            row.Perfect,
		FastAccurate:       row.FastAccurate,
		WithoutTranslation: row.WithoutTranslation,
		AverageScore:       row.AverageScore,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Practice results
// ─────────────────────────────────────────────────────────────────────────────

type practiceRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Type        string    `db:"type"`
	Score       int       `db:"score"`
	TimeSpent   int       `db:"time_spent"`
	Mistakes    string    `db:"mistakes"`
	Feedback    string    `db:"feedback"`
	SubmittedAt time.Time `db:"submitted_at"`
}

var practiceColumns = []string{"id", "user_id", "type", "score", "time_spent", "mistakes", "feedback", "submitted_at"}

// SavePracticeResult inserts a practice result. Mistakes are stored as a JSON array.
func (r *ActivityRepository) SavePracticeResult(ctx context.Context, res *activity.PracticeResult) error {
	mistakes := res.Mistakes
	if mistakes == nil {
		mistakes = []string{}
	}
	encoded, err := json.Marshal(mistakes)
	if err != nil {
		return fmt.Errorf("encode mistakes: %w", err)
	}

	stmt, args, err := r.builder.Insert("practice_results").
		Columns(practiceColumns...).
		Values(res.ID, res.UserID, string(res.Type), res.Score, res.TimeSpent, string(encoded), res.Feedback, utc(res.SubmittedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert practice sql: %w", err)
	}

	if _, err := r.ext.ExecContext(ctx, stmt, args...); err != nil {
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
	if err := r.ext.QueryRowxContext(ctx, stmt, args...).Scan(&s.Count, &s.TotalTimeSpent); err != nil {
		return activity.PracticeSummary{}, fmt.Errorf("practice summary: %w", err)
	}
	return s, nil
}

// PracticeHistory returns the latest practice results, newest first.
func (r *ActivityRepository) PracticeHistory(ctx context.Context, userID string, limit int) ([]activity.PracticeResult, error) {
	stmt, args, err := r.builder.Select(practiceColumns...).
		From("practice_results").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("submitted_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build practice history sql: %w", err)
	}

	var rows []practiceRow
	if err := sqlx.SelectContext(ctx, r.ext, &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("select practice history: %w", err)
	}

	out := make([]activity.PracticeResult, 0, len(rows))
	for _, row := range rows {
		var mistakes []string
		if err := json.Unmarshal([]byte(row.Mistakes), &mistakes); err != nil {
			return nil, fmt.Errorf("decode mistakes of %s: %w", row.ID, err)
		}
		out = append(out, activity.PracticeResult{
			ID:          row.ID,
			UserID:      row.UserID,
			Type:        activity.PracticeType(row.Type),
			Score:       row.Score,
			TimeSpent:   row.TimeSpent,
			Mistakes:    mistakes,
			Feedback:    row.Feedback,
			SubmittedAt: row.SubmittedAt,
		})
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Activity feed
// ─────────────────────────────────────────────────────────────────────────────

type entryRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Kind       string    `db:"kind"`
	RefID      string    `db:"ref_id"`
	Title      string    `db:"title"`
	XP         int       `db:"xp"`
	OccurredAt time.Time `db:"occurred_at"`
}

var entryColumns = []string{"id", "user_id", "kind", "ref_id", "title", "xp", "occurred_at"}

// AppendEntries inserts feed entries in one statement.
func (r *ActivityRepository) AppendEntries(ctx context.Context, entries ...activity.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	q := r.builder.Insert("activity_feed").Columns(entryColumns...)
	for _, e := range entries {
		q = q.Values(e.ID, e.UserID, string(e.Kind), e.RefID, e.Title, e.XP, utc(e.OccurredAt))
	}
	stmt, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert feed sql: %w", err)
	}

	if _, err := r.ext.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert feed entries: %w", mapError(err))
	}
	return nil
}

// RecentEntries returns the latest feed entries, newest first.
func (r *ActivityRepository) RecentEntries(ctx context.Context, userID string, limit int) ([]activity.Entry, error) {
	stmt, args, err := r.builder.Select(entryColumns...).
		From("activity_feed").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("occurred_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent feed sql: %w", err)
	}

	var rows []entryRow
	if err := sqlx.SelectContext(ctx, r.ext, &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("select recent feed: %w", err)
	}

	out := make([]activity.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, activity.Entry{
			ID:         row.ID,
			UserID:     row.UserID,
			Kind:       activity.Kind(row.Kind),
			RefID:      row.RefID,
			Title:      row.Title,
			XP:         row.XP,
			OccurredAt: row.OccurredAt,
		})
	}
	return out, nil
}
