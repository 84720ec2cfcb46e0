package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type recordRow struct {
	UserID           string       `db:"user_id"`
	TotalXP          int          `db:"total_xp"`
	Level            string       `db:"level"`
	Streak           int          `db:"streak"`
	LastActivityDate sql.NullTime `db:"last_activity_date"`
	Version          int64        `db:"version"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

func (r recordRow) toDomain() *progress.Record {
	return &progress.Record{
		UserID:           r.UserID,
		TotalXP:          progress.XP(r.TotalXP),
		Level:            progress.Level(r.Level),
		Streak:           r.Streak,
		LastActivityDate: fromNullTime(r.LastActivityDate),
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

var recordColumns = []string{
	"user_id", "total_xp", "level", "streak", "last_activity_date",
	"version", "created_at", "updated_at",
}

// RecordRepository implements progress.RecordRepository.
type RecordRepository struct {
	ext     sqlx.ExtContext
	builder squirrel.StatementBuilderType
}

// NewRecordRepository creates a repository over a transaction or database.
func NewRecordRepository(ext sqlx.ExtContext) *RecordRepository {
	return &RecordRepository{ext: ext, builder: newBuilder()}
}

// Create inserts a new record with version 1.
func (r *RecordRepository) Create(ctx context.Context, rec progress.Record) error {
	stmt, args, err := r.builder.Insert("progress_records").
		Columns(recordColumns...).
		Values(
			rec.UserID,
			rec.TotalXP.Int(),
			string(rec.Level),
			rec.Streak,
			nullableTime(rec.LastActivityDate),
			int64(1),
			utc(rec.CreatedAt),
			utc(rec.UpdatedAt),
		).
		Suffix("ON CONFLICT (user_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert record sql: %w", err)
	}

	res, err := r.ext.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("insert record: %w", mapError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.ErrProgressAlreadyExists
	}
	return nil
}

// Get returns the record with its achievements.
func (r *RecordRepository) Get(ctx context.Context, userID string) (*progress.Record, error) {
	stmt, args, err := r.builder.Select(recordColumns...).
		From("progress_records").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select record sql: %w", err)
	}

	var row recordRow
	if err := sqlx.GetContext(ctx, r.ext, &row, stmt, args...); err != nil {
		if isNoRows(err) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, fmt.Errorf("select record: %w", mapError(err))
	}

	rec := row.toDomain()
	set, err := NewAchievementRepository(r.ext).List(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec.Achievements = set
	return rec, nil
}

// GetForUpdate is Get: the immediate transaction already holds the write lock.
func (r *RecordRepository) GetForUpdate(ctx context.Context, userID string) (*progress.Record, error) {
	return r.Get(ctx, userID)
}

// Save writes XP, level and streak if the stored version still matches,
// then bumps rec.Version.
func (r *RecordRepository) Save(ctx context.Context, rec *progress.Record) error {
	stmt, args, err := r.builder.Update("progress_records").
		Set("total_xp", rec.TotalXP.Int()).
		Set("level", string(rec.Level)).
		Set("streak", rec.Streak).
		Set("last_activity_date", nullableTime(rec.LastActivityDate)).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", utc(rec.UpdatedAt)).
		Where(squirrel.Eq{"user_id": rec.UserID, "version": rec.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update record sql: %w", err)
	}

	res, err := r.ext.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update record: %w", mapError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.ErrRecordConflict
	}
	rec.Version++
	return nil
}

// ListStaleStreaks returns users with a positive streak last active before `before`.
func (r *RecordRepository) ListStaleStreaks(ctx context.Context, before time.Time, limit int) ([]string, error) {
	stmt, args, err := r.builder.Select("user_id").
		From("progress_records").
		Where(squirrel.Gt{"streak": 0}).
		Where(squirrel.Lt{"last_activity_date": utc(before)}).
		OrderBy("user_id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stale streaks sql: %w", err)
	}

	var ids []string
	if err := sqlx.SelectContext(ctx, r.ext, &ids, stmt, args...); err != nil {
		return nil, fmt.Errorf("select stale streaks: %w", err)
	}
	return ids, nil
}

// List returns a page of records ordered by user ID, with achievements.
func (r *RecordRepository) List(ctx context.Context, page shared.Pagination) ([]*progress.Record, error) {
	stmt, args, err := r.builder.Select(recordColumns...).
		From("progress_records").
		OrderBy("user_id").
		Limit(uint64(page.Limit())).
		Offset(uint64(page.Offset())).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list records sql: %w", err)
	}

	var rows []recordRow
	if err := sqlx.SelectContext(ctx, r.ext, &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	out := make([]*progress.Record, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
		ids = append(ids, row.UserID)
	}
	if len(out) == 0 {
		return out, nil
	}

	sets, err := NewAchievementRepository(r.ext).listMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, rec := range out {
		if set, ok := sets[rec.UserID]; ok {
			rec.Achievements = set
		} else {
			rec.Achievements = progress.AchievementSet{}
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type achievementRow struct {
	UserID        string    `db:"user_id"`
	AchievementID string    `db:"achievement_id"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	Category      string    `db:"category"`
	XPReward      int       `db:"xp_reward"`
	Progress      int       `db:"progress"`
	UnlockedAt    time.Time `db:"unlocked_at"`
}

var achievementColumns = []string{
	"user_id", "achievement_id", "name", "description", "category", "xp_reward", "progress", "unlocked_at",
}

// AchievementRepository implements progress.AchievementRepository.
type AchievementRepository struct {
	ext     sqlx.ExtContext
	builder squirrel.StatementBuilderType
}

// NewAchievementRepository creates a repository over a transaction or database.
func NewAchievementRepository(ext sqlx.ExtContext) *AchievementRepository {
	return &AchievementRepository{ext: ext, builder: newBuilder()}
}

// Insert adds unlocks in one statement. A row that already exists means a
// concurrent unlock, reported as ErrAchievementConflict.
func (r *AchievementRepository) Insert(ctx context.Context, userID string, unlocks []progress.Unlock) error {
	if len(unlocks) == 0 {
		return nil
	}

	q := r.builder.Insert("achievements").Columns(achievementColumns...)
	for _, u := range unlocks {
		q = q.Values(userID, string(u.ID), u.Name, u.Description, string(u.Category), u.XPReward, u.Progress, utc(u.UnlockedAt))
	}
	stmt, args, err := q.Suffix("ON CONFLICT (user_id, achievement_id) DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build insert achievements sql: %w", err)
	}

	res, err := r.ext.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("insert achievements: %w", mapError(err))
	}
	if n, _ := res.RowsAffected(); n != int64(len(unlocks)) {
		return shared.ErrAchievementConflict
	}
	return nil
}

// List returns the user's achievements.
func (r *AchievementRepository) List(ctx context.Context, userID string) (progress.AchievementSet, error) {
	sets, err := r.listMany(ctx, []string{userID})
	if err != nil {
		return nil, err
	}
	if set, ok := sets[userID]; ok {
		return set, nil
	}
	return progress.AchievementSet{}, nil
}

func (r *AchievementRepository) listMany(ctx context.Context, userIDs []string) (map[string]progress.AchievementSet, error) {
	stmt, args, err := r.builder.Select(achievementColumns...).
		From("achievements").
		Where(squirrel.Eq{"user_id": userIDs}).
		OrderBy("unlocked_at", "achievement_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select achievements sql: %w", err)
	}

	var rows []achievementRow
	if err := sqlx.SelectContext(ctx, r.ext, &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("select achievements: %w", err)
	}

	out := make(map[string]progress.AchievementSet, len(userIDs))
	for _, row := range rows {
		id := progress.AchievementID(row.AchievementID)
		if out[row.UserID] == nil {
			out[row.UserID] = progress.AchievementSet{}
		}
		out[row.UserID][id] = progress.Unlock{
			ID:          id,
			Name:        row.Name,
			Description: row.Description,
			Category:    progress.Category(row.Category),
			XPReward:    row.XPReward,
			UnlockedAt:  row.UnlockedAt,
			Progress:    row.Progress,
		}
	}
	return out, nil
}
