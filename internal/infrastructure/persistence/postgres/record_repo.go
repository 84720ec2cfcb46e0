package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
	"github.com/ivrit-hub/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

var recordColumns = []string{
	"user_id", "total_xp", "level", "streak", "last_activity_date",
	"version", "created_at", "updated_at",
}

// RecordRepository implements progress.RecordRepository.
// last_activity_date is a DATE column; it is read back as a calendar day in loc.
type RecordRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	loc     *time.Location
}

// NewRecordRepository creates a repository over a transaction or pool.
// loc is the zone streak days are counted in (nil means timeutil.DefaultZone).
func NewRecordRepository(exec pgExecutor, loc *time.Location) *RecordRepository {
	if loc == nil {
		loc = timeutil.DefaultZone
	}
	return &RecordRepository{exec: exec, builder: newBuilder(), loc: loc}
}

// Create inserts a new record with version 1.
// ON CONFLICT keeps the transaction usable when the record already exists.
func (r *RecordRepository) Create(ctx context.Context, rec progress.Record) error {
	stmt, args, err := r.builder.Insert("progress_records").
		Columns(recordColumns...).
		Values(
			rec.UserID,
			rec.TotalXP.Int(),
			string(rec.Level),
			rec.Streak,
			nullableDate(rec.LastActivityDate),
			int64(1),
			rec.CreatedAt,
			rec.UpdatedAt,
		).
		Suffix("ON CONFLICT (user_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert record sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("insert record: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrProgressAlreadyExists
	}
	return nil
}

// Get returns the record with its achievements.
func (r *RecordRepository) Get(ctx context.Context, userID string) (*progress.Record, error) {
	return r.get(ctx, userID, "")
}

// GetForUpdate locks the record row until the transaction ends.
func (r *RecordRepository) GetForUpdate(ctx context.Context, userID string) (*progress.Record, error) {
	return r.get(ctx, userID, "FOR UPDATE")
}

func (r *RecordRepository) get(ctx context.Context, userID, suffix string) (*progress.Record, error) {
	q := r.builder.Select(recordColumns...).
		From("progress_records").
		Where(squirrel.Eq{"user_id": userID})
	if suffix != "" {
		q = q.Suffix(suffix)
	}
	stmt, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select record sql: %w", err)
	}

	rec, err := scanRecord(r.exec.QueryRow(ctx, stmt, args...), r.loc)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, fmt.Errorf("select record: %w", mapError(err))
	}

	set, err := NewAchievementRepository(r.exec).List(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec.Achievements = set
	return rec, nil
}

// Save writes XP, level and streak if the stored version still matches,
// then bumps rec.Version.
func (r *RecordRepository) Save(ctx context.Context, rec *progress.Record) error {
	stmt, args, err := r.builder.Update("progress_records").
		Set("total_xp", rec.TotalXP.Int()).
		Set("level", string(rec.Level)).
		Set("streak", rec.Streak).
		Set("last_activity_date", nullableDate(rec.LastActivityDate)).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", rec.UpdatedAt).
		Where(squirrel.Eq{"user_id": rec.UserID, "version": rec.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update record sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update record: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
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
		Where(squirrel.Lt{"last_activity_date": before}).
		OrderBy("user_id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stale streaks sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select stale streaks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
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

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var (
		out []*progress.Record
		ids []string
	)
	for rows.Next() {
		rec, err := scanRecord(rows, r.loc)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
		ids = append(ids, rec.UserID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	sets, err := NewAchievementRepository(r.exec).listMany(ctx, ids)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, loc *time.Location) (*progress.Record, error) {
	var (
		rec     progress.Record
		xp      int
		level   string
		lastDay *time.Time
	)
	if err := row.Scan(
		&rec.UserID,
		&xp,
		&level,
		&rec.Streak,
		&lastDay,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.TotalXP = progress.XP(xp)
	rec.Level = progress.Level(level)
	if lastDay != nil {
		rec.LastActivityDate = timeutil.DateIn(*lastDay, loc)
	}
	return &rec, nil
}

// nullableDate maps the zero time to NULL.
func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

var achievementColumns = []string{
	"achievement_id", "name", "description", "category", "xp_reward", "progress", "unlocked_at",
}

// AchievementRepository implements progress.AchievementRepository.
type AchievementRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAchievementRepository creates a repository over a transaction or pool.
func NewAchievementRepository(exec pgExecutor) *AchievementRepository {
	return &AchievementRepository{exec: exec, builder: newBuilder()}
}

// Insert adds unlocks in one statement. A row that already exists means a
// concurrent unlock, reported as ErrAchievementConflict.
func (r *AchievementRepository) Insert(ctx context.Context, userID string, unlocks []progress.Unlock) error {
	if len(unlocks) == 0 {
		return nil
	}

	q := r.builder.Insert("achievements").
		Columns(append([]string{"user_id"}, achievementColumns...)...)
	for _, u := range unlocks {
		q = q.Values(userID, string(u.ID), u.Name, u.Description, string(u.Category), u.XPReward, u.Progress, u.UnlockedAt)
	}
	stmt, args, err := q.Suffix("ON CONFLICT (user_id, achievement_id) DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build insert achievements sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("insert achievements: %w", mapError(err))
	}
	if tag.RowsAffected() != int64(len(unlocks)) {
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
	stmt, args, err := r.builder.Select(append([]string{"user_id"}, achievementColumns...)...).
		From("achievements").
		Where(squirrel.Eq{"user_id": userIDs}).
		OrderBy("unlocked_at", "achievement_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select achievements sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select achievements: %w", err)
	}
	defer rows.Close()

	out := make(map[string]progress.AchievementSet, len(userIDs))
	for rows.Next() {
		var (
			userID, id, category string
			u                    progress.Unlock
		)
		if err := rows.Scan(&userID, &id, &u.Name, &u.Description, &category, &u.XPReward, &u.Progress, &u.UnlockedAt); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		u.ID = progress.AchievementID(id)
		u.Category = progress.Category(category)
		if out[userID] == nil {
			out[userID] = progress.AchievementSet{}
		}
		out[userID][u.ID] = u
	}
	return out, rows.Err()
}
