package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one versioned schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations and tracks them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: Migrations(),
		tableName:  "schema_migrations",
	}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, m.tableName)

	if _, err := m.conn.Pool().Exec(ctx, query); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Pool().Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var (
			version   int
			appliedAt time.Time
		)
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		out[version] = appliedAt
	}
	return out, rows.Err()
}

// Migrate applies all pending migrations in version order, each in its own transaction.
// It returns the number of migrations applied.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, ok := done[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
		count++
	}
	return count, nil
}

// Rollback reverts the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range done {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			mig = &m.migrations[i]
		}
	}
	if mig == nil || mig.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return fmt.Errorf("rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status returns every migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := done[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

// Migrations returns the embedded migrations sorted by version.
func Migrations() []Migration {
	migs := []Migration{
		{Version: 1, Name: "create_progress_records", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_activity", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_goals", UpSQL: migration003Up, DownSQL: migration003Down},
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	return migs
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: PROGRESS RECORDS & ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS progress_records (
    user_id VARCHAR(128) PRIMARY KEY,
    total_xp INTEGER NOT NULL DEFAULT 0,
    level VARCHAR(20) NOT NULL DEFAULT 'beginner',
    streak INTEGER NOT NULL DEFAULT 0,
    last_activity_date DATE,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total_xp CHECK (total_xp >= 0),
    CONSTRAINT valid_streak CHECK (streak >= 0),
    CONSTRAINT valid_level CHECK (level IN ('beginner', 'intermediate', 'advanced', 'expert'))
);

-- Streak expiry scans
CREATE INDEX IF NOT EXISTS idx_progress_records_stale
    ON progress_records(last_activity_date) WHERE streak > 0;

CREATE TABLE IF NOT EXISTS achievements (
    user_id VARCHAR(128) NOT NULL REFERENCES progress_records(user_id) ON DELETE CASCADE,
    achievement_id VARCHAR(50) NOT NULL,
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category VARCHAR(30) NOT NULL,
    xp_reward INTEGER NOT NULL,
    progress INTEGER NOT NULL DEFAULT 100,
    unlocked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, achievement_id)
);
`

const migration001Down = `
DROP TABLE IF EXISTS achievements;
DROP TABLE IF EXISTS progress_records;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: STORY & PRACTICE RESULTS, ACTIVITY FEED
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS story_results (
    user_id VARCHAR(128) NOT NULL REFERENCES progress_records(user_id) ON DELETE CASCADE,
    story_id VARCHAR(128) NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    score INTEGER NOT NULL,
    time_spent INTEGER NOT NULL,
    points INTEGER NOT NULL DEFAULT 0,
    without_translation BOOLEAN NOT NULL DEFAULT FALSE,
    attempts INTEGER NOT NULL DEFAULT 1,
    completed_at TIMESTAMPTZ NOT NULL,

    PRIMARY KEY (user_id, story_id),
    CONSTRAINT valid_story_score CHECK (score BETWEEN 0 AND 100)
);

CREATE TABLE IF NOT EXISTS practice_results (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL REFERENCES progress_records(user_id) ON DELETE CASCADE,
    type VARCHAR(20) NOT NULL,
    score INTEGER NOT NULL,
    time_spent INTEGER NOT NULL,
    mistakes TEXT[] NOT NULL DEFAULT '{}',
    feedback TEXT NOT NULL DEFAULT '',
    submitted_at TIMESTAMPTZ NOT NULL,

    CONSTRAINT valid_practice_score CHECK (score BETWEEN 0 AND 100),
    CONSTRAINT valid_practice_type CHECK (type IN ('speaking', 'writing', 'reading', 'conversation'))
);

CREATE INDEX IF NOT EXISTS idx_practice_results_user_date
    ON practice_results(user_id, submitted_at DESC);

CREATE TABLE IF NOT EXISTS activity_feed (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL REFERENCES progress_records(user_id) ON DELETE CASCADE,
    kind VARCHAR(20) NOT NULL,
    ref_id VARCHAR(128) NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    xp INTEGER NOT NULL DEFAULT 0,
    occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activity_feed_user_date
    ON activity_feed(user_id, occurred_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS activity_feed;
DROP TABLE IF EXISTS practice_results;
DROP TABLE IF EXISTS story_results;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: GOALS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS goals (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL REFERENCES progress_records(user_id) ON DELETE CASCADE,
    type VARCHAR(30) NOT NULL,
    target INTEGER NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    end_date TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ,

    CONSTRAINT valid_goal_target CHECK (target >= 1),
    CONSTRAINT valid_goal_status CHECK (status IN ('active', 'completed', 'expired'))
);

CREATE INDEX IF NOT EXISTS idx_goals_user_created ON goals(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_goals_overdue ON goals(end_date) WHERE status = 'active';
`

const migration003Down = `
DROP TABLE IF EXISTS goals;
`
