// Package sqlite implements an embedded single-file store of the progress hub
// on sqlx and go-sqlite3. Every unit of work is a BEGIN IMMEDIATE transaction,
// so writers are serialized by the database itself.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/goal"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrTransactionFailed indicates a transaction could not be started.
var ErrTransactionFailed = errors.New("sqlite: transaction failed")

// Config holds the database location and lock wait.
type Config struct {
	// Path is a file path or MemoryPath.
	Path string

	// BusyTimeout is how long a writer waits for the database lock.
	BusyTimeout time.Duration
}

// DSN builds the go-sqlite3 connection string.
func (c Config) DSN() string {
	busy := c.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	return fmt.Sprintf("%s?_txlock=immediate&_foreign_keys=on&_busy_timeout=%d", c.Path, busy.Milliseconds())
}

// Store owns the database handle and opens units of work.
// Implements progress.UnitOfWorkFactory.
type Store struct {
	db *sqlx.DB
}

// Open connects to the database and creates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = MemoryPath
	}
	if cfg.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}

	// SQLite has a single writer; one connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

// Begin starts an immediate transaction.
func (s *Store) Begin(ctx context.Context) (progress.UnitOfWork, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionFailed, mapError(err))
	}
	return &unitOfWork{tx: tx}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

type unitOfWork struct {
	tx   *sqlx.Tx
	done bool
}

func (u *unitOfWork) Records() progress.RecordRepository {
	return NewRecordRepository(u.tx)
}

func (u *unitOfWork) Achievements() progress.AchievementRepository {
	return NewAchievementRepository(u.tx)
}

func (u *unitOfWork) Activity() activity.Repository {
	return NewActivityRepository(u.tx)
}

func (u *unitOfWork) Goals() goal.Repository {
	return NewGoalRepository(u.tx)
}

func (u *unitOfWork) Commit(context.Context) error {
	if err := u.tx.Commit(); err != nil {
		return mapError(err)
	}
	u.done = true
	return nil
}

func (u *unitOfWork) Rollback(context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// newBuilder returns the statement builder shared by all repositories.
func newBuilder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
}

// mapError translates SQLite result codes into domain error kinds.
func mapError(err error) error {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return err
	}
	switch {
	case sqlErr.ExtendedCode == sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %v", shared.ErrNotFound, err)
	case sqlErr.Code == sqlite3.ErrConstraint,
		sqlErr.Code == sqlite3.ErrBusy,
		sqlErr.Code == sqlite3.ErrLocked:
		return fmt.Errorf("%w: %v", shared.ErrPersistenceConflict, err)
	}
	return err
}

// utc normalizes stored timestamps so text comparisons in SQL order correctly.
func utc(t time.Time) time.Time {
	return t.UTC()
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA
// ══════════════════════════════════════════════════════════════════════════════

var schema = []string{
	`CREATE TABLE IF NOT EXISTS progress_records (
		user_id TEXT PRIMARY KEY,
		total_xp INTEGER NOT NULL DEFAULT 0 CHECK (total_xp >= 0),
		level TEXT NOT NULL DEFAULT 'beginner',
		streak INTEGER NOT NULL DEFAULT 0 CHECK (streak >= 0),
		last_activity_date DATETIME,
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_progress_records_stale
		ON progress_records(last_activity_date) WHERE streak > 0`,
	`CREATE TABLE IF NOT EXISTS achievements (
		user_id TEXT NOT NULL REFERENCES progress_records(user_id) ON DELETE CASCADE,
		achievement_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		xp_reward INTEGER NOT NULL,
		progress INTEGER NOT NULL DEFAULT 100,
		unlocked_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, achievement_id)
	)`,
	`CREATE TABLE IF NOT EXISTS story_results (
		user_id TEXT NOT NULL REFERENCES progress_records(user_id) ON DELETE CASCADE,
		story_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		score INTEGER NOT NULL CHECK (score BETWEEN 0 AND 100),
		time_spent INTEGER NOT NULL,
		points INTEGER NOT NULL DEFAULT 0,
		without_translation BOOLEAN NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 1,
		completed_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, story_id)
	)`,
	`CREATE TABLE IF NOT EXISTS practice_results (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES progress_records(user_id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		score INTEGER NOT NULL CHECK (score BETWEEN 0 AND 100),
		time_spent INTEGER NOT NULL,
		mistakes TEXT NOT NULL DEFAULT '[]',
		feedback TEXT NOT NULL DEFAULT '',
		submitted_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_practice_results_user_date
		ON practice_results(user_id, submitted_at DESC)`,
	`CREATE TABLE IF NOT EXISTS activity_feed (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES progress_records(user_id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		ref_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		xp INTEGER NOT NULL DEFAULT 0,
		occurred_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_feed_user_date
		ON activity_feed(user_id, occurred_at DESC)`,
	`CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES progress_records(user_id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		target INTEGER NOT NULL CHECK (target >= 1),
		progress INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		end_date DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_goals_user_created ON goals(user_id, created_at DESC)`,
}
