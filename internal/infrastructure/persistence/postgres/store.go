package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/goal"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// txStarter is implemented by *Connection, *pgxpool.Pool and pgxmock pools.
type txStarter interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Store opens units of work over PostgreSQL. Implements progress.UnitOfWorkFactory.
type Store struct {
	db  txStarter
	loc *time.Location
}

// NewStore creates a store over a connection or a pool. loc is the zone
// calendar days are counted in.
func NewStore(db txStarter, loc *time.Location) *Store {
	return &Store{db: db, loc: loc}
}

// Begin starts a read-committed transaction. Row locks taken with
// GetForUpdate serialize writers of the same user.
func (s *Store) Begin(ctx context.Context) (progress.UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	return &unitOfWork{tx: tx, loc: s.loc}, nil
}

type unitOfWork struct {
	tx   pgx.Tx
	loc  *time.Location
	done bool
}

func (u *unitOfWork) Records() progress.RecordRepository {
	return NewRecordRepository(u.tx, u.loc)
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

// Savepoint runs fn in a nested transaction. On error it rolls back to the
// savepoint and the outer transaction stays usable.
func (u *unitOfWork) Savepoint(ctx context.Context, fn func(progress.UnitOfWork) error) error {
	sp, err := u.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("create savepoint: %w", mapError(err))
	}
	if err := fn(&unitOfWork{tx: sp, loc: u.loc}); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback to savepoint: %v)", err, rbErr)
		}
		return err
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("release savepoint: %w", mapError(err))
	}
	return nil
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	u.done = true
	return nil
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// newBuilder returns the statement builder shared by all repositories.
func newBuilder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}
