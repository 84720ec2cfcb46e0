package progress

import (
	"context"
	"time"

	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/goal"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// RecordRepository хранит записи прогресса.
type RecordRepository interface {
	// Create сохраняет новую запись.
	// Возвращает ErrProgressAlreadyExists, если запись уже есть.
	Create(ctx context.Context, rec Record) error

	// Get возвращает запись вместе с достижениями.
	// Возвращает ErrProgressNotFound, если записи нет.
	Get(ctx context.Context, userID string) (*Record, error)

	// GetForUpdate как Get, но блокирует запись до конца транзакции.
	GetForUpdate(ctx context.Context, userID string) (*Record, error)

	// Save обновляет XP, уровень и серию при совпадении версии и
	// увеличивает rec.Version. Несовпадение версии - ErrRecordConflict.
	Save(ctx context.Context, rec *Record) error

	// ListStaleStreaks возвращает пользователей с ненулевой серией и
	// последней активностью раньше before.
	ListStaleStreaks(ctx context.Context, before time.Time, limit int) ([]string, error)

	// List возвращает записи по порядку user_id (для отчётов).
	List(ctx context.Context, page shared.Pagination) ([]*Record, error)
}

// AchievementRepository хранит разблокированные достижения.
type AchievementRepository interface {
	// Insert добавляет достижения. Повторная вставка того же ID -
	// ErrAchievementConflict.
	Insert(ctx context.Context, userID string, unlocks []Unlock) error

	// List возвращает достижения пользователя.
	List(ctx context.Context, userID string) (AchievementSet, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// UnitOfWork - одна транзакция над всеми репозиториями прогресса.
// Либо все изменения фиксируются через Commit, либо ни одно.
type UnitOfWork interface {
	Records() RecordRepository
	Achievements() AchievementRepository
	Activity() activity.Repository
	Goals() goal.Repository

	// Commit фиксирует транзакцию.
	Commit(ctx context.Context) error

	// Rollback откатывает транзакцию. После Commit ничего не делает.
	Rollback(ctx context.Context) error
}

// Savepointer реализуют транзакции, которые могут откатить часть работы,
// не прерывая внешнюю (PostgreSQL SAVEPOINT).
type Savepointer interface {
	Savepoint(ctx context.Context, fn func(UnitOfWork) error) error
}

// WithSavepoint выполняет fn внутри точки сохранения, если uow её поддерживает.
// Иначе fn получает сам uow: в SQLite и памяти неудачная операция не
// прерывает транзакцию.
func WithSavepoint(ctx context.Context, uow UnitOfWork, fn func(UnitOfWork) error) error {
	if sp, ok := uow.(Savepointer); ok {
		return sp.Savepoint(ctx, fn)
	}
	return fn(uow)
}

// UnitOfWorkFactory открывает транзакции.
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE & LOCK
// ══════════════════════════════════════════════════════════════════════════════

// OverviewCache кэширует обзоры прогресса.
type OverviewCache interface {
	// Get возвращает обзор и признак попадания.
	Get(ctx context.Context, userID string) (*Overview, bool, error)

	// Set сохраняет обзор, если ov.Version не старше последнего Invalidate.
	Set(ctx context.Context, userID string, ov Overview) error

	// Invalidate удаляет обзор пользователя и отклоняет последующие Set
	// с версией меньше version.
	Invalidate(ctx context.Context, userID string, version int64) error
}

// ReleaseFunc снимает блокировку пользователя.
type ReleaseFunc func(ctx context.Context) error

// UserLocker сериализует изменения одного пользователя.
type UserLocker interface {
	// Acquire ждёт блокировку пользователя или отмены ctx.
	Acquire(ctx context.Context, userID string) (ReleaseFunc, error)
}
