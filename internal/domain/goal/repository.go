package goal

import (
	"context"
	"time"
)

// Repository определяет операции хранения целей.
type Repository interface {
	// Create сохраняет новую цель.
	Create(ctx context.Context, g *Goal) error

	// GetForUpdate возвращает цель пользователя с блокировкой строки.
	// Возвращает ErrGoalNotFound, если цели нет или она чужая.
	GetForUpdate(ctx context.Context, userID, goalID string) (*Goal, error)

	// Update сохраняет прогресс и статус цели.
	Update(ctx context.Context, g *Goal) error

	// ListByUser возвращает цели пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string) ([]*Goal, error)

	// CountActive возвращает количество активных целей на момент now.
	CountActive(ctx context.Context, userID string, now time.Time) (int, error)

	// ListOverdue возвращает активные цели с истёкшим сроком.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*Goal, error)
}
