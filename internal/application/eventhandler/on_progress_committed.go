// Package eventhandler содержит обработчики доменных событий.
// Обработчики вызываются только для событий зафиксированных транзакций
// и выполняют побочные эффекты: метрики и пересылку наружу.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PROGRESS COMMITTED HANDLER
// Реагирует на все события прогресса, целей и активности:
//   - обновляет счётчики
//   - пересылает событие во внешнюю шину (если включено)
// Кэш обзора сбрасывает сам поток прогресса до возврата команды.
// ═══════════════════════════════════════════════════════════════════════════

// ProgressMetrics - счётчики, обновляемые по событиям.
type ProgressMetrics interface {
	RecordXP(source string, amount int)
	RecordLevelUp(from, to string)
	RecordAchievement(id string)
	RecordStreakBroken()
	RecordGoal(eventType string)
}

// EventForwarder пересылает событие во внешнюю систему (Kafka).
type EventForwarder interface {
	Forward(ctx context.Context, event shared.Event) error
}

// ProgressCommittedConfig содержит конфигурацию обработчика.
type ProgressCommittedConfig struct {
	// ForwardEvents - пересылать ли события наружу.
	ForwardEvents bool

	// Timeout - ограничение на побочные эффекты одного события.
	Timeout time.Duration
}

// DefaultProgressCommittedConfig возвращает конфигурацию по умолчанию.
func DefaultProgressCommittedConfig() ProgressCommittedConfig {
	return ProgressCommittedConfig{
		ForwardEvents: false,
		Timeout:       3 * time.Second,
	}
}

// OnProgressCommittedHandler обрабатывает события прогресса.
type OnProgressCommittedHandler struct {
	metrics   ProgressMetrics
	forwarder EventForwarder
	logger    *slog.Logger
	config    ProgressCommittedConfig
}

// NewOnProgressCommittedHandler создаёт обработчик. Любая зависимость может быть nil.
func NewOnProgressCommittedHandler(
	metrics ProgressMetrics,
	forwarder EventForwarder,
	logger *slog.Logger,
	config ProgressCommittedConfig,
) *OnProgressCommittedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultProgressCommittedConfig().Timeout
	}
	return &OnProgressCommittedHandler{
		metrics:   metrics,
		forwarder: forwarder,
		logger:    logger.With("handler", "on_progress_committed"),
		config:    config,
	}
}

// Subscribe регистрирует обработчик на все события шины.
func (h *OnProgressCommittedHandler) Subscribe(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(h.Handle)
}

// Handle обрабатывает событие. Реализует shared.EventHandler.
// Ошибки пересылки возвращаются, метрики не падают.
func (h *OnProgressCommittedHandler) Handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	// 1. Метрики
	if h.metrics != nil {
		h.record(event)
	}

	// 2. Пересылка
	if !h.config.ForwardEvents || h.forwarder == nil {
		return nil
	}
	if err := h.forwarder.Forward(ctx, event); err != nil {
		h.logger.Error("failed to forward event",
			"event_type", event.EventType(),
			"user_id", event.AggregateID(),
			"error", err,
		)
		return fmt.Errorf("forward %s: %w", event.EventType(), err)
	}
	return nil
}

// record обновляет счётчики по типу события.
func (h *OnProgressCommittedHandler) record(event shared.Event) {
	switch e := event.(type) {
	case shared.XPGainedEvent:
		h.metrics.RecordXP(e.Source, e.Amount)
	case shared.LevelUpEvent:
		h.logger.Info("level up", "user_id", e.UserID, "from", e.OldLevel, "to", e.NewLevel)
		h.metrics.RecordLevelUp(e.OldLevel, e.NewLevel)
	case shared.AchievementUnlockedEvent:
		h.metrics.RecordAchievement(e.AchievementID)
	case shared.StreakBrokenEvent:
		h.metrics.RecordStreakBroken()
	case shared.GoalEvent:
		h.metrics.RecordGoal(string(e.EventType()))
	}
}
