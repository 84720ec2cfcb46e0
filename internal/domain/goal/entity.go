// Package goal содержит учебные цели пользователя: набрать XP за день,
// прочитать N историй, позаниматься N минут.
package goal

import (
	"time"

	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Type - тип цели.
type Type string

const (
	TypeDailyXP          Type = "daily_xp"
	TypeStoriesCompleted Type = "stories_completed"
	TypePracticeTime     Type = "practice_time"
)

// IsValid проверяет тип цели.
func (t Type) IsValid() bool {
	switch t {
	case TypeDailyXP, TypeStoriesCompleted, TypePracticeTime:
		return true
	}
	return false
}

// Status - состояние цели.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// ══════════════════════════════════════════════════════════════════════════════
// GOAL
// ══════════════════════════════════════════════════════════════════════════════

// Goal - учебная цель с числовым порогом.
type Goal struct {
	ID          string
	UserID      string
	Type        Type
	Target      int
	Progress    int
	Status      Status
	EndDate     time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time
}

// NewGoalParams - параметры создания цели.
type NewGoalParams struct {
	ID      string
	UserID  string
	Type    Type
	Target  int
	EndDate time.Time
	Now     time.Time
}

// NewGoal создаёт активную цель с нулевым прогрессом.
func NewGoal(p NewGoalParams) (*Goal, error) {
	if p.ID == "" {
		return nil, shared.NewDomainError("goal", "Create", shared.ErrInvalidID, "goal ID is required")
	}
	if _, err := shared.NewUserID(p.UserID); err != nil {
		return nil, err
	}
	if !p.Type.IsValid() {
		return nil, shared.ErrInvalidGoalType
	}
	if p.Target < 1 {
		return nil, shared.ErrInvalidGoalTarget
	}
	if !p.EndDate.After(p.Now) {
		return nil, shared.ErrGoalEndInPast
	}

	return &Goal{
		ID:        p.ID,
		UserID:    p.UserID,
		Type:      p.Type,
		Target:    p.Target,
		Progress:  0,
		Status:    StatusActive,
		EndDate:   p.EndDate,
		CreatedAt: p.Now,
		UpdatedAt: p.Now,
	}, nil
}

// IsCompleted возвращает true для выполненной цели.
func (g *Goal) IsCompleted() bool {
	return g.Status == StatusCompleted
}

// IsActive - цель не выполнена, не просрочена и срок ещё не вышел.
func (g *Goal) IsActive(now time.Time) bool {
	return g.Status == StatusActive && now.Before(g.EndDate)
}

// IsOverdue - активная цель с истёкшим сроком.
func (g *Goal) IsOverdue(now time.Time) bool {
	return g.Status == StatusActive && !now.Before(g.EndDate)
}

// Percent возвращает прогресс в процентах [0,100].
func (g *Goal) Percent() int {
	return shared.RoundPercent(g.Progress, g.Target)
}

// ProgressUpdate - результат UpdateProgress.
type ProgressUpdate struct {
	WasCompleted bool
	Completed    bool
}

// NewlyCompleted - цель выполнена именно этим обновлением.
func (u ProgressUpdate) NewlyCompleted() bool {
	return !u.WasCompleted && u.Completed
}

// UpdateProgress устанавливает прогресс. Цель выполняется, когда
// progress >= target. Выполнение необратимо: уменьшение прогресса
// не возвращает цель в активное состояние, повторная отправка не
// считается новым выполнением.
func (g *Goal) UpdateProgress(progress int, now time.Time) (ProgressUpdate, error) {
	if progress < 0 {
		return ProgressUpdate{}, shared.ErrNegativeProgress
	}
	if g.Status == StatusExpired || g.IsOverdue(now) {
		return ProgressUpdate{}, shared.ErrGoalExpired
	}

	upd := ProgressUpdate{WasCompleted: g.IsCompleted()}
	g.Progress = progress
	g.UpdatedAt = now

	if !upd.WasCompleted && progress >= g.Target {
		g.Status = StatusCompleted
		g.CompletedAt = now
	}
	upd.Completed = g.IsCompleted()
	return upd, nil
}

// Expire помечает просроченную цель. Возвращает false, если цель не просрочена.
func (g *Goal) Expire(now time.Time) bool {
	if !g.IsOverdue(now) {
		return false
	}
	g.Status = StatusExpired
	g.UpdatedAt = now
	return true
}
