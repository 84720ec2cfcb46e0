package progress

import (
	"math"

	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// Source - источник начисления XP.
type Source string

const (
	SourceStory       Source = "story"
	SourcePractice    Source = "practice"
	SourceGoal        Source = "goal"
	SourceAchievement Source = "achievement"
)

// Константы начисления.
const (
	// PracticeScoreFactor - XP за каждый балл практики.
	PracticeScoreFactor = 0.5

	// LongPracticeThreshold - порог длительной практики в секундах.
	LongPracticeThreshold = 300

	// LongPracticeBonus - бонус за практику длиннее порога.
	LongPracticeBonus = 25

	// GoalCompletionXP - награда за выполненную цель.
	GoalCompletionXP = 100
)

// LevelChange - сигнал о смене уровня.
type LevelChange struct {
	From Level
	To   Level
}

// Ledger применяет дельты XP с пересчётом уровня по своей таблице.
type Ledger struct {
	levels LevelTable
}

// NewLedger создаёт журнал с заданной таблицей уровней.
func NewLedger(levels LevelTable) Ledger {
	return Ledger{levels: levels}
}

// IsZero возвращает true для журнала без таблицы уровней.
func (l Ledger) IsZero() bool {
	return len(l.levels.ranges) == 0
}

// Levels возвращает таблицу уровней журнала.
func (l Ledger) Levels() LevelTable {
	return l.levels
}

// DefaultLedger использует DefaultLevels.
var DefaultLedger = NewLedger(DefaultLevels)

// Apply возвращает новую запись с totalXP + delta и пересчитанным уровнем.
// LevelChange не nil только если уровень изменился.
// Отрицательная дельта или переполнение - ErrInvalidDelta, запись не меняется.
func (l Ledger) Apply(rec Record, delta int) (Record, *LevelChange, error) {
	if delta < 0 {
		return rec, nil, shared.ErrNegativeDelta
	}
	if XP(delta) > MaxXP-rec.TotalXP {
		return rec, nil, shared.ErrDeltaOverflow
	}

	out := rec.Clone()
	out.TotalXP = rec.TotalXP + XP(delta)
	out.Level = l.levels.LevelFor(out.TotalXP)

	if out.Level != rec.Level {
		return out, &LevelChange{From: rec.Level, To: out.Level}, nil
	}
	return out, nil, nil
}

// ApplyXP применяет дельту через DefaultLedger.
func ApplyXP(rec Record, delta int) (Record, *LevelChange, error) {
	return DefaultLedger.Apply(rec, delta)
}

// ══════════════════════════════════════════════════════════════════════════════
// ФОРМУЛЫ НАЧИСЛЕНИЯ
// ══════════════════════════════════════════════════════════════════════════════

// PracticeXP: round(score * 0.5) + 25, если timeSpent > 300 секунд.
func PracticeXP(score, timeSpentSec int) (int, error) {
	if err := validateScore(score); err != nil {
		return 0, err
	}
	if timeSpentSec < 0 {
		return 0, shared.ErrInvalidTimeSpent
	}

	xp := int(math.Round(float64(score) * PracticeScoreFactor))
	if timeSpentSec > LongPracticeThreshold {
		xp += LongPracticeBonus
	}
	return xp, nil
}

// StoryXP: round(score * storyPoints / 100).
func StoryXP(score, storyPoints int) (int, error) {
	if err := validateScore(score); err != nil {
		return 0, err
	}
	if storyPoints < 0 {
		return 0, shared.ErrInvalidStoryPoints
	}
	return int(math.Round(float64(score) * float64(storyPoints) / 100)), nil
}

// GoalXP возвращает награду только при переходе "не выполнена → выполнена".
// Повторная отправка уже выполненной цели даёт 0.
func GoalXP(wasCompleted, isCompleted bool) int {
	if !wasCompleted && isCompleted {
		return GoalCompletionXP
	}
	return 0
}

// AchievementXP - награда за разблокировку правила.
func AchievementXP(rule Rule) int {
	return rule.XPReward
}

func validateScore(score int) error {
	if !shared.Score(score).IsValid() {
		return shared.ErrInvalidScore
	}
	return nil
}
