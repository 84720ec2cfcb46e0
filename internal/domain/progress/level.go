package progress

import (
	"fmt"
	"math"

	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP
// ══════════════════════════════════════════════════════════════════════════════

// XP - очки опыта, единственная "валюта" прогресса.
type XP int

// MaxXP - потолок XP. Дельта, которая его превышает, отклоняется.
const MaxXP XP = math.MaxInt32

// IsValid проверяет, что XP неотрицателен и не выше потолка.
func (x XP) IsValid() bool {
	return x >= 0 && x <= MaxXP
}

// Int возвращает значение как int.
func (x XP) Int() int {
	return int(x)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL
// ══════════════════════════════════════════════════════════════════════════════

// Level - именованный диапазон XP.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
	LevelExpert       Level = "expert"
)

// IsValid проверяет, что уровень есть в таблице по умолчанию.
func (l Level) IsValid() bool {
	_, ok := DefaultLevels.Range(l)
	return ok
}

// String возвращает строковое представление.
func (l Level) String() string {
	return string(l)
}

// ParseLevel разбирает строку в Level.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.IsValid() {
		return "", shared.NewDomainError("progress", "ParseLevel", shared.ErrInvalidInput,
			fmt.Sprintf("unknown level %q", s))
	}
	return l, nil
}

// NoUpperBound отмечает последний уровень таблицы.
const NoUpperBound XP = -1

// LevelRange - одна строка таблицы уровней: [MinXP, MaxXP).
type LevelRange struct {
	Level Level
	MinXP XP
	MaxXP XP // NoUpperBound для последнего уровня
}

// IsTop возвращает true для уровня без верхней границы.
func (r LevelRange) IsTop() bool {
	return r.MaxXP == NoUpperBound
}

// Contains проверяет, попадает ли xp в диапазон.
func (r LevelRange) Contains(xp XP) bool {
	if xp < r.MinXP {
		return false
	}
	return r.IsTop() || xp < r.MaxXP
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL TABLE
// ══════════════════════════════════════════════════════════════════════════════

// LevelTable - упорядоченная непрерывная таблица уровней, покрывающая [0, ∞).
type LevelTable struct {
	ranges []LevelRange
}

// DefaultLevels - таблица уровней платформы.
var DefaultLevels = MustLevelTable(
	LevelRange{Level: LevelBeginner, MinXP: 0, MaxXP: 1000},
	LevelRange{Level: LevelIntermediate, MinXP: 1000, MaxXP: 2500},
	LevelRange{Level: LevelAdvanced, MinXP: 2500, MaxXP: 5000},
	LevelRange{Level: LevelExpert, MinXP: 5000, MaxXP: NoUpperBound},
)

// NewLevelTable создаёт таблицу и проверяет её инварианты:
// начинается с 0, диапазоны идут встык, последний без верхней границы.
func NewLevelTable(ranges ...LevelRange) (LevelTable, error) {
	invalid := func(msg string) (LevelTable, error) {
		return LevelTable{}, shared.NewDomainError("progress", "NewLevelTable", shared.ErrInvalidInput, msg)
	}

	if len(ranges) == 0 {
		return invalid("level table is empty")
	}
	if ranges[0].MinXP != 0 {
		return invalid("first level must start at 0 XP")
	}

	seen := make(map[Level]bool, len(ranges))
	for i, r := range ranges {
		if r.Level == "" {
			return invalid(fmt.Sprintf("level #%d has no name", i))
		}
		if seen[r.Level] {
			return invalid(fmt.Sprintf("level %q is listed twice", r.Level))
		}
		seen[r.Level] = true

		last := i == len(ranges)-1
		if last != r.IsTop() {
			return invalid(fmt.Sprintf("only the last level may be unbounded (level %q)", r.Level))
		}
		if !last {
			if r.MaxXP <= r.MinXP {
				return invalid(fmt.Sprintf("level %q has an empty range", r.Level))
			}
			if ranges[i+1].MinXP != r.MaxXP {
				return invalid(fmt.Sprintf("gap or overlap after level %q", r.Level))
			}
		}
	}

	out := make([]LevelRange, len(ranges))
	copy(out, ranges)
	return LevelTable{ranges: out}, nil
}

// MustLevelTable как NewLevelTable, но паникует при ошибке.
func MustLevelTable(ranges ...LevelRange) LevelTable {
	t, err := NewLevelTable(ranges...)
	if err != nil {
		panic(err)
	}
	return t
}

// Ranges возвращает копию строк таблицы.
func (t LevelTable) Ranges() []LevelRange {
	out := make([]LevelRange, len(t.ranges))
	copy(out, t.ranges)
	return out
}

// LevelFor возвращает уровень, диапазон которого содержит xp.
// Отрицательный xp трактуется как 0.
func (t LevelTable) LevelFor(xp XP) Level {
	if xp < 0 {
		xp = 0
	}
	for i := len(t.ranges) - 1; i >= 0; i-- {
		if xp >= t.ranges[i].MinXP {
			return t.ranges[i].Level
		}
	}
	return t.ranges[0].Level
}

// Range возвращает диапазон уровня.
func (t LevelTable) Range(l Level) (LevelRange, bool) {
	for _, r := range t.ranges {
		if r.Level == l {
			return r, true
		}
	}
	return LevelRange{}, false
}

// Next возвращает следующий уровень; false, если l - последний.
func (t LevelTable) Next(l Level) (LevelRange, bool) {
	for i, r := range t.ranges {
		if r.Level == l && i+1 < len(t.ranges) {
			return t.ranges[i+1], true
		}
	}
	return LevelRange{}, false
}

// ProgressToNext возвращает процент пройденного пути внутри уровня, [0,100].
// Для уровня без верхней границы - всегда 100.
func (t LevelTable) ProgressToNext(xp XP, l Level) int {
	r, ok := t.Range(l)
	if !ok {
		return 0
	}
	if r.IsTop() {
		return 100
	}
	return shared.RoundPercent(int(xp-r.MinXP), int(r.MaxXP-r.MinXP))
}

// LevelFor использует таблицу по умолчанию.
func LevelFor(xp XP) Level {
	return DefaultLevels.LevelFor(xp)
}

// ProgressToNext использует таблицу по умолчанию.
func ProgressToNext(xp XP, l Level) int {
	return DefaultLevels.ProgressToNext(xp, l)
}

// NextLevel возвращает уровень, следующий за l в таблице по умолчанию.
func NextLevel(l Level) (Level, bool) {
	r, ok := DefaultLevels.Next(l)
	return r.Level, ok
}
