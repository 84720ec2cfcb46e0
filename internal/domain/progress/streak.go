package progress

import (
	"time"

	"github.com/ivrit-hub/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// StreakOutcome описывает, что произошло с серией.
type StreakOutcome string

const (
	// StreakUnchanged - активность в тот же день, серия не меняется.
	StreakUnchanged StreakOutcome = "unchanged"

	// StreakStarted - первая активность (дата не была задана).
	StreakStarted StreakOutcome = "started"

	// StreakContinued - активность на следующий день, серия +1.
	StreakContinued StreakOutcome = "continued"

	// StreakReset - пропуск больше дня, серия начинается заново с 1.
	StreakReset StreakOutcome = "reset"
)

// StreakChange - результат Tick.
type StreakChange struct {
	Outcome    StreakOutcome
	Previous   int
	Current    int
	DaysMissed int
}

// Changed возвращает true, если запись изменилась.
func (c StreakChange) Changed() bool {
	return c.Outcome != StreakUnchanged
}

// Broken возвращает true, если была прервана серия длиннее одного дня.
func (c StreakChange) Broken() bool {
	return c.Outcome == StreakReset && c.Previous > 1
}

// StreakTracker считает серии в календарных днях одной опорной зоны.
type StreakTracker struct {
	loc *time.Location
}

// NewStreakTracker создаёт трекер для зоны loc (nil - зона по умолчанию).
func NewStreakTracker(loc *time.Location) StreakTracker {
	if loc == nil {
		loc = timeutil.DefaultZone
	}
	return StreakTracker{loc: loc}
}

// Location возвращает опорную зону.
func (t StreakTracker) Location() *time.Location {
	return t.loc
}

// Tick отмечает активность в день today и возвращает новую запись.
//
//   - тот же день: без изменений (повторные активности не раздувают серию)
//   - следующий день: streak + 1
//   - пропуск больше дня или дата не задана: streak = 1 (сегодня - первый день)
//
// При любом изменении LastActivityDate = начало дня today.
// today раньше последней активности (сдвиг часов) трактуется как тот же день.
func (t StreakTracker) Tick(rec Record, today time.Time) (Record, StreakChange) {
	day := timeutil.StartOfDay(today, t.loc)
	change := StreakChange{Previous: rec.Streak}

	if !rec.HasActivity() {
		change.Outcome = StreakStarted
	} else {
		switch days := timeutil.DaysBetween(rec.LastActivityDate, day, t.loc); {
		case days <= 0:
			change.Outcome = StreakUnchanged
			change.Current = rec.Streak
			return rec, change
		case days == 1:
			change.Outcome = StreakContinued
		default:
			change.Outcome = StreakReset
			change.DaysMissed = days - 1
		}
	}

	out := rec.Clone()
	if change.Outcome == StreakContinued {
		out.Streak = rec.Streak + 1
	} else {
		out.Streak = 1
	}
	out.LastActivityDate = day
	change.Current = out.Streak
	return out, change
}

// Expire обнуляет отображаемую серию, если последняя активность была
// раньше вчерашнего дня. Дата активности сохраняется, следующий Tick даст 1.
func (t StreakTracker) Expire(rec Record, today time.Time) (Record, bool) {
	if rec.Streak == 0 || !rec.HasActivity() {
		return rec, false
	}
	if timeutil.DaysBetween(rec.LastActivityDate, today, t.loc) <= 1 {
		return rec, false
	}
	out := rec.Clone()
	out.Streak = 0
	return out, true
}
