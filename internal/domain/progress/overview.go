package progress

import (
	"sort"
	"time"

	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS AGGREGATOR
// ══════════════════════════════════════════════════════════════════════════════

// RecentActivityLimit - сколько записей ленты показывает обзор.
const RecentActivityLimit = 5

// Learning - учебная статистика в обзоре.
type Learning struct {
	StoriesCompleted int
	AverageScore     float64
	PracticeMinutes  int
}

// OverviewInput - данные, собранные из хранилища для обзора.
type OverviewInput struct {
	ActiveGoals int
	Recent      []activity.Entry
	Stories     activity.StorySummary
	Practice    activity.PracticeSummary
}

// Overview - сводка прогресса пользователя.
type Overview struct {
	UserID            string
	Version           int64 // версия записи, из которой собран обзор
	Level             Level
	XP                XP
	NextLevel         Level // пусто для последнего уровня
	NextLevelXP       XP    // порог следующего уровня, 0 для последнего
	ProgressPercent   int
	Streak            int
	LastActivityDate  time.Time
	AchievementsCount int
	ActiveGoalsCount  int
	RecentActivity    []activity.Entry
	Learning          Learning
}

// IsTopLevel возвращает true, если расти больше некуда.
func (o Overview) IsTopLevel() bool {
	return o.NextLevel == ""
}

// Aggregator собирает обзор. Чистая функция от записи и входа.
type Aggregator struct {
	levels LevelTable
	window int
}

// NewAggregator создаёт агрегатор. window <= 0 - RecentActivityLimit.
func NewAggregator(levels LevelTable, window int) Aggregator {
	if window <= 0 {
		window = RecentActivityLimit
	}
	return Aggregator{levels: levels, window: window}
}

// DefaultAggregator использует DefaultLevels и окно из 5 записей.
var DefaultAggregator = NewAggregator(DefaultLevels, RecentActivityLimit)

// Summarize строит обзор. Для nil записи возвращает ErrProgressNotFound.
func (a Aggregator) Summarize(rec *Record, in OverviewInput) (Overview, error) {
	if rec == nil {
		return Overview{}, shared.ErrProgressNotFound
	}

	ov := Overview{
		UserID:            rec.UserID,
		Version:           rec.Version,
		Level:             rec.Level,
		XP:                rec.TotalXP,
		ProgressPercent:   a.levels.ProgressToNext(rec.TotalXP, rec.Level),
		Streak:            rec.Streak,
		LastActivityDate:  rec.LastActivityDate,
		AchievementsCount: rec.Achievements.Count(),
		ActiveGoalsCount:  in.ActiveGoals,
		RecentActivity:    a.recent(in.Recent),
		Learning: Learning{
			StoriesCompleted: in.Stories.Completed,
			AverageScore:     in.Stories.AverageScore,
			PracticeMinutes:  in.Practice.Minutes(),
		},
	}

	if next, ok := a.levels.Next(rec.Level); ok {
		ov.NextLevel = next.Level
		ov.NextLevelXP = next.MinXP
	}
	return ov, nil
}

// recent сортирует ленту от новых к старым и обрезает до окна.
func (a Aggregator) recent(entries []activity.Entry) []activity.Entry {
	out := make([]activity.Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	if len(out) > a.window {
		out = out[:a.window]
	}
	return out
}

// Summarize использует DefaultAggregator.
func Summarize(rec *Record, in OverviewInput) (Overview, error) {
	return DefaultAggregator.Summarize(rec, in)
}
