package progress

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATISTICS SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// StatKey - имя показателя в снимке статистики.
type StatKey string

const (
	StatStreak              StatKey = "streak"
	StatCompletedStories    StatKey = "completed_stories"
	StatPerfectStories      StatKey = "perfect_score_stories"
	StatFastAccurateStories StatKey = "fast_accurate_stories"
	StatNoTranslation       StatKey = "no_translation_stories"
)

// Stats - снимок статистики пользователя, вход для правил достижений.
// Отсутствующий ключ означает "данных нет", а не ноль.
type Stats struct {
	UserID string
	Values map[StatKey]int
}

// NewStats создаёт пустой снимок.
func NewStats(userID string) Stats {
	return Stats{UserID: userID, Values: make(map[StatKey]int)}
}

// With возвращает снимок с установленным значением.
func (s Stats) With(key StatKey, value int) Stats {
	values := make(map[StatKey]int, len(s.Values)+1)
	for k, v := range s.Values {
		values[k] = v
	}
	values[key] = value
	return Stats{UserID: s.UserID, Values: values}
}

// Get возвращает значение и признак его наличия.
func (s Stats) Get(key StatKey) (int, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// ══════════════════════════════════════════════════════════════════════════════
// RULES
// ══════════════════════════════════════════════════════════════════════════════

const (
	AchievementWeekStreak    AchievementID = "week_streak"
	AchievementStories10     AchievementID = "stories_10"
	AchievementPerfect5      AchievementID = "perfect_5"
	AchievementFirstStory    AchievementID = "first_story"
	AchievementSpeedDemon    AchievementID = "speed_demon"
	AchievementNoTranslation AchievementID = "no_translation"
)

// Rule - статическое определение достижения: показатель Stat должен достичь Target.
type Rule struct {
	ID          AchievementID
	Name        string
	Description string
	Category    Category
	Stat        StatKey
	Target      int
	XPReward    int
}

// DefaultRules - канонический набор правил. Порядок определяет порядок выдачи.
var DefaultRules = []Rule{
	{
		ID:          AchievementWeekStreak,
		Name:        "Week Warrior",
		Description: "Maintained a 7-day learning streak",
		Category:    CategoryStreak,
		Stat:        StatStreak,
		Target:      7,
		XPReward:    100,
	},
	{
		ID:          AchievementStories10,
		Name:        "Story Master",
		Description: "Completed 10 stories",
		Category:    CategoryReading,
		Stat:        StatCompletedStories,
		Target:      10,
		XPReward:    200,
	},
	{
		ID:          AchievementPerfect5,
		Name:        "Perfectionist",
		Description: "Achieved perfect score in 5 stories",
		Category:    CategoryAccuracy,
		Stat:        StatPerfectStories,
		Target:      5,
		XPReward:    300,
	},
	{
		ID:          AchievementFirstStory,
		Name:        "First Steps",
		Description: "Complete your first story",
		Category:    CategoryReading,
		Stat:        StatCompletedStories,
		Target:      1,
		XPReward:    50,
	},
	{
		ID:          AchievementSpeedDemon,
		Name:        "Speed Demon",
		Description: "Complete a story in under 3 minutes with at least 80% accuracy",
		Category:    CategorySpeed,
		Stat:        StatFastAccurateStories,
		Target:      1,
		XPReward:    150,
	},
	{
		ID:          AchievementNoTranslation,
		Name:        "Hebrew Master",
		Description: "Complete a story without using translation",
		Category:    CategoryReading,
		Stat:        StatNoTranslation,
		Target:      1,
		XPReward:    200,
	},
}

// current возвращает значение показателя правила или ErrStatsIncomplete.
func (r Rule) current(stats Stats) (int, error) {
	v, ok := stats.Get(r.Stat)
	if !ok {
		return 0, shared.NewDomainError("progress", "EvaluateRule", shared.ErrStatsIncomplete,
			fmt.Sprintf("rule %s needs %s", r.ID, r.Stat))
	}
	return v, nil
}

// Progress возвращает min(100, round(current/target*100)).
func (r Rule) Progress(stats Stats) (int, error) {
	cur, err := r.current(stats)
	if err != nil {
		return 0, err
	}
	return shared.RoundPercent(cur, r.Target), nil
}

// IsUnlocked проверяет условие разблокировки.
func (r Rule) IsUnlocked(stats Stats) (bool, error) {
	cur, err := r.current(stats)
	if err != nil {
		return false, err
	}
	return cur >= r.Target, nil
}

// unlock создаёт запись о разблокировке.
func (r Rule) unlock(now time.Time) Unlock {
	return Unlock{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		XPReward:    r.XPReward,
		UnlockedAt:  now,
		Progress:    100,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Evaluation - результат одного прохода по правилам.
type Evaluation struct {
	// Unlocked - впервые разблокированные достижения.
	Unlocked []Unlock

	// TotalXP - сумма наград, начисляется одной дельтой.
	TotalXP int

	// Skipped - правила, пропущенные из-за неполной статистики.
	Skipped []error
}

// HasUnlocks возвращает true, если что-то разблокировано.
func (e Evaluation) HasUnlocks() bool {
	return len(e.Unlocked) > 0
}

// CatalogueEntry - правило с прогрессом пользователя (для UI).
type CatalogueEntry struct {
	Rule       Rule
	Unlocked   bool
	UnlockedAt time.Time
	Progress   int
	Available  bool // false, если статистики для правила нет
}

// Engine проверяет правила против снимка статистики.
type Engine struct {
	rules  []Rule
	logger *slog.Logger
}

// NewEngine создаёт движок. Без правил используется DefaultRules.
func NewEngine(logger *slog.Logger, rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]Rule, len(rules))
	copy(out, rules)
	return &Engine{rules: out, logger: logger.With("component", "achievement_engine")}
}

// Rules возвращает копию набора правил.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Rule возвращает правило по ID.
func (e *Engine) Rule(id AchievementID) (Rule, bool) {
	for _, r := range e.rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// Evaluate возвращает достижения, которые выполнены и ещё не получены.
// Правило с неполной статистикой пропускается и логируется, остальные
// проверяются как обычно.
func (e *Engine) Evaluate(stats Stats, already AchievementSet, now time.Time) Evaluation {
	var ev Evaluation

	for _, rule := range e.rules {
		if already.Has(rule.ID) {
			continue
		}

		ok, err := rule.IsUnlocked(stats)
		if err != nil {
			e.logger.Warn("achievement rule skipped",
				"user_id", stats.UserID,
				"achievement", string(rule.ID),
				"missing_stat", string(rule.Stat),
			)
			ev.Skipped = append(ev.Skipped, err)
			continue
		}
		if !ok {
			continue
		}

		ev.Unlocked = append(ev.Unlocked, rule.unlock(now))
		ev.TotalXP += AchievementXP(rule)
	}

	return ev
}

// Catalogue возвращает все правила с прогрессом пользователя.
func (e *Engine) Catalogue(stats Stats, already AchievementSet) []CatalogueEntry {
	out := make([]CatalogueEntry, 0, len(e.rules))
	for _, rule := range e.rules {
		entry := CatalogueEntry{Rule: rule, Available: true}

		if u, ok := already[rule.ID]; ok {
			entry.Unlocked = true
			entry.UnlockedAt = u.UnlockedAt
			entry.Progress = 100
			out = append(out, entry)
			continue
		}

		p, err := rule.Progress(stats)
		if err != nil {
			entry.Available = false
		}
		entry.Progress = p
		out = append(out, entry)
	}
	return out
}

// Award добавляет разблокированные достижения в запись и начисляет их
// суммарную награду одной дельтой: одна проверка смены уровня на весь проход.
func (l Ledger) Award(rec Record, ev Evaluation) (Record, *LevelChange, error) {
	if !ev.HasUnlocks() {
		return rec, nil, nil
	}
	return l.Apply(rec.WithUnlocks(ev.Unlocked), ev.TotalXP)
}
