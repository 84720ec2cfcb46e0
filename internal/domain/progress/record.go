package progress

import (
	"sort"
	"time"

	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record - запись прогресса одного пользователя.
// Создаётся при открытии аккаунта и изменяется только через ApplyXP,
// StreakTracker.Tick и Unlock.
type Record struct {
	// UserID - идентификатор пользователя.
	UserID string

	// TotalXP - суммарный XP, не убывает.
	TotalXP XP

	// Level - производное от TotalXP, клиенты не задают его напрямую.
	Level Level

	// Streak - количество подряд идущих дней с активностью.
	Streak int

	// LastActivityDate - начало дня последней активности (нулевое значение = не задано).
	LastActivityDate time.Time

	// Achievements - разблокированные достижения.
	Achievements AchievementSet

	// Version - версия для оптимистической блокировки.
	Version int64

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего изменения.
	UpdatedAt time.Time
}

// NewRecord создаёт пустую запись: 0 XP, beginner, серия 0, без достижений.
func NewRecord(userID string, now time.Time) (Record, error) {
	if _, err := shared.NewUserID(userID); err != nil {
		return Record{}, err
	}
	return Record{
		UserID:       userID,
		TotalXP:      0,
		Level:        DefaultLevels.LevelFor(0),
		Streak:       0,
		Achievements: AchievementSet{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasActivity возвращает true, если дата последней активности задана.
func (r Record) HasActivity() bool {
	return !r.LastActivityDate.IsZero()
}

// Clone возвращает глубокую копию записи.
func (r Record) Clone() Record {
	out := r
	out.Achievements = r.Achievements.Clone()
	return out
}

// Validate проверяет инварианты записи.
func (r Record) Validate() error {
	invalid := func(msg string) error {
		return shared.NewDomainError("progress", "Validate", shared.ErrInvalidState, msg)
	}

	if _, err := shared.NewUserID(r.UserID); err != nil {
		return err
	}
	if !r.TotalXP.IsValid() {
		return invalid("total XP out of range")
	}
	if r.Level != DefaultLevels.LevelFor(r.TotalXP) {
		return invalid("level does not match total XP")
	}
	if r.Streak < 0 {
		return invalid("streak cannot be negative")
	}
	if r.Streak > 0 && !r.HasActivity() {
		return invalid("streak without last activity date")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS (user data)
// ══════════════════════════════════════════════════════════════════════════════

// AchievementID - идентификатор достижения.
type AchievementID string

// Category - категория достижения.
type Category string

const (
	CategoryStreak   Category = "streak"
	CategoryReading  Category = "reading"
	CategoryAccuracy Category = "accuracy"
	CategorySpeed    Category = "speed"
)

// Unlock - факт разблокировки достижения. После записи не изменяется:
// награда фиксируется на момент получения.
type Unlock struct {
	ID          AchievementID
	Name        string
	Description string
	Category    Category
	XPReward    int
	UnlockedAt  time.Time
	Progress    int
}

// AchievementSet - множество разблокированных достижений.
type AchievementSet map[AchievementID]Unlock

// NewAchievementSet строит множество из списка.
func NewAchievementSet(unlocks ...Unlock) AchievementSet {
	s := make(AchievementSet, len(unlocks))
	for _, u := range unlocks {
		s[u.ID] = u
	}
	return s
}

// Has проверяет, разблокировано ли достижение.
func (s AchievementSet) Has(id AchievementID) bool {
	_, ok := s[id]
	return ok
}

// Count возвращает количество достижений.
func (s AchievementSet) Count() int {
	return len(s)
}

// Clone возвращает копию множества.
func (s AchievementSet) Clone() AchievementSet {
	out := make(AchievementSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// List возвращает достижения по времени получения (затем по ID).
func (s AchievementSet) List() []Unlock {
	out := make([]Unlock, 0, len(s))
	for _, u := range s {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UnlockedAt.Equal(out[j].UnlockedAt) {
			return out[i].UnlockedAt.Before(out[j].UnlockedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// WithUnlocks возвращает новую запись с добавленными достижениями.
// Уже имеющиеся ID не перезаписываются.
func (r Record) WithUnlocks(unlocks []Unlock) Record {
	out := r.Clone()
	if out.Achievements == nil {
		out.Achievements = AchievementSet{}
	}
	for _, u := range unlocks {
		if !out.Achievements.Has(u.ID) {
			out.Achievements[u.ID] = u
		}
	}
	return out
}
