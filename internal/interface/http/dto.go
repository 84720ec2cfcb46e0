package http

import (
	"time"

	"github.com/ivrit-hub/progress-hub/internal/application/command"
	"github.com/ivrit-hub/progress-hub/internal/application/query"
	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/goal"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUESTS
// ══════════════════════════════════════════════════════════════════════════════

// CompleteStoryRequest is the body of POST /stories/:storyID/complete.
type CompleteStoryRequest struct {
	Title              string `json:"title" validate:"notblank,max=200"`
	Score              int    `json:"score" validate:"min=0,max=100"`
	TimeSpent          int    `json:"time_spent" validate:"min=0"`
	Points             int    `json:"points" validate:"min=0"`
	WithoutTranslation bool   `json:"without_translation"`
}

// SubmitPracticeRequest is the body of POST /practice.
type SubmitPracticeRequest struct {
	Type      string   `json:"type" validate:"required,oneof=speaking writing reading conversation"`
	Score     int      `json:"score" validate:"min=0,max=100"`
	TimeSpent int      `json:"time_spent" validate:"min=0"`
	Mistakes  []string `json:"mistakes" validate:"max=50,dive,notblank,max=200"`
	Feedback  string   `json:"feedback" validate:"max=2000"`
}

// CreateGoalRequest is the body of POST /goals.
type CreateGoalRequest struct {
	Type    string    `json:"type" validate:"required,oneof=daily_xp stories_completed practice_time"`
	Target  int       `json:"target" validate:"required,min=1"`
	EndDate time.Time `json:"end_date" validate:"required"`
}

// UpdateGoalProgressRequest is the body of PATCH /goals/:goalID/progress.
type UpdateGoalProgressRequest struct {
	Progress *int `json:"progress" validate:"required,min=0"`
}

// ══════════════════════════════════════════════════════════════════════════════
// VIEWS
// ══════════════════════════════════════════════════════════════════════════════

// LevelUpView describes a level change.
type LevelUpView struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// UnlockView is an unlocked achievement.
type UnlockView struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	XPReward   int       `json:"xp_reward"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// ProgressView is the progress outcome of a command.
type ProgressView struct {
	UserID          string       `json:"user_id"`
	TotalXP         int          `json:"total_xp"`
	Level           string       `json:"level"`
	ProgressPercent int          `json:"progress_percent"`
	XPGained        int          `json:"xp_gained"`
	LevelUp         *LevelUpView `json:"level_up,omitempty"`
	Streak          int          `json:"streak"`
	StreakOutcome   string       `json:"streak_outcome"`
	NewAchievements []UnlockView `json:"new_achievements"`
}

func newProgressView(r command.ProgressResult) ProgressView {
	v := ProgressView{
		UserID:          r.UserID,
		TotalXP:         r.TotalXP,
		Level:           r.Level.String(),
		ProgressPercent: r.ProgressPercent,
		XPGained:        r.XPGained,
		Streak:          r.Streak,
		StreakOutcome:   string(r.StreakChange.Outcome),
		NewAchievements: make([]UnlockView, 0, len(r.NewAchievements)),
	}
	if r.LevelUp != nil {
		v.LevelUp = &LevelUpView{From: r.LevelUp.From.String(), To: r.LevelUp.To.String()}
	}
	for _, u := range r.NewAchievements {
		v.NewAchievements = append(v.NewAchievements, newUnlockView(u))
	}
	return v
}

func newUnlockView(u progress.Unlock) UnlockView {
	return UnlockView{
		ID:         string(u.ID),
		Name:       u.Name,
		Category:   string(u.Category),
		XPReward:   u.XPReward,
		UnlockedAt: u.UnlockedAt,
	}
}

// RecordView is a freshly opened progress record.
type RecordView struct {
	UserID  string `json:"user_id"`
	TotalXP int    `json:"total_xp"`
	Level   string `json:"level"`
	Streak  int    `json:"streak"`
	Created bool   `json:"created"`
}

// EntryView is one activity feed entry.
type EntryView struct {
	Kind       string    `json:"kind"`
	RefID      string    `json:"ref_id,omitempty"`
	Title      string    `json:"title"`
	XP         int       `json:"xp"`
	OccurredAt time.Time `json:"occurred_at"`
}

// OverviewView is the response of GET /progress.
type OverviewView struct {
	UserID            string      `json:"user_id"`
	Level             string      `json:"level"`
	XP                int         `json:"xp"`
	NextLevel         string      `json:"next_level,omitempty"`
	NextLevelXP       int         `json:"next_level_xp,omitempty"`
	ProgressPercent   int         `json:"progress_percent"`
	Streak            int         `json:"streak"`
	LastActivityDate  *time.Time  `json:"last_activity_date,omitempty"`
	AchievementsCount int         `json:"achievements_count"`
	ActiveGoalsCount  int         `json:"active_goals_count"`
	RecentActivity    []EntryView `json:"recent_activity"`
	StoriesCompleted  int         `json:"stories_completed"`
	AverageScore      float64     `json:"average_score"`
	PracticeMinutes   int         `json:"practice_minutes"`
}

func newOverviewView(o progress.Overview) OverviewView {
	v := OverviewView{
		UserID:            o.UserID,
		Level:             o.Level.String(),
		XP:                o.XP.Int(),
		NextLevel:         o.NextLevel.String(),
		NextLevelXP:       o.NextLevelXP.Int(),
		ProgressPercent:   o.ProgressPercent,
		Streak:            o.Streak,
		AchievementsCount: o.AchievementsCount,
		ActiveGoalsCount:  o.ActiveGoalsCount,
		RecentActivity:    make([]EntryView, 0, len(o.RecentActivity)),
		StoriesCompleted:  o.Learning.StoriesCompleted,
		AverageScore:      o.Learning.AverageScore,
		PracticeMinutes:   o.Learning.PracticeMinutes,
	}
	if !o.LastActivityDate.IsZero() {
		d := o.LastActivityDate
		v.LastActivityDate = &d
	}
	for _, e := range o.RecentActivity {
		v.RecentActivity = append(v.RecentActivity, newEntryView(e))
	}
	return v
}

func newEntryView(e activity.Entry) EntryView {
	return EntryView{Kind: string(e.Kind), RefID: e.RefID, Title: e.Title, XP: e.XP, OccurredAt: e.OccurredAt}
}

// StoryView is the response of POST /stories/:storyID/complete.
type StoryView struct {
	StoryID  string       `json:"story_id"`
	Score    int          `json:"score"`
	Attempts int          `json:"attempts"`
	XPEarned int          `json:"xp_earned"`
	Progress ProgressView `json:"progress"`
}

// PracticeView is the response of POST /practice.
type PracticeView struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Score    int          `json:"score"`
	XPEarned int          `json:"xp_earned"`
	Progress ProgressView `json:"progress"`
}

// MistakeView counts one recurring mistake.
type MistakeView struct {
	Mistake string `json:"mistake"`
	Count   int    `json:"count"`
}

// TrendsView is the response of GET /practice/trends.
type TrendsView struct {
	AverageScore      float64       `json:"average_score"`
	ScoreImprovement  float64       `json:"score_improvement"`
	Improving         bool          `json:"improving"`
	TotalPracticeTime int           `json:"total_practice_time"`
	CommonMistakes    []MistakeView `json:"common_mistakes"`
	Results           int           `json:"results"`
}

func newTrendsView(r *query.GetPracticeTrendsResult) TrendsView {
	v := TrendsView{
		AverageScore:      r.Trends.AverageScore,
		ScoreImprovement:  r.Trends.ScoreImprovement,
		Improving:         r.Trends.Improving(),
		TotalPracticeTime: r.Trends.TotalPracticeTime,
		CommonMistakes:    make([]MistakeView, 0, len(r.Trends.CommonMistakes)),
		Results:           len(r.History),
	}
	for _, m := range r.Trends.CommonMistakes {
		v.CommonMistakes = append(v.CommonMistakes, MistakeView{Mistake: m.Mistake, Count: m.Count})
	}
	return v
}

// AchievementView is one catalogue entry.
type AchievementView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Target      int        `json:"target"`
	XPReward    int        `json:"xp_reward"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
	Progress    int        `json:"progress"`
	Available   bool       `json:"available"`
}

// AchievementsView is the response of GET /achievements.
type AchievementsView struct {
	Achievements  []AchievementView `json:"achievements"`
	UnlockedCount int               `json:"unlocked_count"`
	TotalXP       int               `json:"total_xp"`
}

func newAchievementsView(r *query.ListAchievementsResult) AchievementsView {
	v := AchievementsView{
		Achievements:  make([]AchievementView, 0, len(r.Entries)),
		UnlockedCount: r.UnlockedCount,
		TotalXP:       r.TotalXP,
	}
	for _, e := range r.Entries {
		a := AchievementView{
			ID:          string(e.Rule.ID),
			Name:        e.Rule.Name,
			Description: e.Rule.Description,
			Category:    string(e.Rule.Category),
			Target:      e.Rule.Target,
			XPReward:    e.Rule.XPReward,
			Unlocked:    e.Unlocked,
			Progress:    e.Progress,
			Available:   e.Available,
		}
		if e.Unlocked {
			at := e.UnlockedAt
			a.UnlockedAt = &at
		}
		v.Achievements = append(v.Achievements, a)
	}
	return v
}

// GoalView is one goal.
type GoalView struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Target      int        `json:"target"`
	Progress    int        `json:"progress"`
	Percent     int        `json:"percent"`
	Status      string     `json:"status"`
	Active      bool       `json:"active"`
	EndDate     time.Time  `json:"end_date"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func newGoalView(g *goal.Goal, percent int, active bool) GoalView {
	v := GoalView{
		ID:       g.ID,
		Type:     string(g.Type),
		Target:   g.Target,
		Progress: g.Progress,
		Percent:  percent,
		Status:   string(g.Status),
		Active:   active,
		EndDate:  g.EndDate,
	}
	if !g.CompletedAt.IsZero() {
		at := g.CompletedAt
		v.CompletedAt = &at
	}
	return v
}

// GoalsView is the response of GET /goals.
type GoalsView struct {
	Goals       []GoalView `json:"goals"`
	ActiveCount int        `json:"active_count"`
}

func newGoalsView(r *query.ListGoalsResult) GoalsView {
	v := GoalsView{Goals: make([]GoalView, 0, len(r.Goals)), ActiveCount: r.ActiveCount}
	for _, g := range r.Goals {
		v.Goals = append(v.Goals, newGoalView(g.Goal, g.Percent, g.Active))
	}
	return v
}

// GoalProgressView is the response of PATCH /goals/:goalID/progress.
type GoalProgressView struct {
	Goal           GoalView     `json:"goal"`
	NewlyCompleted bool         `json:"newly_completed"`
	XPEarned       int          `json:"xp_earned"`
	Progress       ProgressView `json:"progress"`
}
