// Package activity contains domain entities for story completions, practice
// submissions and the per-user activity feed.
// This is a pure domain layer with zero external dependencies.
package activity

import (
	"strings"
	"time"

	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// Thresholds used by story-based achievements.
const (
	// FastStoryLimit is the upper bound (exclusive) for a "fast" story, in seconds.
	FastStoryLimit = 180

	// AccurateScore is the minimum score counted as accurate.
	AccurateScore = 80
)

// ═══════════════════════════════════════════════════════════════════════════
// Story results
// ═══════════════════════════════════════════════════════════════════════════

// StoryResult is the latest outcome of a user reading one story.
// Re-reading a story overwrites the result and increments Attempts.
type StoryResult struct {
	UserID             string
	StoryID            string
	Title              string
	Score              int
	TimeSpent          int // seconds
	Points             int // story reward configured by content
	WithoutTranslation bool
	Attempts           int
	CompletedAt        time.Time
}

// Validate checks the result fields.
func (r StoryResult) Validate() error {
	if _, err := shared.NewUserID(r.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(r.StoryID) == "" || len(r.StoryID) > 128 {
		return shared.ErrInvalidStoryID
	}
	if !shared.Score(r.Score).IsValid() {
		return shared.ErrInvalidScore
	}
	if r.TimeSpent < 0 {
		return shared.ErrInvalidTimeSpent
	}
	if r.Points < 0 {
		return shared.ErrInvalidStoryPoints
	}
	return nil
}

// IsPerfect reports a 100% score.
func (r StoryResult) IsPerfect() bool {
	return shared.Score(r.Score).IsPerfect()
}

// IsFastAndAccurate reports a story finished in under 3 minutes with at least 80%.
func (r StoryResult) IsFastAndAccurate() bool {
	return r.TimeSpent < FastStoryLimit && r.Score >= AccurateScore
}

// StorySummary aggregates a user's completed stories.
type StorySummary struct {
	Completed          int
	Perfect            int
	FastAccurate       int
	WithoutTranslation int
	AverageScore       float64
}

// SummarizeStories computes a StorySummary over results.
// Stores with SQL aggregation must produce the same numbers.
func SummarizeStories(results []StoryResult) StorySummary {
	var s StorySummary
	total := 0
	for _, r := range results {
		s.Completed++
		total += r.Score
		if r.IsPerfect() {
			s.Perfect++
		}
		if r.IsFastAndAccurate() {
			s.FastAccurate++
		}
		if r.WithoutTranslation {
			s.WithoutTranslation++
		}
	}
	if s.Completed > 0 {
		s.AverageScore = float64(total) / float64(s.Completed)
	}
	return s
}

// ═══════════════════════════════════════════════════════════════════════════
// Practice results
// ═══════════════════════════════════════════════════════════════════════════

// PracticeType is the kind of practice exercise.
type PracticeType string

const (
	PracticeSpeaking     PracticeType = "speaking"
	PracticeWriting      PracticeType = "writing"
	PracticeReading      PracticeType = "reading"
	PracticeConversation PracticeType = "conversation"
)

// IsValid checks the practice type.
func (t PracticeType) IsValid() bool {
	switch t {
	case PracticeSpeaking, PracticeWriting, PracticeReading, PracticeConversation:
		return true
	}
	return false
}

// PracticeResult is one submitted practice exercise.
type PracticeResult struct {
	ID          string
	UserID      string
	Type        PracticeType
	Score       int
	TimeSpent   int // seconds
	Mistakes    []string
	Feedback    string
	SubmittedAt time.Time
}

// Validate checks the result fields.
func (r PracticeResult) Validate() error {
	if _, err := shared.NewUserID(r.UserID); err != nil {
		return err
	}
	if !r.Type.IsValid() {
		return shared.ErrInvalidPracticeType
	}
	if !shared.Score(r.Score).IsValid() {
		return shared.ErrInvalidScore
	}
	if r.TimeSpent < 0 {
		return shared.ErrInvalidTimeSpent
	}
	return nil
}

// PracticeSummary aggregates a user's practice results.
type PracticeSummary struct {
	Count          int
	TotalTimeSpent int // seconds
}

// Minutes returns the total practice time in whole minutes.
func (s PracticeSummary) Minutes() int {
	return s.TotalTimeSpent / 60
}

// ═══════════════════════════════════════════════════════════════════════════
// Activity feed
// ═══════════════════════════════════════════════════════════════════════════

// Kind is the type of a feed entry.
type Kind string

const (
	KindStory       Kind = "story"
	KindPractice    Kind = "practice"
	KindGoal        Kind = "goal"
	KindAchievement Kind = "achievement"
)

// Entry is one item in the user's activity feed.
type Entry struct {
	ID         string
	UserID     string
	Kind       Kind
	RefID      string
	Title      string
	XP         int
	OccurredAt time.Time
}
