package progress

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

func TestSummarize_NilRecord(t *testing.T) {
	_, err := Summarize(nil, OverviewInput{})
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.True(t, shared.IsNotFound(err))
}

func TestSummarize(t *testing.T) {
	rec := recordWithXP(t, 1750)
	rec.Streak = 3
	rec.LastActivityDate = testNow
	rec.Achievements = NewAchievementSet(Unlock{ID: AchievementFirstStory}, Unlock{ID: AchievementStories10})

	var recent []activity.Entry
	for i := 0; i < 8; i++ {
		recent = append(recent, activity.Entry{
			ID:         fmt.Sprintf("e-%d", i),
			OccurredAt: testNow.Add(time.Duration(i) * time.Minute),
		})
	}

	ov, err := Summarize(&rec, OverviewInput{
		ActiveGoals: 2,
		Recent:      recent,
		Stories:     activity.StorySummary{Completed: 12, AverageScore: 87.5},
		Practice:    activity.PracticeSummary{Count: 3, TotalTimeSpent: 1260},
	})
	require.NoError(t, err)

	assert.Equal(t, LevelIntermediate, ov.Level)
	assert.Equal(t, XP(1750), ov.XP)
	assert.Equal(t, LevelAdvanced, ov.NextLevel)
	assert.Equal(t, XP(2500), ov.NextLevelXP)
	assert.Equal(t, 50, ov.ProgressPercent)
	assert.Equal(t, 3, ov.Streak)
	assert.Equal(t, 2, ov.AchievementsCount)
	assert.Equal(t, 2, ov.ActiveGoalsCount)
	assert.Equal(t, Learning{StoriesCompleted: 12, AverageScore: 87.5, PracticeMinutes: 21}, ov.Learning)

	require.Len(t, ov.RecentActivity, RecentActivityLimit)
	assert.Equal(t, "e-7", ov.RecentActivity[0].ID)
	assert.Equal(t, "e-3", ov.RecentActivity[4].ID)
	assert.Equal(t, "e-0", recent[0].ID, "input slice untouched")
}

func TestSummarize_TopLevel(t *testing.T) {
	rec := recordWithXP(t, 7000)

	ov, err := Summarize(&rec, OverviewInput{})
	require.NoError(t, err)
	assert.True(t, ov.IsTopLevel())
	assert.Equal(t, 100, ov.ProgressPercent)
	assert.Zero(t, ov.NextLevelXP)
	assert.Empty(t, ov.RecentActivity)
}

func TestRecord_Validate(t *testing.T) {
	rec, err := NewRecord("u-1", testNow)
	require.NoError(t, err)
	assert.NoError(t, rec.Validate())
	assert.Equal(t, LevelBeginner, rec.Level)

	bad := rec
	bad.Level = LevelExpert
	assert.ErrorIs(t, bad.Validate(), shared.ErrInvalidState)

	bad = rec
	bad.Streak = 2
	assert.ErrorIs(t, bad.Validate(), shared.ErrInvalidState)

	_, err = NewRecord("not a valid id!", testNow)
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestAchievementSet_List(t *testing.T) {
	s := NewAchievementSet(
		Unlock{ID: "b", UnlockedAt: testNow},
		Unlock{ID: "a", UnlockedAt: testNow},
		Unlock{ID: "c", UnlockedAt: testNow.Add(-time.Hour)},
	)

	var ids []AchievementID
	for _, u := range s.List() {
		ids = append(ids, u.ID)
	}
	assert.Equal(t, []AchievementID{"c", "a", "b"}, ids)
}
