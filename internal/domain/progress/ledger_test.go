package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func recordWithXP(t *testing.T, xp XP) Record {
	t.Helper()
	rec, err := NewRecord("u-1", testNow)
	require.NoError(t, err)
	rec.TotalXP = xp
	rec.Level = LevelFor(xp)
	return rec
}

func TestApplyXP_LevelUpOnce(t *testing.T) {
	rec := recordWithXP(t, 950)
	assert.Equal(t, LevelBeginner, rec.Level)
	assert.Equal(t, 95, ProgressToNext(rec.TotalXP, rec.Level))

	got, change, err := ApplyXP(rec, 100)
	require.NoError(t, err)
	assert.Equal(t, XP(1050), got.TotalXP)
	assert.Equal(t, LevelIntermediate, got.Level)
	require.NotNil(t, change)
	assert.Equal(t, LevelChange{From: LevelBeginner, To: LevelIntermediate}, *change)

	// Further XP inside the same level does not signal again.
	got, change, err = ApplyXP(got, 10)
	require.NoError(t, err)
	assert.Nil(t, change)
	assert.Equal(t, XP(1060), got.TotalXP)
}

func TestApplyXP_DoesNotMutateInput(t *testing.T) {
	rec := recordWithXP(t, 10)

	_, _, err := ApplyXP(rec, 5)
	require.NoError(t, err)
	assert.Equal(t, XP(10), rec.TotalXP)
}

func TestApplyXP_ZeroDelta(t *testing.T) {
	rec := recordWithXP(t, 999)

	got, change, err := ApplyXP(rec, 0)
	require.NoError(t, err)
	assert.Nil(t, change)
	assert.Equal(t, rec.TotalXP, got.TotalXP)
}

func TestApplyXP_InvalidDelta(t *testing.T) {
	rec := recordWithXP(t, 100)

	got, change, err := ApplyXP(rec, -1)
	assert.ErrorIs(t, err, shared.ErrInvalidDelta)
	assert.Nil(t, change)
	assert.Equal(t, rec, got)

	_, _, err = ApplyXP(recordWithXP(t, MaxXP-5), 10)
	assert.ErrorIs(t, err, shared.ErrInvalidDelta)
	assert.True(t, shared.IsValidation(err))
}

func TestApplyXP_SkipsLevels(t *testing.T) {
	got, change, err := ApplyXP(recordWithXP(t, 0), 6000)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, LevelBeginner, change.From)
	assert.Equal(t, LevelExpert, change.To)
	assert.Equal(t, LevelExpert, got.Level)
}

func TestPracticeXP(t *testing.T) {
	tests := []struct {
		name      string
		score     int
		timeSpent int
		want      int
	}{
		{"long session bonus", 80, 400, 65},
		{"exactly threshold has no bonus", 80, 300, 40},
		{"rounds half up", 1, 10, 1},
		{"zero score long session", 0, 301, 25},
		{"perfect short", 100, 60, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PracticeXP(tt.score, tt.timeSpent)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := PracticeXP(101, 10)
	assert.ErrorIs(t, err, shared.ErrInvalidDelta)
	_, err = PracticeXP(50, -1)
	assert.ErrorIs(t, err, shared.ErrInvalidDelta)
}

func TestStoryXP(t *testing.T) {
	got, err := StoryXP(90, 50)
	require.NoError(t, err)
	assert.Equal(t, 45, got)

	got, err = StoryXP(85, 30)
	require.NoError(t, err)
	assert.Equal(t, 26, got) // 25.5 rounds up

	_, err = StoryXP(-1, 30)
	assert.ErrorIs(t, err, shared.ErrInvalidDelta)
	_, err = StoryXP(50, -30)
	assert.ErrorIs(t, err, shared.ErrInvalidDelta)
}

func TestAchievementXP(t *testing.T) {
	total := 0
	for _, rule := range DefaultRules {
		assert.Equal(t, rule.XPReward, AchievementXP(rule), rule.ID)
		total += AchievementXP(rule)
	}
	assert.Equal(t, 1000, total)
}

func TestGoalXP(t *testing.T) {
	assert.Equal(t, 100, GoalXP(false, true))
	assert.Equal(t, 0, GoalXP(true, true), "re-submitted completed goal")
	assert.Equal(t, 0, GoalXP(false, false))
}
