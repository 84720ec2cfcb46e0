package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

func TestStoryResult_Validate(t *testing.T) {
	valid := StoryResult{UserID: "u-1", StoryID: "first-day", Score: 90, TimeSpent: 120, Points: 50}

	tests := []struct {
		name    string
		mutate  func(r *StoryResult)
		wantErr error
	}{
		{"valid", func(r *StoryResult) {}, nil},
		{"bad user", func(r *StoryResult) { r.UserID = "" }, shared.ErrInvalidID},
		{"no story", func(r *StoryResult) { r.StoryID = " " }, shared.ErrInvalidID},
		{"score above 100", func(r *StoryResult) { r.Score = 101 }, shared.ErrInvalidDelta},
		{"negative time", func(r *StoryResult) { r.TimeSpent = -1 }, shared.ErrInvalidDelta},
		{"negative points", func(r *StoryResult) { r.Points = -5 }, shared.ErrInvalidDelta},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStoryResult_Flags(t *testing.T) {
	assert.True(t, StoryResult{Score: 100}.IsPerfect())
	assert.False(t, StoryResult{Score: 99}.IsPerfect())

	assert.True(t, StoryResult{Score: 80, TimeSpent: 179}.IsFastAndAccurate())
	assert.False(t, StoryResult{Score: 80, TimeSpent: 180}.IsFastAndAccurate())
	assert.False(t, StoryResult{Score: 79, TimeSpent: 60}.IsFastAndAccurate())
}

func TestSummarizeStories(t *testing.T) {
	results := []StoryResult{
		{Score: 100, TimeSpent: 100, WithoutTranslation: true},
		{Score: 100, TimeSpent: 400},
		{Score: 70, TimeSpent: 90},
	}

	s := SummarizeStories(results)

	assert.Equal(t, 3, s.Completed)
	assert.Equal(t, 2, s.Perfect)
	assert.Equal(t, 1, s.FastAccurate)
	assert.Equal(t, 1, s.WithoutTranslation)
	assert.InDelta(t, 90.0, s.AverageScore, 0.001)

	assert.Equal(t, StorySummary{}, SummarizeStories(nil))
}

func TestPracticeResult_Validate(t *testing.T) {
	r := PracticeResult{UserID: "u-1", Type: PracticeSpeaking, Score: 80, TimeSpent: 400, SubmittedAt: time.Now()}
	assert.NoError(t, r.Validate())

	r.Type = "dancing"
	assert.ErrorIs(t, r.Validate(), shared.ErrInvalidInput)
}

func TestPracticeSummary_Minutes(t *testing.T) {
	assert.Equal(t, 6, PracticeSummary{TotalTimeSpent: 419}.Minutes())
}
