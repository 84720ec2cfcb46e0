package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func practiceWithScores(scores ...int) []PracticeResult {
	out := make([]PracticeResult, len(scores))
	for i, s := range scores {
		out[i] = PracticeResult{Score: s, TimeSpent: 60}
	}
	return out
}

func TestCalculateTrends_Empty(t *testing.T) {
	tr := CalculateTrends(nil)

	assert.Zero(t, tr.AverageScore)
	assert.Zero(t, tr.ScoreImprovement)
	assert.False(t, tr.Improving())
	assert.Empty(t, tr.CommonMistakes)
}

func TestCalculateTrends_OnlyRecentWindow(t *testing.T) {
	tr := CalculateTrends(practiceWithScores(80, 60))

	assert.InDelta(t, 70.0, tr.AverageScore, 0.001)
	assert.Zero(t, tr.ScoreImprovement)
	assert.Equal(t, 120, tr.TotalPracticeTime)
}

func TestCalculateTrends_Improvement(t *testing.T) {
	scores := []int{90, 90, 90, 90, 90, 90, 90, 90, 90, 90, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 0, 0}
	tr := CalculateTrends(practiceWithScores(scores...))

	assert.InDelta(t, 90.0, tr.AverageScore, 0.001)
	assert.InDelta(t, 40.0, tr.ScoreImprovement, 0.001)
	assert.True(t, tr.Improving())
	// Only the latest 20 results count.
	assert.Equal(t, 20*60, tr.TotalPracticeTime)
}

func TestCalculateTrends_CommonMistakes(t *testing.T) {
	history := []PracticeResult{
		{Mistakes: []string{"gender", "tense", "gender"}},
		{Mistakes: []string{"tense", "plural", "gender", ""}},
		{Mistakes: []string{"a", "b", "c"}},
	}

	tr := CalculateTrends(history)

	assert.Equal(t, []MistakeCount{
		{Mistake: "gender", Count: 3},
		{Mistake: "tense", Count: 2},
		{Mistake: "a", Count: 1},
		{Mistake: "b", Count: 1},
		{Mistake: "c", Count: 1},
	}, tr.CommonMistakes)
}
