package activity

import "sort"

// Trend windows over practice history (newest first).
const (
	TrendHistorySize = 20
	TrendWindow      = 10
	TopMistakes      = 5
)

// MistakeCount is how often a mistake appears in practice history.
type MistakeCount struct {
	Mistake string
	Count   int
}

// Trends summarizes recent practice performance.
type Trends struct {
	// AverageScore is the mean score of the latest TrendWindow results.
	AverageScore float64

	// ScoreImprovement is AverageScore minus the mean of the previous window.
	// Zero when either window is empty.
	ScoreImprovement float64

	// TotalPracticeTime sums time spent over the whole history, in seconds.
	TotalPracticeTime int

	// CommonMistakes lists the most frequent mistakes.
	CommonMistakes []MistakeCount
}

// Improving reports whether the latest window beats the previous one.
func (t Trends) Improving() bool {
	return t.ScoreImprovement > 0
}

// CalculateTrends computes Trends over history ordered newest first.
// Only the first TrendHistorySize results are considered.
func CalculateTrends(history []PracticeResult) Trends {
	if len(history) > TrendHistorySize {
		history = history[:TrendHistorySize]
	}

	recent := history
	var older []PracticeResult
	if len(history) > TrendWindow {
		recent = history[:TrendWindow]
		older = history[TrendWindow:]
	}

	var t Trends
	recentAvg, okRecent := averageScore(recent)
	olderAvg, okOlder := averageScore(older)
	t.AverageScore = recentAvg
	if okRecent && okOlder {
		t.ScoreImprovement = recentAvg - olderAvg
	}

	for _, r := range history {
		t.TotalPracticeTime += r.TimeSpent
	}
	t.CommonMistakes = commonMistakes(history, TopMistakes)
	return t
}

func averageScore(results []PracticeResult) (float64, bool) {
	if len(results) == 0 {
		return 0, false
	}
	sum := 0
	for _, r := range results {
		sum += r.Score
	}
	return float64(sum) / float64(len(results)), true
}

func commonMistakes(history []PracticeResult, limit int) []MistakeCount {
	counts := make(map[string]int)
	for _, r := range history {
		for _, m := range r.Mistakes {
			if m == "" {
				continue
			}
			counts[m]++
		}
	}

	out := make([]MistakeCount, 0, len(counts))
	for m, c := range counts {
		out = append(out, MistakeCount{Mistake: m, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Mistake < out[j].Mistake
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
