package activity

import (
	"context"
)

// Repository defines persistence operations for results and the activity feed.
// Implementations are bound to a unit of work, so every call made through one
// Repository value commits or rolls back together.
type Repository interface {
	// UpsertStoryResult stores the latest result for (UserID, StoryID).
	// On conflict it overwrites the score fields and increments Attempts;
	// r.Attempts is set to the stored value.
	UpsertStoryResult(ctx context.Context, r *StoryResult) error

	// SavePracticeResult inserts a practice result.
	SavePracticeResult(ctx context.Context, r *PracticeResult) error

	// AppendEntries adds entries to the activity feed.
	AppendEntries(ctx context.Context, entries ...Entry) error

	// RecentEntries returns the latest feed entries, newest first.
	RecentEntries(ctx context.Context, userID string, limit int) ([]Entry, error)

	// StorySummary aggregates the user's story results.
	StorySummary(ctx context.Context, userID string) (StorySummary, error)

	// PracticeSummary aggregates the user's practice results.
	PracticeSummary(ctx context.Context, userID string) (PracticeSummary, error)

	// PracticeHistory returns practice results, newest first.
	PracticeHistory(ctx context.Context, userID string, limit int) ([]PracticeResult, error)
}
