// Package command contains write operations (CQRS - Commands).
// Every handler takes a command value and returns a result value; progress
// changes go through saga.ProgressFlow so they are serialized per user.
package command

import (
	"github.com/ivrit-hub/progress-hub/internal/application/saga"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
)

// ProgressResult is the progress part shared by command results.
type ProgressResult struct {
	// UserID is the owner of the record.
	UserID string

	// TotalXP and Level are the committed values.
	TotalXP int
	Level   progress.Level

	// ProgressPercent is the way through the current level.
	ProgressPercent int

	// XPGained sums all deltas of the command, achievement rewards included.
	XPGained int

	// LevelUp is set when the command changed the level.
	LevelUp *progress.LevelChange

	// Streak is the committed streak; StreakChange describes the tick.
	Streak       int
	StreakChange progress.StreakChange

	// NewAchievements were unlocked by this command.
	NewAchievements []progress.Unlock

	// Attempts is 2 when the command was retried after a conflict.
	Attempts int
}

func newProgressResult(r *saga.FlowResult) ProgressResult {
	return ProgressResult{
		UserID:          r.Record.UserID,
		TotalXP:         r.Record.TotalXP.Int(),
		Level:           r.Record.Level,
		ProgressPercent: progress.ProgressToNext(r.Record.TotalXP, r.Record.Level),
		XPGained:        r.XPGained,
		LevelUp:         r.LevelChange,
		Streak:          r.Record.Streak,
		StreakChange:    r.Streak,
		NewAchievements: r.Unlocked,
		Attempts:        r.Attempts,
	}
}
