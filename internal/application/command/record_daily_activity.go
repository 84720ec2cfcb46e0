package command

import (
	"context"

	"github.com/ivrit-hub/progress-hub/internal/application/saga"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD DAILY ACTIVITY COMMAND
// A learning "ping": ticks the streak for today without awarding XP.
// Repeated pings on the same day change nothing.
// ══════════════════════════════════════════════════════════════════════════════

// RecordDailyActivityCommand marks the user as active today.
type RecordDailyActivityCommand struct {
	UserID string
}

// RecordDailyActivityResult contains the streak outcome.
type RecordDailyActivityResult struct {
	Progress ProgressResult
}

// RecordDailyActivityHandler handles the RecordDailyActivityCommand.
type RecordDailyActivityHandler struct {
	flow *saga.ProgressFlow
}

// NewRecordDailyActivityHandler creates a new RecordDailyActivityHandler.
func NewRecordDailyActivityHandler(flow *saga.ProgressFlow) *RecordDailyActivityHandler {
	return &RecordDailyActivityHandler{flow: flow}
}

// Handle executes the record daily activity command.
func (h *RecordDailyActivityHandler) Handle(ctx context.Context, cmd RecordDailyActivityCommand) (*RecordDailyActivityResult, error) {
	res, err := h.flow.Execute(ctx, saga.Mutation{
		Op:         "record_daily_activity",
		UserID:     cmd.UserID,
		TickStreak: true,
	})
	if err != nil {
		return nil, err
	}
	return &RecordDailyActivityResult{Progress: newProgressResult(res)}, nil
}
