package command_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivrit-hub/progress-hub/internal/application/command"
	"github.com/ivrit-hub/progress-hub/internal/application/saga"
	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/goal"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
	"github.com/ivrit-hub/progress-hub/internal/infrastructure/persistence/memory"
	"github.com/ivrit-hub/progress-hub/pkg/logger"
)

var day1 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Location() *time.Location { return time.UTC }

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) GenerateID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%03d", g.n)
}

type env struct {
	store *memory.Store
	clock *manualClock
	flow  *saga.ProgressFlow
	ids   *seqIDs
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store: memory.NewStore(),
		clock: &manualClock{t: day1},
		ids:   &seqIDs{},
	}
	e.flow = saga.NewProgressFlow(saga.ProgressFlowDeps{
		UnitOfWork: e.store,
		Locker:     memory.NewUserLocker(),
		Clock:      e.clock,
		IDs:        e.ids,
		Logger:     logger.NewTest(t),
	}, saga.DefaultProgressFlowConfig())
	return e
}

func (e *env) open(t *testing.T, userID string) {
	t.Helper()
	h := command.NewOpenProgressHandler(e.store, nil, e.clock, logger.NewTest(t))
	res, err := h.Handle(context.Background(), command.OpenProgressCommand{UserID: userID})
	require.NoError(t, err)
	require.True(t, res.Created)
}

func TestOpenProgress_Idempotent(t *testing.T) {
	e := newEnv(t)
	e.open(t, "u-1")

	h := command.NewOpenProgressHandler(e.store, nil, e.clock, logger.NewTest(t))
	res, err := h.Handle(context.Background(), command.OpenProgressCommand{UserID: "u-1"})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, progress.LevelBeginner, res.Record.Level)

	_, err = h.Handle(context.Background(), command.OpenProgressCommand{UserID: " "})
	assert.True(t, shared.IsValidation(err))
}

func TestSubmitPractice_AwardsScoreAndTimeBonus(t *testing.T) {
	e := newEnv(t)
	e.open(t, "u-1")

	h := command.NewSubmitPracticeHandler(e.flow, e.ids)
	res, err := h.Handle(context.Background(), command.SubmitPracticeCommand{
		UserID:    "u-1",
		Type:      activity.PracticeSpeaking,
		Score:     80,
		TimeSpent: 400,
	})
	require.NoError(t, err)

	assert.Equal(t, 65, res.XPEarned)
	assert.Equal(t, 65, res.Progress.TotalXP)
	assert.Equal(t, 1, res.Progress.Streak)
	assert.Equal(t, day1, res.Practice.SubmittedAt)
}

func TestSubmitPractice_InvalidInput(t *testing.T) {
	e := newEnv(t)
	e.open(t, "u-1")
	h := command.NewSubmitPracticeHandler(e.flow, e.ids)

	tests := []struct {
		name string
		cmd  command.SubmitPracticeCommand
	}{
		{"score above 100", command.SubmitPracticeCommand{UserID: "u-1", Type: activity.PracticeWriting, Score: 101}},
		{"negative time", command.SubmitPracticeCommand{UserID: "u-1", Type: activity.PracticeWriting, Score: 50, TimeSpent: -1}},
		{"unknown type", command.SubmitPracticeCommand{UserID: "u-1", Type: "dancing", Score: 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), tt.cmd)
			assert.True(t, shared.IsValidation(err), "got %v", err)
		})
	}
}

func TestSubmitPractice_UnknownUser(t *testing.T) {
	e := newEnv(t)
	h := command.NewSubmitPracticeHandler(e.flow, e.ids)

	_, err := h.Handle(context.Background(), command.SubmitPracticeCommand{
		UserID: "ghost", Type: activity.PracticeReading, Score: 50,
	})
	assert.True(t, shared.IsNotFound(err))
}

func TestRecordDailyActivity_StreakAcrossDays(t *testing.T) {
	e := newEnv(t)
	e.open(t, "u-1")
	h := command.NewRecordDailyActivityHandler(e.flow)

	streakOn := func(at time.Time) int {
		e.clock.Set(at)
		res, err := h.Handle(context.Background(), command.RecordDailyActivityCommand{UserID: "u-1"})
		require.NoError(t, err)
		return res.Progress.Streak
	}

	assert.Equal(t, 1, streakOn(day1))
	assert.Equal(t, 1, streakOn(day1.Add(5*time.Hour)), "same day")
	assert.Equal(t, 2, streakOn(day1.AddDate(0, 0, 1)))
	assert.Equal(t, 1, streakOn(day1.AddDate(0, 0, 3)))
}

func TestCompleteStory_FirstStoryUnlocksAchievement(t *testing.T) {
	e := newEnv(t)
	e.open(t, "u-1")
	h := command.NewCompleteStoryHandler(e.flow)

	res, err := h.Handle(context.Background(), command.CompleteStoryCommand{
		UserID:    "u-1",
		StoryID:   "shalom",
		Score:     90,
		TimeSpent: 120,
		Points:    50,
	})
	require.NoError(t, err)

	// 45 for the story, then first_story (50) and speed_demon (150) in one batch.
	assert.Equal(t, 45, res.XPEarned)
	assert.Equal(t, 245, res.Progress.XPGained)
	ids := make([]progress.AchievementID, 0, len(res.Progress.NewAchievements))
	for _, u := range res.Progress.NewAchievements {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []progress.AchievementID{progress.AchievementFirstStory, progress.AchievementSpeedDemon}, ids)
	assert.Equal(t, 1, res.Story.Attempts)

	again, err := h.Handle(context.Background(), command.CompleteStoryCommand{
		UserID: "u-1", StoryID: "shalom", Score: 90, TimeSpent: 120, Points: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, again.Story.Attempts)
	assert.Empty(t, again.Progress.NewAchievements)
	assert.Equal(t, 290, again.Progress.TotalXP)
}

func TestGoals_CompletionAwardsOnce(t *testing.T) {
	e := newEnv(t)
	e.open(t, "u-1")
	ctx := context.Background()

	created, err := command.NewCreateGoalHandler(e.flow, e.ids).Handle(ctx, command.CreateGoalCommand{
		UserID:  "u-1",
		Type:    goal.TypeDailyXP,
		Target:  100,
		EndDate: day1.AddDate(0, 0, 7),
	})
	require.NoError(t, err)

	update := command.NewUpdateGoalProgressHandler(e.flow)
	submit := func(p int) *command.UpdateGoalProgressResult {
		res, err := update.Handle(ctx, command.UpdateGoalProgressCommand{
			UserID: "u-1", GoalID: created.Goal.ID, Progress: p,
		})
		require.NoError(t, err)
		return res
	}

	assert.Equal(t, 0, submit(40).XPEarned)

	done := submit(120)
	assert.True(t, done.NewlyCompleted)
	assert.Equal(t, 100, done.XPEarned)
	assert.Equal(t, 100, done.Progress.TotalXP)

	again := submit(150)
	assert.False(t, again.NewlyCompleted)
	assert.Equal(t, 0, again.XPEarned)
	assert.Equal(t, 100, again.Progress.TotalXP)
	assert.Equal(t, goal.StatusCompleted, again.Goal.Status)
}

func TestGoals_Rejections(t *testing.T) {
	e := newEnv(t)
	e.open(t, "u-1")
	ctx := context.Background()
	create := command.NewCreateGoalHandler(e.flow, e.ids)

	_, err := create.Handle(ctx, command.CreateGoalCommand{
		UserID: "u-1", Type: goal.TypePracticeTime, Target: 0, EndDate: day1.AddDate(0, 0, 1),
	})
	assert.True(t, shared.IsValidation(err))

	_, err = create.Handle(ctx, command.CreateGoalCommand{
		UserID: "u-1", Type: goal.TypePracticeTime, Target: 30, EndDate: day1.Add(-time.Hour),
	})
	assert.True(t, shared.IsValidation(err))

	_, err = create.Handle(ctx, command.CreateGoalCommand{
		UserID: "ghost", Type: goal.TypePracticeTime, Target: 30, EndDate: day1.AddDate(0, 0, 1),
	})
	assert.True(t, shared.IsNotFound(err))

	_, err = command.NewUpdateGoalProgressHandler(e.flow).Handle(ctx, command.UpdateGoalProgressCommand{
		UserID: "u-1", GoalID: "missing", Progress: 5,
	})
	assert.True(t, shared.IsNotFound(err))
}

func TestExpireStreaks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "active")
	e.open(t, "lapsed")

	tick := command.NewRecordDailyActivityHandler(e.flow)
	_, err := tick.Handle(ctx, command.RecordDailyActivityCommand{UserID: "lapsed"})
	require.NoError(t, err)

	e.clock.Set(day1.AddDate(0, 0, 3))
	_, err = tick.Handle(ctx, command.RecordDailyActivityCommand{UserID: "active"})
	require.NoError(t, err)

	h := command.NewExpireStreaksHandler(e.flow, e.store, 10, logger.NewTest(t))
	res, err := h.Handle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, 1, res.Expired)
	assert.Zero(t, res.Failed)

	again, err := tick.Handle(ctx, command.RecordDailyActivityCommand{UserID: "lapsed"})
	require.NoError(t, err)
	assert.Equal(t, 1, again.Progress.Streak)
}

func TestExpireGoals(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "u-1")

	created, err := command.NewCreateGoalHandler(e.flow, e.ids).Handle(ctx, command.CreateGoalCommand{
		UserID: "u-1", Type: goal.TypeStoriesCompleted, Target: 3, EndDate: day1.AddDate(0, 0, 2),
	})
	require.NoError(t, err)

	e.clock.Set(day1.AddDate(0, 0, 5))
	res, err := command.NewExpireGoalsHandler(e.flow, e.store, 10, logger.NewTest(t)).Handle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)

	_, err = command.NewUpdateGoalProgressHandler(e.flow).Handle(ctx, command.UpdateGoalProgressCommand{
		UserID: "u-1", GoalID: created.Goal.ID, Progress: 3,
	})
	assert.ErrorIs(t, err, shared.ErrGoalExpired)
}
