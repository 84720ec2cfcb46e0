package export

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
	"github.com/ivrit-hub/progress-hub/internal/infrastructure/persistence/memory"
	"github.com/ivrit-hub/progress-hub/pkg/logger"
	"github.com/ivrit-hub/progress-hub/pkg/timeutil"
)

var now = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func seed(t *testing.T, store *memory.Store, userID string, xp int, unlocks ...progress.Unlock) {
	t.Helper()
	ctx := context.Background()
	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)

	rec, err := progress.NewRecord(userID, now)
	require.NoError(t, err)
	require.NoError(t, uow.Records().Create(ctx, rec))

	got, err := uow.Records().GetForUpdate(ctx, userID)
	require.NoError(t, err)
	got.TotalXP = progress.XP(xp)
	got.Level = progress.LevelFor(got.TotalXP)
	got.Streak = 2
	got.LastActivityDate = timeutil.StartOfDay(now, time.UTC)
	require.NoError(t, uow.Records().Save(ctx, got))
	require.NoError(t, uow.Achievements().Insert(ctx, userID, unlocks))
	require.NoError(t, uow.Activity().AppendEntries(ctx, activity.Entry{
		ID: userID + "-e1", UserID: userID, Kind: activity.KindStory, RefID: "s-1", Title: "Shalom", XP: 50, OccurredAt: now,
	}))
	require.NoError(t, uow.Commit(ctx))
}

func newReporter(t *testing.T, store *memory.Store) *Reporter {
	return NewReporter(store, progress.DefaultLevels, timeutil.FixedClock{T: now}, logger.NewTest(t))
}

func TestReporter_AllUsers(t *testing.T) {
	store := memory.NewStore()
	for i := 0; i < 5; i++ {
		seed(t, store, fmt.Sprintf("u-%d", i), 950+i*50)
	}
	r := newReporter(t, store)
	r.pageSize = 2

	var buf bytes.Buffer
	stats, err := r.Write(context.Background(), &buf, Options{})
	require.NoError(t, err)
	assert.Equal(t, Stats{Users: 5}, stats)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetProgress}, f.GetSheetList())
	rows, err := f.GetRows(SheetProgress)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, "Total XP", rows[0][1])
	assert.Equal(t, []string{"u-0", "950", "beginner", "95", "2", "2024-06-01", "0"}, rows[1])
	assert.Equal(t, []string{"u-2", "1050", "intermediate"}, rows[3][:3])
}

func TestReporter_SingleUser(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "u-1", 120, progress.Unlock{
		ID: progress.AchievementFirstStory, Name: "First Story", Category: progress.CategoryReading, XPReward: 50, UnlockedAt: now, Progress: 100,
	})
	seed(t, store, "u-2", 10)

	var buf bytes.Buffer
	stats, err := newReporter(t, store).Write(context.Background(), &buf, Options{UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, Stats{Users: 1, Achievements: 1, Activities: 1}, stats)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetProgress, SheetAchievements, SheetActivity}, f.GetSheetList())

	progressRows, err := f.GetRows(SheetProgress)
	require.NoError(t, err)
	require.Len(t, progressRows, 2)
	assert.Equal(t, "u-1", progressRows[1][0])

	achRows, err := f.GetRows(SheetAchievements)
	require.NoError(t, err)
	require.Len(t, achRows, 2)
	assert.Equal(t, []string{"u-1", "first_story", "First Story", "reading", "50", "2024-06-01 09:30:00"}, achRows[1])

	actRows, err := f.GetRows(SheetActivity)
	require.NoError(t, err)
	require.Len(t, actRows, 2)
	assert.Equal(t, "Shalom", actRows[1][3])
}

func TestReporter_UnknownUser(t *testing.T) {
	var buf bytes.Buffer
	_, err := newReporter(t, memory.NewStore()).Write(context.Background(), &buf, Options{UserID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
	assert.Zero(t, buf.Len())
}
