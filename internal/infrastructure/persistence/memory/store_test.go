package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

var now = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func openRecord(t *testing.T, s *Store, userID string) {
	t.Helper()
	ctx := context.Background()
	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	rec, err := progress.NewRecord(userID, now)
	require.NoError(t, err)
	require.NoError(t, uow.Records().Create(ctx, rec))
	require.NoError(t, uow.Commit(ctx))
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	openRecord(t, s, "u-1")

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	rec, err := uow.Records().GetForUpdate(ctx, "u-1")
	require.NoError(t, err)
	rec.TotalXP = 500
	require.NoError(t, uow.Records().Save(ctx, rec))
	require.NoError(t, uow.Achievements().Insert(ctx, "u-1", []progress.Unlock{{ID: progress.AchievementFirstStory}}))
	require.NoError(t, uow.Rollback(ctx))

	uow, err = s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)
	got, err := uow.Records().Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, progress.XP(0), got.TotalXP)
	assert.Equal(t, int64(1), got.Version)
	assert.Zero(t, got.Achievements.Count())
}

func TestStore_SaveVersionConflict(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	openRecord(t, s, "u-1")

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)

	rec, err := uow.Records().Get(ctx, "u-1")
	require.NoError(t, err)
	stale := *rec

	require.NoError(t, uow.Records().Save(ctx, rec))
	assert.Equal(t, int64(2), rec.Version)

	err = uow.Records().Save(ctx, &stale)
	assert.True(t, shared.IsPersistenceConflict(err))
}

func TestStore_CreateTwice(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	openRecord(t, s, "u-1")

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)
	rec, _ := progress.NewRecord("u-1", now)
	assert.True(t, shared.IsAlreadyExists(uow.Records().Create(ctx, rec)))
}

func TestStore_AchievementInsertTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)

	unlocks := []progress.Unlock{{ID: progress.AchievementWeekStreak}}
	require.NoError(t, uow.Achievements().Insert(ctx, "u-1", unlocks))
	assert.True(t, shared.IsPersistenceConflict(uow.Achievements().Insert(ctx, "u-1", unlocks)))
}

func TestStore_ActivityFeedAndSummaries(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)
	repo := uow.Activity()

	first := activity.StoryResult{UserID: "u-1", StoryID: "s-1", Score: 100, TimeSpent: 100, CompletedAt: now}
	require.NoError(t, repo.UpsertStoryResult(ctx, &first))
	again := activity.StoryResult{UserID: "u-1", StoryID: "s-1", Score: 60, TimeSpent: 300, CompletedAt: now}
	require.NoError(t, repo.UpsertStoryResult(ctx, &again))
	assert.Equal(t, 2, again.Attempts)

	sum, err := repo.StorySummary(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 0, sum.Perfect, "latest result wins")

	for i := 0; i < 7; i++ {
		require.NoError(t, repo.AppendEntries(ctx, activity.Entry{
			ID: string(rune('a' + i)), UserID: "u-1", OccurredAt: now.Add(time.Duration(i) * time.Second),
		}))
	}
	recent, err := repo.RecentEntries(ctx, "u-1", 5)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.Equal(t, "g", recent[0].ID)
}

func TestStore_BeginHonorsContext(t *testing.T) {
	s := NewStore()
	uow, err := s.Begin(context.Background())
	require.NoError(t, err)
	defer uow.Rollback(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Begin(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUserLocker_Serializes(t *testing.T) {
	l := NewUserLocker()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "u-1")
			require.NoError(t, err)
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			_ = release(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, l.locks)
}

func TestUserLocker_ContextCancel(t *testing.T) {
	l := NewUserLocker()
	release, err := l.Acquire(context.Background(), "u-1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "u-1")
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, release(context.Background()))
	assert.Empty(t, l.locks)
}
