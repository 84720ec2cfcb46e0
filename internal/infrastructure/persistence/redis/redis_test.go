package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)

	client := red.NewClient(&red.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return NewCacheFromClient(client), server
}

func TestCache_Validation(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, err := cache.SetVersioned(ctx, "", 1, 1, time.Minute)
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)
	_, err = cache.SetVersioned(ctx, "k", nil, 1, time.Minute)
	assert.ErrorIs(t, err, ErrCacheNilValue)
	_, err = cache.SetVersioned(ctx, "k", 1, 1, -time.Second)
	assert.ErrorIs(t, err, ErrCacheInvalidTTL)
	assert.ErrorIs(t, cache.InvalidateVersioned(ctx, "k", 1, 0), ErrCacheInvalidTTL)

	var v int
	assert.ErrorIs(t, cache.Get(ctx, "missing", &v), ErrCacheMiss)
}

func TestCache_GetBadPayload(t *testing.T) {
	cache, server := newTestCache(t)
	require.NoError(t, server.Set("k", "not-json"))

	var v map[string]int
	assert.ErrorIs(t, cache.Get(context.Background(), "k", &v), ErrCacheSerialization)
}

func TestConfig_OptionsFromURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "redis://:secret@cache.internal:6380/2"

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, cfg.PoolSize, opts.PoolSize)

	cfg.URL = "http://nope"
	_, err = cfg.Options()
	assert.Error(t, err)
}

func TestOverviewCache_RoundTrip(t *testing.T) {
	cache, server := newTestCache(t)
	oc := NewOverviewCache(cache, time.Minute)
	ctx := context.Background()

	_, ok, err := oc.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ov := progress.Overview{
		UserID:           "u-1",
		Level:            progress.LevelBeginner,
		XP:               950,
		NextLevel:        progress.LevelIntermediate,
		NextLevelXP:      1000,
		ProgressPercent:  95,
		Streak:           4,
		LastActivityDate: at,
		RecentActivity: []activity.Entry{
			{ID: "e-1", UserID: "u-1", Kind: activity.KindStory, RefID: "s-1", Title: "Shalom", XP: 45, OccurredAt: at},
		},
		Learning: progress.Learning{StoriesCompleted: 1, AverageScore: 90, PracticeMinutes: 7},
	}
	require.NoError(t, oc.Set(ctx, "u-1", ov))
	assert.Equal(t, time.Minute, server.TTL(OverviewKey("u-1")))

	got, ok, err := oc.Get(ctx, "u-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ov.XP, got.XP)
	assert.Equal(t, ov.ProgressPercent, got.ProgressPercent)
	assert.True(t, ov.LastActivityDate.Equal(got.LastActivityDate))
	require.Len(t, got.RecentActivity, 1)
	assert.Equal(t, "Shalom", got.RecentActivity[0].Title)
	assert.Equal(t, ov.Learning, got.Learning)

	require.NoError(t, oc.Invalidate(ctx, "u-1", 1))
	assert.False(t, server.Exists(OverviewKey("u-1")))
}

func TestOverviewCache_DropsOverviewOlderThanInvalidation(t *testing.T) {
	cache, server := newTestCache(t)
	oc := NewOverviewCache(cache, time.Minute)
	ctx := context.Background()

	require.NoError(t, oc.Set(ctx, "u-1", progress.Overview{UserID: "u-1", Version: 3, XP: 100}))
	require.NoError(t, oc.Invalidate(ctx, "u-1", 4))
	assert.False(t, server.Exists(OverviewKey("u-1")))

	// A reader that loaded version 3 before the commit writes late.
	require.NoError(t, oc.Set(ctx, "u-1", progress.Overview{UserID: "u-1", Version: 3, XP: 100}))
	_, ok, err := oc.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, oc.Set(ctx, "u-1", progress.Overview{UserID: "u-1", Version: 4, XP: 165}))
	got, ok, err := oc.Get(ctx, "u-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, progress.XP(165), got.XP)

	// An older invalidation never lowers the floor.
	require.NoError(t, oc.Invalidate(ctx, "u-1", 2))
	stored, err := server.Get(FloorKey(OverviewKey("u-1")))
	require.NoError(t, err)
	assert.Equal(t, "4", stored)

	server.FastForward(time.Minute + time.Second)
	assert.False(t, server.Exists(FloorKey(OverviewKey("u-1"))))
}

func TestOverviewCache_Expires(t *testing.T) {
	cache, server := newTestCache(t)
	oc := NewOverviewCache(cache, 0)
	ctx := context.Background()

	require.NoError(t, oc.Set(ctx, "u-1", progress.Overview{UserID: "u-1"}))
	server.FastForward(TTLOverview + time.Second)

	_, ok, err := oc.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserLocker_BlocksUntilReleased(t *testing.T) {
	cache, server := newTestCache(t)
	locker := NewUserLocker(cache, time.Minute)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, server.Exists(LockKey("u-1")))

	waitCtx, cancel := context.WithTimeout(ctx, 80*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(waitCtx, "u-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locker.Acquire(ctx, "u-2")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	assert.False(t, server.Exists(LockKey("u-1")))

	again, err := locker.Acquire(ctx, "u-1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestUserLocker_StaleReleaseKeepsNewHolder(t *testing.T) {
	cache, server := newTestCache(t)
	locker := NewUserLocker(cache, time.Second)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "u-1")
	require.NoError(t, err)

	server.FastForward(2 * time.Second)

	current, err := locker.Acquire(ctx, "u-1")
	require.NoError(t, err)

	assert.ErrorIs(t, stale(ctx), ErrLockNotHeld)
	assert.True(t, server.Exists(LockKey("u-1")))

	require.NoError(t, current(ctx))
	assert.False(t, server.Exists(LockKey("u-1")))
}

func TestUserLocker_Serializes(t *testing.T) {
	cache, _ := newTestCache(t)
	locker := NewUserLocker(cache, time.Minute)
	locker.interval = time.Millisecond
	ctx := context.Background()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "u-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, release(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
}
