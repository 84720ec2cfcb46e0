package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 5, d, 15, 30, 0, 0, time.UTC)
}

func TestStreakTracker_Tick_Sequence(t *testing.T) {
	tracker := NewStreakTracker(time.UTC)
	rec, err := NewRecord("u-1", day(1))
	require.NoError(t, err)

	var change StreakChange
	var got []int
	for _, d := range []int{1, 2, 4} {
		rec, change = tracker.Tick(rec, day(d))
		got = append(got, rec.Streak)
	}

	assert.Equal(t, []int{1, 2, 1}, got)
	assert.Equal(t, StreakReset, change.Outcome)
	assert.Equal(t, 1, change.DaysMissed)
	assert.True(t, change.Broken())
	assert.Equal(t, time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC), rec.LastActivityDate)
}

func TestStreakTracker_Tick_SameDayIsIdempotent(t *testing.T) {
	tracker := NewStreakTracker(time.UTC)
	rec, _ := NewRecord("u-1", day(1))

	rec, change := tracker.Tick(rec, day(1))
	assert.Equal(t, StreakStarted, change.Outcome)

	again, change := tracker.Tick(rec, day(1).Add(5*time.Hour))
	assert.Equal(t, StreakUnchanged, change.Outcome)
	assert.False(t, change.Changed())
	assert.Equal(t, rec, again)
}

func TestStreakTracker_Tick_ClockSkewCountsAsSameDay(t *testing.T) {
	tracker := NewStreakTracker(time.UTC)
	rec, _ := NewRecord("u-1", day(1))
	rec, _ = tracker.Tick(rec, day(3))

	got, change := tracker.Tick(rec, day(2))
	assert.Equal(t, StreakUnchanged, change.Outcome)
	assert.Equal(t, rec.Streak, got.Streak)
}

func TestStreakTracker_UsesReferenceZone(t *testing.T) {
	zone := time.FixedZone("UTC+3", 3*60*60)
	tracker := NewStreakTracker(zone)
	rec, _ := NewRecord("u-1", day(1))

	// 22:00 UTC on May 1 is already May 2 in UTC+3.
	rec, _ = tracker.Tick(rec, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	rec, change := tracker.Tick(rec, time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC))

	assert.Equal(t, StreakContinued, change.Outcome)
	assert.Equal(t, 2, rec.Streak)
}

func TestStreakTracker_Expire(t *testing.T) {
	tracker := NewStreakTracker(time.UTC)
	rec, _ := NewRecord("u-1", day(1))
	rec, _ = tracker.Tick(rec, day(1))
	rec, _ = tracker.Tick(rec, day(2))

	_, expired := tracker.Expire(rec, day(3))
	assert.False(t, expired, "yesterday's activity keeps the streak")

	got, expired := tracker.Expire(rec, day(4))
	assert.True(t, expired)
	assert.Equal(t, 0, got.Streak)
	assert.NoError(t, got.Validate())

	got, change := tracker.Tick(got, day(5))
	assert.Equal(t, 1, got.Streak)
	assert.Equal(t, StreakReset, change.Outcome)
	assert.False(t, change.Broken())
}
