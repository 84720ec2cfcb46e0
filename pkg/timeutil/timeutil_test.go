package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysBetween(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)

	tests := []struct {
		name string
		t1   time.Time
		t2   time.Time
		want int
	}{
		{"same day", time.Date(2024, 3, 1, 1, 0, 0, 0, loc), time.Date(2024, 3, 1, 23, 0, 0, 0, loc), 0},
		{"next day", time.Date(2024, 3, 1, 23, 59, 0, 0, loc), time.Date(2024, 3, 2, 0, 1, 0, 0, loc), 1},
		{"gap", time.Date(2024, 3, 1, 12, 0, 0, 0, loc), time.Date(2024, 3, 4, 12, 0, 0, 0, loc), 3},
		{"backwards", time.Date(2024, 3, 4, 12, 0, 0, 0, loc), time.Date(2024, 3, 1, 12, 0, 0, 0, loc), -3},
		{"leap day", time.Date(2024, 2, 28, 12, 0, 0, 0, loc), time.Date(2024, 3, 1, 12, 0, 0, 0, loc), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysBetween(tt.t1, tt.t2, loc))
		})
	}
}

func TestDaysBetween_UsesReferenceZone(t *testing.T) {
	// 20:00 UTC and 02:00 UTC next day are the same calendar day at UTC+5 (01:00 and 07:00).
	t1 := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, DaysBetween(t1, t2, time.UTC))
	assert.Equal(t, 0, DaysBetween(t1, t2, time.FixedZone("UTC+5", 5*60*60)))
}

func TestDaysBetween_AcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		t.Skip("tzdata not available")
	}
	before := time.Date(2024, 3, 28, 12, 0, 0, 0, loc)
	after := time.Date(2024, 3, 30, 0, 30, 0, 0, loc)

	assert.Equal(t, 2, DaysBetween(before, after, loc))
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	in := time.Date(2024, 5, 10, 23, 30, 0, 0, time.UTC)

	got := StartOfDay(in, loc)

	assert.Equal(t, time.Date(2024, 5, 11, 0, 0, 0, 0, loc), got)
}

func TestIsConsecutiveDay(t *testing.T) {
	d1 := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

	assert.True(t, IsConsecutiveDay(d1, d2, time.UTC))
	assert.False(t, IsConsecutiveDay(d2, d1, time.UTC))
}

func TestClock(t *testing.T) {
	fixed := FixedClock{T: time.Date(2024, 6, 1, 15, 4, 5, 0, time.UTC)}
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), Today(fixed))

	sys := NewSystemClock(nil)
	assert.Equal(t, DefaultZone, sys.Location())
}

func TestLoadZone(t *testing.T) {
	loc, err := LoadZone("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadZone("Mars/Olympus")
	assert.Error(t, err)
}

func TestDateIn(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	stored := time.Date(2024, 7, 9, 0, 0, 0, 0, time.UTC)

	got := DateIn(stored, loc)

	assert.Equal(t, time.Date(2024, 7, 9, 0, 0, 0, 0, loc), got)
	assert.Equal(t, 1, DaysBetween(got, time.Date(2024, 7, 10, 0, 30, 0, 0, loc), loc))
	assert.Equal(t, DefaultZone, DateIn(stored, nil).Location())
}
