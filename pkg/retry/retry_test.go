package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("conflict")

func isConflict(err error) bool { return errors.Is(err, errConflict) }

func TestConflictRetrier_RetriesOnce(t *testing.T) {
	r := ConflictRetrier(isConflict, WithBackoff(0))

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errConflict
	})

	require.ErrorIs(t, err, errConflict)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, r.MaxAttempts())
}

func TestConflictRetrier_SecondAttemptSucceeds(t *testing.T) {
	r := ConflictRetrier(isConflict, WithBackoff(0))

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errConflict
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetrier_NonConflictStopsImmediately(t *testing.T) {
	r := ConflictRetrier(isConflict)
	boom := errors.New("boom")

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetrier_OnRetryGetsLinearBackoff(t *testing.T) {
	var delays []time.Duration
	r := ConflictRetrier(isConflict,
		WithMaxAttempts(3),
		WithBackoff(time.Millisecond),
		WithOnRetry(func(attempt int, err error, delay time.Duration) {
			assert.ErrorIs(t, err, errConflict)
			delays = append(delays, delay)
		}),
	)

	_ = r.Do(context.Background(), func(ctx context.Context) error { return errConflict })

	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
}

func TestRetrier_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := ConflictRetrier(isConflict).Do(ctx, func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDoWithData(t *testing.T) {
	r := ConflictRetrier(isConflict, WithBackoff(0))

	calls := 0
	got, err := DoWithData(context.Background(), r, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errConflict
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}
