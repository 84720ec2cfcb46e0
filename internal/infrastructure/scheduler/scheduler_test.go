package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivrit-hub/progress-hub/pkg/logger"
)

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }

func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

type panickingJob struct{}

func (panickingJob) Name() string              { return "panics" }
func (panickingJob) Description() string       { return "" }
func (panickingJob) Run(context.Context) error { panic("boom") }

func TestScheduler_Register(t *testing.T) {
	s := New(Config{Logger: logger.NewTest(t)})

	assert.ErrorIs(t, s.Register(nil, Schedule{Every: time.Second}), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, Schedule{}), ErrInvalidSchedule)

	require.NoError(t, s.Register(&countingJob{name: "a"}, Schedule{Every: time.Hour}))
	require.NoError(t, s.Register(&countingJob{name: "b"}, Schedule{Cron: "5 0 * * *"}))
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, Schedule{Every: time.Hour}), ErrJobAlreadyExists)
}

func TestScheduler_RunsOnInterval(t *testing.T) {
	s := New(Config{Logger: logger.NewTest(t)})
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, Schedule{Every: 50 * time.Millisecond}))

	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.False(t, s.IsRunning())
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(Config{Logger: logger.NewTest(t)})
	failing := &countingJob{name: "failing", err: errors.New("db down")}
	require.NoError(t, s.Register(failing, Schedule{Every: time.Hour}))
	require.NoError(t, s.Register(panickingJob{}, Schedule{Every: time.Hour}))

	res, err := s.RunNow(context.Background(), "failing")
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Equal(t, int32(1), failing.runs.Load())

	last, ok := s.LastResult("failing")
	require.True(t, ok)
	assert.EqualError(t, last.Error, "db down")

	res, err = s.RunNow(context.Background(), "panics")
	require.NoError(t, err)
	assert.ErrorContains(t, res.Error, "job panic")

	_, err = s.RunNow(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSchedule_String(t *testing.T) {
	assert.Equal(t, "cron(5 0 * * *)", Schedule{Cron: "5 0 * * *"}.String())
	assert.Equal(t, "every 1h0m0s", Schedule{Every: time.Hour}.String())
}
