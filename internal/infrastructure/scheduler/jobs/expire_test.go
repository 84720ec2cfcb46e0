package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivrit-hub/progress-hub/internal/application/command"
	"github.com/ivrit-hub/progress-hub/pkg/logger"
)

type scriptedExpirer struct {
	results []*command.ExpireResult
	err     error
	calls   int
}

func (s *scriptedExpirer) Handle(context.Context) (*command.ExpireResult, error) {
	s.calls++
	if s.calls > len(s.results) {
		return &command.ExpireResult{}, s.err
	}
	return s.results[s.calls-1], nil
}

func TestExpireJob_DrainsUntilNothingExpires(t *testing.T) {
	exp := &scriptedExpirer{results: []*command.ExpireResult{
		{Checked: 500, Expired: 500},
		{Checked: 120, Expired: 118, Failed: 2},
		{Checked: 2, Expired: 0, Failed: 2},
	}}
	job := NewExpireStreaksJob(exp, logger.NewTest(t))

	assert.Nil(t, job.LastRun())
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 3, exp.calls)
	assert.Equal(t, &command.ExpireResult{Checked: 622, Expired: 618, Failed: 4}, job.LastRun())
	assert.Equal(t, "expire_streaks", job.Name())
}

func TestExpireJob_StopsAfterMaxRounds(t *testing.T) {
	results := make([]*command.ExpireResult, MaxRounds+5)
	for i := range results {
		results[i] = &command.ExpireResult{Checked: 1, Expired: 1}
	}
	exp := &scriptedExpirer{results: results}

	require.NoError(t, NewExpireGoalsJob(exp, logger.NewTest(t)).Run(context.Background()))
	assert.Equal(t, MaxRounds, exp.calls)
}

func TestExpireJob_PropagatesErrors(t *testing.T) {
	exp := &scriptedExpirer{err: errors.New("list failed")}
	job := NewExpireGoalsJob(exp, logger.NewTest(t))

	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "expire_goals: list failed")
}
