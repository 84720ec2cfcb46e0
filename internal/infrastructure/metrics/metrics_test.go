package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := New(Options{Registerer: reg, Namespace: "test"})
	require.NoError(t, err)
	return m, reg
}

func TestResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{shared.ErrProgressNotFound, "not_found"},
		{fmt.Errorf("wrap: %w", shared.ErrNegativeDelta), "invalid"},
		{shared.ErrRecordConflict, "conflict"},
		{errors.New("disk full"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Result(tt.err))
	}
}

func TestMetrics_Flow(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveFlow("submit_practice", nil, 10*time.Millisecond)
	m.ObserveFlow("submit_practice", shared.ErrRecordConflict, 20*time.Millisecond)
	m.ObserveRetry("submit_practice")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.flows.WithLabelValues("submit_practice", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flows.WithLabelValues("submit_practice", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries.WithLabelValues("submit_practice")))
}

func TestMetrics_ProgressEvents(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordXP("practice", 65)
	m.RecordXP("achievement", 500)
	m.RecordXP("practice", 0)
	m.RecordLevelUp("beginner", "intermediate")
	m.RecordAchievement("stories_10")
	m.RecordStreakBroken()
	m.RecordGoal("goal.completed")

	assert.Equal(t, 65.0, testutil.ToFloat64(m.xp.WithLabelValues("practice")))
	assert.Equal(t, 500.0, testutil.ToFloat64(m.xp.WithLabelValues("achievement")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.levelUps.WithLabelValues("beginner", "intermediate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.achievements.WithLabelValues("stories_10")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streakBreaks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.goals.WithLabelValues("goal.completed")))
}

func TestMetrics_BusAndHTTP(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObservePublish("progress.level_up")
	m.ObserveHandler("progress.level_up", time.Millisecond, nil)
	m.ObserveHandler("progress.level_up", time.Millisecond, errors.New("cache down"))

	done := m.RequestStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight))
	done()
	m.ObserveRequest("GET", "/api/v1/users/:userID/progress", 200, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("progress.level_up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handlerFailures.WithLabelValues("progress.level_up")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/v1/users/:userID/progress", "200")))
}

func TestNew_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(Options{Registerer: reg})
	require.NoError(t, err)
	second, err := New(Options{Registerer: reg})
	require.NoError(t, err)

	first.RecordStreakBroken()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.streakBreaks))

	count, err := testutil.GatherAndCount(reg, "progress_streaks_broken_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
