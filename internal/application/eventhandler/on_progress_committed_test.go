package eventhandler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
	"github.com/ivrit-hub/progress-hub/pkg/logger"
)

var at = time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)

type fakeMetrics struct {
	xp           map[string]int
	levelUps     []string
	achievements []string
	broken       int
	goals        []string
}

func (m *fakeMetrics) RecordXP(source string, amount int) {
	if m.xp == nil {
		m.xp = map[string]int{}
	}
	m.xp[source] += amount
}

func (m *fakeMetrics) RecordLevelUp(from, to string) { m.levelUps = append(m.levelUps, from+"->"+to) }
func (m *fakeMetrics) RecordAchievement(id string) { m.achievements = append(m.achievements, id) }
func (m *fakeMetrics) RecordStreakBroken() { m.broken++ }
func (m *fakeMetrics) RecordGoal(eventType string) { m.goals = append(m.goals, eventType) }

type fakeForwarder struct {
	forwarded []shared.EventType
	err       error
}

func (f *fakeForwarder) Forward(_ context.Context, ev shared.Event) error {
	f.forwarded = append(f.forwarded, ev.EventType())
	return f.err
}

type fakeBus struct {
	all []shared.EventHandler
}

func (b *fakeBus) Subscribe(shared.EventType, shared.EventHandler) error { return nil }

func (b *fakeBus) SubscribeAll(h shared.EventHandler) error {
	b.all = append(b.all, h)
	return nil
}

func TestOnProgressCommitted_HandlesEvents(t *testing.T) {
	metrics := &fakeMetrics{}
	fwd := &fakeForwarder{}
	cfg := DefaultProgressCommittedConfig()
	cfg.ForwardEvents = true
	h := NewOnProgressCommittedHandler(metrics, fwd, logger.NewTest(t), cfg)

	events := []shared.Event{
		shared.NewXPGainedEvent("u-1", 65, 1065, "practice", "p-1", at),
		shared.NewLevelUpEvent("u-1", "beginner", "intermediate", 1065, at),
		shared.NewAchievementUnlockedEvent("u-1", "stories_10", "Story Master", "reading", 200, at),
		shared.NewStreakBrokenEvent("u-1", 5, 2, at),
		shared.NewGoalEvent(shared.EventGoalCompleted, "u-1", "g-1", "daily_xp", 100, 120, 100, at),
	}
	for _, ev := range events {
		require.NoError(t, h.Handle(ev))
	}

	assert.Equal(t, 65, metrics.xp["practice"])
	assert.Equal(t, []string{"beginner->intermediate"}, metrics.levelUps)
	assert.Equal(t, []string{"stories_10"}, metrics.achievements)
	assert.Equal(t, 1, metrics.broken)
	assert.Equal(t, []string{string(shared.EventGoalCompleted)}, metrics.goals)
	assert.Len(t, fwd.forwarded, len(events))
}

func TestOnProgressCommitted_ForwardErrorReturned(t *testing.T) {
	fwdErr := errors.New("kafka down")
	metrics := &fakeMetrics{}
	cfg := DefaultProgressCommittedConfig()
	cfg.ForwardEvents = true
	h := NewOnProgressCommittedHandler(metrics, &fakeForwarder{err: fwdErr}, logger.NewTest(t), cfg)

	err := h.Handle(shared.NewXPGainedEvent("u-1", 10, 10, "story", "s-1", at))
	assert.ErrorIs(t, err, fwdErr)
	assert.Equal(t, 10, metrics.xp["story"], "metrics recorded before forwarding")
}

func TestOnProgressCommitted_ForwardingDisabled(t *testing.T) {
	fwd := &fakeForwarder{}
	h := NewOnProgressCommittedHandler(nil, fwd, nil, DefaultProgressCommittedConfig())

	require.NoError(t, h.Handle(shared.NewProgressOpenedEvent("u-1", at)))
	assert.Empty(t, fwd.forwarded)
}

func TestOnProgressCommitted_Subscribe(t *testing.T) {
	bus := &fakeBus{}
	h := NewOnProgressCommittedHandler(nil, nil, nil, DefaultProgressCommittedConfig())

	require.NoError(t, h.Subscribe(bus))
	assert.Len(t, bus.all, 1)
}
