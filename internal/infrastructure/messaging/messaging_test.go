package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
	"github.com/ivrit-hub/progress-hub/pkg/logger"
)

var at = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type observerStub struct {
	mu        sync.Mutex
	published []string
	failures  int
}

func (o *observerStub) ObservePublish(eventType string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published = append(o.published, eventType)
}

func (o *observerStub) ObserveHandler(_ string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failures++
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

func TestInMemoryEventBus_RoutesByType(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.NewTest(t)})

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewXPGainedEvent("u-1", 65, 65, "practice", "p-1", at)))
	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("u-1", "beginner", "intermediate", 1050, at)))

	assert.Equal(t, []shared.EventType{shared.EventLevelUp}, typed)
	assert.Equal(t, []shared.EventType{shared.EventXPGained, shared.EventLevelUp}, all)
}

func TestInMemoryEventBus_HandlerFailuresDoNotFailPublish(t *testing.T) {
	obs := &observerStub{}
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.NewTest(t), Observer: obs})

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("kaboom") }))

	err := bus.Publish(shared.NewStreakUpdatedEvent("u-1", 1, 2, at))
	require.NoError(t, err)

	assert.Equal(t, []string{string(shared.EventStreakUpdated)}, obs.published)
	assert.Equal(t, 2, obs.failures)
}

func TestInMemoryEventBus_AsyncCloseWaits(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 2,
		Logger:         logger.NewTest(t),
	})

	var handled atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		handled.Add(1)
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(shared.NewXPGainedEvent("u-1", 10, 10*(i+1), "practice", "", at)))
	}
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(10), handled.Load())
	assert.ErrorIs(t, bus.Publish(shared.NewXPGainedEvent("u-1", 1, 1, "practice", "", at)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_RejectsNil(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	assert.ErrorIs(t, bus.Subscribe(shared.EventLevelUp, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
}

// ══════════════════════════════════════════════════════════════════════════════
// KAFKA FORWARDER
// ══════════════════════════════════════════════════════════════════════════════

func TestKafkaConfig_TopicName(t *testing.T) {
	cfg := KafkaConfig{TopicPrefix: "ivrit"}
	assert.Equal(t, "ivrit.progress.level_up", cfg.TopicName("progress.level_up"))
	assert.Equal(t, "ivrit.progress.level_up", cfg.TopicName("ivrit.progress.level_up"))
	assert.Equal(t, "goal.completed", KafkaConfig{}.TopicName("goal.completed"))
}

func TestKafkaForwarder_ForwardsEnvelope(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, mocks.NewTestConfig())
	cfg := KafkaConfig{TopicPrefix: "ivrit", Service: "progress-hub", Env: "test"}

	producer.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "ivrit.progress.achievement_unlocked" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil || string(key) != "u-1" {
			return errors.New("message must be keyed by user")
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var env map[string]any
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		if env["event_type"] != "progress.achievement_unlocked" || env["user_id"] != "u-1" {
			return errors.New("unexpected envelope header")
		}
		if env["timestamp"] != at.Format(time.RFC3339Nano) {
			return errors.New("unexpected timestamp")
		}
		payload, _ := env["payload"].(map[string]any)
		if payload["achievement_id"] != "stories_10" || payload["xp_reward"] != float64(200) {
			return errors.New("unexpected payload")
		}
		meta, _ := env["metadata"].(map[string]any)
		if meta["service"] != "progress-hub" {
			return errors.New("missing metadata")
		}
		return nil
	})

	f := NewKafkaForwarderWithProducer(producer, cfg, logger.NewTest(t))
	event := shared.NewAchievementUnlockedEvent("u-1", "stories_10", "Story Master", "reading", 200, at)
	require.NoError(t, f.Forward(context.Background(), event))
	require.NoError(t, f.Close())

	assert.ErrorIs(t, f.Forward(context.Background(), event), ErrForwarderClosed)
}

func TestKafkaForwarder_CountsDeliveryFailures(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, mocks.NewTestConfig())
	producer.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	f := NewKafkaForwarderWithProducer(producer, KafkaConfig{}, logger.NewTest(t))
	require.NoError(t, f.Forward(context.Background(), shared.NewLevelUpEvent("u-1", "beginner", "intermediate", 1000, at)))

	assert.Eventually(t, func() bool { return f.Failed() == 1 }, time.Second, 5*time.Millisecond)
	_ = f.Close()
}

func TestNewKafkaForwarder_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaForwarder(KafkaConfig{}, nil)
	assert.Error(t, err)
}
