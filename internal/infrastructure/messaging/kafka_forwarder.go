package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// KAFKA FORWARDER
// ══════════════════════════════════════════════════════════════════════════════

const envelopeVersion = "1.0"

// ErrForwarderClosed is returned by Forward after Close.
var ErrForwarderClosed = errors.New("kafka forwarder is closed")

// KafkaConfig configures the forwarder.
type KafkaConfig struct {
	// Brokers is the bootstrap broker list.
	Brokers []string

	// TopicPrefix is prepended to the event type ("ivrit" -> "ivrit.progress.level_up").
	TopicPrefix string

	// ClientID identifies the producer to the brokers.
	ClientID string

	// Service and Env are copied into every envelope's metadata.
	Service string
	Env     string
}

// SaramaConfig returns the producer configuration used by NewKafkaForwarder.
func (c KafkaConfig) SaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_5_0_0
	if c.ClientID != "" {
		cfg.ClientID = c.ClientID
	}
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 100 * time.Millisecond
	cfg.Producer.Flush.Messages = 100
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true
	cfg.Metadata.Retry.Max = 3
	cfg.Metadata.Retry.Backoff = 250 * time.Millisecond
	return cfg
}

// TopicName returns the topic for an event type.
func (c KafkaConfig) TopicName(eventType string) string {
	if c.TopicPrefix == "" {
		return eventType
	}
	prefix := c.TopicPrefix + "."
	if strings.HasPrefix(eventType, prefix) {
		return eventType
	}
	return prefix + eventType
}

// KafkaForwarder publishes committed domain events to Kafka.
// Implements eventhandler.EventForwarder. Messages are keyed by user ID so
// one user's events stay ordered within a partition.
type KafkaForwarder struct {
	producer sarama.AsyncProducer
	cfg      KafkaConfig
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	failed atomic.Int64
	done   chan struct{}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   map[string]any    `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewKafkaForwarder connects an async producer to the brokers.
func NewKafkaForwarder(cfg KafkaConfig, logger *slog.Logger) (*KafkaForwarder, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, cfg.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	f := NewKafkaForwarderWithProducer(producer, cfg, logger)
	f.logger.Info("kafka forwarder initialized",
		"brokers", cfg.Brokers,
		"topic_prefix", cfg.TopicPrefix,
	)
	return f, nil
}

// NewKafkaForwarderWithProducer wraps an existing producer.
func NewKafkaForwarderWithProducer(producer sarama.AsyncProducer, cfg KafkaConfig, logger *slog.Logger) *KafkaForwarder {
	if logger == nil {
		logger = slog.Default()
	}
	f := &KafkaForwarder{
		producer: producer,
		cfg:      cfg,
		logger:   logger.With("component", "kafka_forwarder"),
		done:     make(chan struct{}),
	}
	go f.handleErrors()
	return f
}

// Forward enqueues the event. It returns once the producer accepted the
// message; delivery failures are logged and counted.
func (f *KafkaForwarder) Forward(ctx context.Context, event shared.Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrForwarderClosed
	}

	ts := event.OccurredAt()
	if ts.IsZero() {
		ts = time.Now()
	}

	envelope := eventEnvelope{
		EventID:   uuid.NewString(),
		EventType: string(event.EventType()),
		UserID:    event.AggregateID(),
		Timestamp: ts.UTC(),
		Version:   envelopeVersion,
		Payload:   event.Payload(),
		Metadata: map[string]string{
			"service":     f.cfg.Service,
			"environment": f.cfg.Env,
		},
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: f.cfg.TopicName(envelope.EventType),
		Key:   sarama.StringEncoder(envelope.UserID),
		Value: sarama.ByteEncoder(data),
	}

	select {
	case f.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failed returns the number of messages the producer reported as failed.
func (f *KafkaForwarder) Failed() int64 {
	return f.failed.Load()
}

func (f *KafkaForwarder) handleErrors() {
	for {
		select {
		case perr, ok := <-f.producer.Errors():
			if !ok {
				return
			}
			if perr == nil {
				continue
			}
			f.logger.Error("kafka delivery failed",
				"topic", perr.Msg.Topic,
				"error", perr.Err,
			)
			f.failed.Add(1)
		case <-f.done:
			return
		}
	}
}

// Close flushes pending messages and closes the producer.
func (f *KafkaForwarder) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	err := f.producer.Close()
	close(f.done)
	if err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
