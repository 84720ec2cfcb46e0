// Package metrics exposes Prometheus collectors for the progress service.
// Metrics implements saga.FlowObserver, eventhandler.ProgressMetrics and
// messaging.BusObserver, and records HTTP requests for the API middleware.
package metrics

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// Options configures collector registration.
type Options struct {
	Registerer prometheus.Registerer
	Namespace  string
	Buckets    []float64
}

// Metrics holds every collector of the service.
type Metrics struct {
	flows        *prometheus.CounterVec
	flowDuration *prometheus.HistogramVec
	retries      *prometheus.CounterVec

	xp           *prometheus.CounterVec
	levelUps     *prometheus.CounterVec
	achievements *prometheus.CounterVec
	streakBreaks prometheus.Counter
	goals        *prometheus.CounterVec

	events          *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

// New constructs the collectors and registers them with opts.Registerer
// (prometheus.DefaultRegisterer when nil). Collectors that are already
// registered are reused.
func New(opts Options) (*Metrics, error) {
	ns := opts.Namespace
	if ns == "" {
		ns = "progress"
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "flow", Name: "total",
			Help: "Progress mutations partitioned by operation and result.",
		}, []string{"op", "result"}),
		flowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "flow", Name: "duration_seconds",
			Help: "Latency of progress mutations including retries.", Buckets: buckets,
		}, []string{"op"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "flow", Name: "retries_total",
			Help: "Mutations retried after a persistence conflict.",
		}, []string{"op"}),
		xp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "xp_awarded_total",
			Help: "XP awarded partitioned by source.",
		}, []string{"source"}),
		levelUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "level_ups_total",
			Help: "Level transitions.",
		}, []string{"from", "to"}),
		achievements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "achievements_unlocked_total",
			Help: "Achievements unlocked partitioned by achievement.",
		}, []string{"achievement"}),
		streakBreaks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "streaks_broken_total",
			Help: "Streaks reset after a missed day.",
		}),
		goals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "goal_events_total",
			Help: "Goal lifecycle events.",
		}, []string{"event"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "events", Name: "published_total",
			Help: "Domain events published on the bus.",
		}, []string{"event_type"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "events", Name: "handler_failures_total",
			Help: "Event handler executions that returned an error.",
		}, []string{"event_type"}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "events", Name: "handler_duration_seconds",
			Help: "Event handler latency.", Buckets: buckets,
		}, []string{"event_type"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests partitioned by method, route, and status code.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "http", Name: "request_duration_seconds",
			Help: "HTTP request latency partitioned by method, route, and status code.", Buckets: buckets,
		}, []string{"method", "route", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "http", Name: "in_flight_requests",
			Help: "Current number of in-flight HTTP requests.",
		}),
	}

	var err error
	if m.flows, err = register(reg, m.flows); err != nil {
		return nil, err
	}
	if m.flowDuration, err = register(reg, m.flowDuration); err != nil {
		return nil, err
	}
	if m.retries, err = register(reg, m.retries); err != nil {
		return nil, err
	}
	if m.xp, err = register(reg, m.xp); err != nil {
		return nil, err
	}
	if m.levelUps, err = register(reg, m.levelUps); err != nil {
		return nil, err
	}
	if m.achievements, err = register(reg, m.achievements); err != nil {
		return nil, err
	}
	if m.streakBreaks, err = register(reg, m.streakBreaks); err != nil {
		return nil, err
	}
	if m.goals, err = register(reg, m.goals); err != nil {
		return nil, err
	}
	if m.events, err = register(reg, m.events); err != nil {
		return nil, err
	}
	if m.handlerFailures, err = register(reg, m.handlerFailures); err != nil {
		return nil, err
	}
	if m.handlerDuration, err = register(reg, m.handlerDuration); err != nil {
		return nil, err
	}
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.requestDuration, err = register(reg, m.requestDuration); err != nil {
		return nil, err
	}
	if m.inFlight, err = register(reg, m.inFlight); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c or returns the collector already registered under its name.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

// Result classifies an error for the "result" label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case shared.IsNotFound(err):
		return "not_found"
	case shared.IsValidation(err):
		return "invalid"
	case shared.IsPersistenceConflict(err):
		return "conflict"
	default:
		return "error"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// saga.FlowObserver
// ══════════════════════════════════════════════════════════════════════════════

// ObserveFlow records one finished mutation.
func (m *Metrics) ObserveFlow(op string, err error, duration time.Duration) {
	m.flows.WithLabelValues(op, Result(err)).Inc()
	m.flowDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveRetry records a retried mutation.
func (m *Metrics) ObserveRetry(op string) {
	m.retries.WithLabelValues(op).Inc()
}

// ══════════════════════════════════════════════════════════════════════════════
// eventhandler.ProgressMetrics
// ══════════════════════════════════════════════════════════════════════════════

// RecordXP adds awarded XP.
func (m *Metrics) RecordXP(source string, amount int) {
	if amount <= 0 {
		return
	}
	m.xp.WithLabelValues(source).Add(float64(amount))
}

// RecordLevelUp counts a level transition.
func (m *Metrics) RecordLevelUp(from, to string) {
	m.levelUps.WithLabelValues(from, to).Inc()
}

// RecordAchievement counts an unlock.
func (m *Metrics) RecordAchievement(id string) {
	m.achievements.WithLabelValues(id).Inc()
}

// RecordStreakBroken counts a streak reset.
func (m *Metrics) RecordStreakBroken() {
	m.streakBreaks.Inc()
}

// RecordGoal counts a goal lifecycle event.
func (m *Metrics) RecordGoal(eventType string) {
	m.goals.WithLabelValues(eventType).Inc()
}

// ══════════════════════════════════════════════════════════════════════════════
// messaging.BusObserver
// ══════════════════════════════════════════════════════════════════════════════

// ObservePublish counts a published event.
func (m *Metrics) ObservePublish(eventType string) {
	m.events.WithLabelValues(eventType).Inc()
}

// ObserveHandler records one handler execution.
func (m *Metrics) ObserveHandler(eventType string, duration time.Duration, err error) {
	m.handlerDuration.WithLabelValues(eventType).Observe(duration.Seconds())
	if err != nil {
		m.handlerFailures.WithLabelValues(eventType).Inc()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP
// ══════════════════════════════════════════════════════════════════════════════

// RequestStarted increments the in-flight gauge and returns the matching decrement.
func (m *Metrics) RequestStarted() func() {
	m.inFlight.Inc()
	return m.inFlight.Dec
}

// ObserveRequest records a finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requests.With(labels).Inc()
	m.requestDuration.With(labels).Observe(duration.Seconds())
}
