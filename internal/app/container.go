// Package app assembles the progress service from configuration.
// Both cmd/progressd and cmd/worker build their object graph here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ivrit-hub/progress-hub/config"
	"github.com/ivrit-hub/progress-hub/internal/application/command"
	"github.com/ivrit-hub/progress-hub/internal/application/eventhandler"
	"github.com/ivrit-hub/progress-hub/internal/application/query"
	"github.com/ivrit-hub/progress-hub/internal/application/saga"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/infrastructure/messaging"
	"github.com/ivrit-hub/progress-hub/internal/infrastructure/metrics"
	"github.com/ivrit-hub/progress-hub/internal/infrastructure/persistence/memory"
	"github.com/ivrit-hub/progress-hub/internal/infrastructure/persistence/postgres"
	"github.com/ivrit-hub/progress-hub/internal/infrastructure/persistence/redis"
	"github.com/ivrit-hub/progress-hub/internal/infrastructure/persistence/sqlite"
	httpapi "github.com/ivrit-hub/progress-hub/internal/interface/http"
	"github.com/ivrit-hub/progress-hub/internal/interface/http/handlers"
	"github.com/ivrit-hub/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTAINER
// ══════════════════════════════════════════════════════════════════════════════

// Container holds the wired service. Close releases everything Build opened.
type Container struct {
	Config *config.Config
	Logger *slog.Logger
	Clock  timeutil.Clock

	Store  progress.UnitOfWorkFactory
	Health *handlers.CompositeHealthChecker

	Metrics        *metrics.Metrics
	MetricsHandler http.Handler

	Bus       *messaging.InMemoryEventBus
	Forwarder *messaging.KafkaForwarder
	Cache     *redis.Cache
	Overviews progress.OverviewCache
	Locker    progress.UserLocker

	Flow *saga.ProgressFlow

	closers []func() error
}

// Build connects the storage selected by cfg and wires the flow around it.
// Redis, Kafka and metrics are attached when configured.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Container, error) {
	if cfg.Features == nil {
		cfg.Features = config.NewFeatureFlags()
	}
	c := &Container{
		Config: cfg,
		Logger: log,
		Clock:  timeutil.NewSystemClock(cfg.App.Location),
		Health: handlers.NewCompositeHealthChecker(cfg.App.Version),
	}

	steps := []func() error{
		func() error { return c.openStore(ctx) },
		c.openRedis,
		c.setupMetrics,
		c.setupEvents,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	c.setupFlow()
	c.Logger.Info("feature flags", "active", ActiveFeatures(cfg.Features))

	return c, nil
}

// ActiveFeatures lists enabled flags as name=percent, sorted by name.
func ActiveFeatures(ff *config.FeatureFlags) []string {
	var out []string
	for name, f := range ff.GetAllFeatures() {
		if f.Enabled && f.RolloutPercent > 0 {
			out = append(out, fmt.Sprintf("%s=%d%%", name, f.RolloutPercent))
		}
	}
	sort.Strings(out)
	return out
}

// BuildStore opens only the configured storage. Used by one-shot commands.
func BuildStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: log,
		Clock:  timeutil.NewSystemClock(cfg.App.Location),
		Health: handlers.NewCompositeHealthChecker(cfg.App.Version),
	}
	if err := c.openStore(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Storage
// ─────────────────────────────────────────────────────────────────────────────

func (c *Container) openStore(ctx context.Context) error {
	cfg := c.Config.Storage
	c.Logger.Info("opening progress store", "driver", cfg.Driver)

	switch cfg.Driver {
	case config.DriverPostgres:
		conn, err := postgres.NewConnection(ctx, PostgresConfig(cfg.Postgres))
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		c.onClose(func() error { conn.Close(); return nil })

		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		c.Logger.Info("migrations applied", "count", applied)

		c.Store = postgres.NewStore(conn, c.Clock.Location())
		c.Health.AddCheck("postgres", conn.CheckHealth)

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.SQLite.Path, BusyTimeout: cfg.SQLite.BusyTimeout})
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		c.onClose(store.Close)
		c.Store = store
		c.Health.AddCheck("sqlite", handlers.NewPingCheck(store))

	case config.DriverMemory:
		store := memory.NewStore()
		c.onClose(store.Close)
		c.Store = store
		c.Health.AddCheck("memory", handlers.NewPingCheck(store))

	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	return nil
}

// PostgresConfig maps the configuration section onto the connection settings.
func PostgresConfig(pc config.PostgresConfig) postgres.Config {
	out := postgres.DefaultConfig()
	out.URL = pc.URL
	if pc.Host != "" {
		out.Host = pc.Host
	}
	if pc.Port > 0 {
		out.Port = pc.Port
	}
	if pc.Database != "" {
		out.Database = pc.Database
	}
	if pc.User != "" {
		out.User = pc.User
	}
	out.Password = pc.Password
	if pc.SSLMode != "" {
		out.SSLMode = pc.SSLMode
	}
	if pc.MaxConns > 0 {
		out.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		out.MinConns = pc.MinConns
	}
	if pc.MaxConnLifetime > 0 {
		out.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		out.MaxConnIdleTime = pc.MaxConnIdleTime
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Redis
// ─────────────────────────────────────────────────────────────────────────────

func (c *Container) openRedis() error {
	rc := c.Config.Redis
	if !rc.Enabled {
		c.Locker = memory.NewUserLocker()
		return nil
	}

	cfg := redis.DefaultConfig()
	cfg.URL = rc.URL
	if rc.Host != "" {
		cfg.Host = rc.Host
	}
	if rc.Port > 0 {
		cfg.Port = rc.Port
	}
	cfg.Password = rc.Password
	cfg.DB = rc.DB
	if rc.PoolSize > 0 {
		cfg.PoolSize = rc.PoolSize
	}

	cache, err := redis.NewCache(cfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	c.onClose(cache.Close)

	c.Cache = cache
	c.Locker = redis.NewUserLocker(cache, rc.LockTTL)
	if c.Config.Features.IsEnabled(config.FeatureOverviewCache, nil) {
		c.Overviews = redis.NewOverviewCache(cache, rc.OverviewTTL)
	}
	c.Health.AddCheck("redis", handlers.NewPingCheck(cache))
	c.Logger.Info("redis connected", "overview_cache", c.Overviews != nil)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Metrics and events
// ─────────────────────────────────────────────────────────────────────────────

func (c *Container) setupMetrics() error {
	if !c.Config.Metrics.Enabled {
		return nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := metrics.New(metrics.Options{Registerer: reg, Namespace: c.Config.Metrics.Namespace})
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	c.Metrics = m
	c.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	return nil
}

func (c *Container) setupEvents() error {
	// The forwarder is opened before the bus so Close drains the bus first.
	if c.Config.Features.IsEnabled(config.FeatureEventForwarding, nil) {
		fwd, err := messaging.NewKafkaForwarder(messaging.KafkaConfig{
			Brokers:     c.Config.Kafka.Brokers,
			TopicPrefix: c.Config.Kafka.TopicPrefix,
			ClientID:    c.Config.Kafka.ClientID,
			Service:     c.Config.App.Name,
			Env:         string(c.Config.App.Env),
		}, c.Logger)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		c.Forwarder = fwd
		c.onClose(fwd.Close)
	}

	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = c.Logger
	if c.Metrics != nil {
		busCfg.Observer = c.Metrics
	}
	c.Bus = messaging.NewInMemoryEventBus(busCfg)
	c.onClose(c.Bus.Close)

	hcfg := eventhandler.DefaultProgressCommittedConfig()
	hcfg.ForwardEvents = c.Forwarder != nil

	var (
		pm  eventhandler.ProgressMetrics
		fwd eventhandler.EventForwarder
	)
	if c.Metrics != nil {
		pm = c.Metrics
	}
	if c.Forwarder != nil {
		fwd = c.Forwarder
	}

	h := eventhandler.NewOnProgressCommittedHandler(pm, fwd, c.Logger, hcfg)
	if err := h.Subscribe(c.Bus); err != nil {
		return fmt.Errorf("subscribe progress handler: %w", err)
	}
	return nil
}

func (c *Container) setupFlow() {
	flowCfg := saga.DefaultProgressFlowConfig()
	flowCfg.EnableStreaks = c.Config.Features.IsEnabled(config.FeatureStreaks, nil)
	flowCfg.EnableAchievements = c.Config.Features.IsEnabled(config.FeatureAchievements, nil)
	flowCfg.MaxAttempts = c.Config.Progress.MaxAttempts

	deps := saga.ProgressFlowDeps{
		UnitOfWork: c.Store,
		Locker:     c.Locker,
		Publisher:  c.Bus,
		Overviews:  c.Overviews,
		Clock:      c.Clock,
		Ledger:     progress.DefaultLedger,
		Engine:     progress.NewEngine(c.Logger),
		IDs:        saga.UUIDGenerator{},
		Logger:     c.Logger,
	}
	if c.Metrics != nil {
		deps.Observer = c.Metrics
	}
	c.Flow = saga.NewProgressFlow(deps, flowCfg)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// HTTPDependencies builds every command and query handler served by the API.
func (c *Container) HTTPDependencies() httpapi.Dependencies {
	deps := httpapi.Dependencies{
		OpenProgress:        command.NewOpenProgressHandler(c.Store, c.Bus, c.Clock, c.Logger),
		RecordDailyActivity: command.NewRecordDailyActivityHandler(c.Flow),
		CompleteStory:       command.NewCompleteStoryHandler(c.Flow),
		SubmitPractice:      command.NewSubmitPracticeHandler(c.Flow, saga.UUIDGenerator{}),
		CreateGoal:          command.NewCreateGoalHandler(c.Flow, saga.UUIDGenerator{}),
		UpdateGoalProgress:  command.NewUpdateGoalProgressHandler(c.Flow),

		GetOverview:       query.NewGetOverviewHandler(c.Store, c.Overviews, c.Clock, c.Config.Progress.RecentActivity, c.Logger),
		GetPracticeTrends: query.NewGetPracticeTrendsHandler(c.Store),
		ListAchievements:  query.NewListAchievementsHandler(c.Store, progress.NewEngine(c.Logger)),
		ListGoals:         query.NewListGoalsHandler(c.Store, c.Clock),

		Health:         c.Health,
		MetricsHandler: c.MetricsHandler,
		Clock:          c.Clock,
		Logger:         c.Logger,
	}
	if c.Metrics != nil {
		deps.Metrics = c.Metrics
	}
	return deps
}

// HTTPConfig maps the configuration section onto the server settings.
func (c *Container) HTTPConfig() httpapi.Config {
	hc := c.Config.HTTP
	out := httpapi.DefaultConfig()
	out.Host = hc.Host
	out.Port = hc.Port
	if hc.ReadTimeout > 0 {
		out.ReadTimeout = hc.ReadTimeout
	}
	if hc.WriteTimeout > 0 {
		out.WriteTimeout = hc.WriteTimeout
	}
	if hc.IdleTimeout > 0 {
		out.IdleTimeout = hc.IdleTimeout
	}
	if hc.BodyLimit != "" {
		out.BodyLimit = hc.BodyLimit
	}
	out.Debug = hc.Debug
	out.Version = c.Config.App.Version
	return out
}

// ExpireStreaks builds the batch handler used by the worker.
func (c *Container) ExpireStreaks() *command.ExpireStreaksHandler {
	return command.NewExpireStreaksHandler(c.Flow, c.Store, c.Config.Worker.BatchSize, c.Logger)
}

// ExpireGoals builds the batch handler used by the worker.
func (c *Container) ExpireGoals() *command.ExpireGoalsHandler {
	return command.NewExpireGoalsHandler(c.Flow, c.Store, c.Config.Worker.BatchSize, c.Logger)
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

func (c *Container) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
