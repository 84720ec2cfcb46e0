// Package saga contains business processes that orchestrate several domain
// operations as one unit.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
	"github.com/ivrit-hub/progress-hub/pkg/retry"
	"github.com/ivrit-hub/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS FLOW SAGA
// Per-user read-modify-write of the progress record:
//
//	Lock User → Begin → Load Record (for update) → Tick Streak →
//	Apply Command → Apply XP → Evaluate Achievements → Award Batch →
//	Append Feed → Save (version check) → Commit → Invalidate Overview →
//	Publish Events
//
// The whole attempt is repeated once on a persistence conflict. Nothing is
// published unless the unit of work committed. The cached overview is dropped
// before Execute returns, so the caller's next read sees its own write.
// ══════════════════════════════════════════════════════════════════════════════

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	// GenerateID generates a new unique ID.
	GenerateID() string
}

// UUIDGenerator issues random UUIDs.
type UUIDGenerator struct{}

// GenerateID implements IDGenerator.
func (UUIDGenerator) GenerateID() string {
	return uuid.NewString()
}

// FlowObserver receives flow measurements (metrics).
type FlowObserver interface {
	ObserveFlow(op string, err error, duration time.Duration)
	ObserveRetry(op string)
}

// FlowStep names a step of the saga (used in errors and logs).
type FlowStep string

const (
	StepLoadRecord   FlowStep = "load_record"
	StepTickStreak   FlowStep = "tick_streak"
	StepApplyCommand FlowStep = "apply_command"
	StepEvaluate     FlowStep = "evaluate_achievements"
	StepAppendFeed   FlowStep = "append_feed"
	StepSaveRecord   FlowStep = "save_record"
	StepCommit       FlowStep = "commit"
)

// StepError reports which step of the flow failed.
type StepError struct {
	Op   string
	Step FlowStep
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Mutation is one command's change to a user's progress.
type Mutation struct {
	// Op names the command for logs and metrics.
	Op string

	// UserID whose record is changed.
	UserID string

	// TickStreak marks the mutation as learning activity for today.
	TickStreak bool

	// SkipAchievements disables rule evaluation (maintenance mutations).
	SkipAchievements bool

	// Apply performs command-specific writes inside the transaction.
	// It may award XP and append feed entries through tx.
	Apply func(ctx context.Context, tx *FlowTx) error
}

// FlowTx is the state of one attempt, passed to Mutation.Apply.
type FlowTx struct {
	UoW    progress.UnitOfWork
	Now    time.Time
	Record progress.Record

	ledger  progress.Ledger
	ids     IDGenerator
	events  []shared.Event
	entries []activity.Entry
	xp      int
}

// AddXP applies a delta to the working record and records an xp_gained event.
func (tx *FlowTx) AddXP(source progress.Source, refID string, amount int) error {
	rec, _, err := tx.ledger.Apply(tx.Record, amount)
	if err != nil {
		return err
	}
	tx.Record = rec
	if amount == 0 {
		return nil
	}
	tx.xp += amount
	tx.Emit(shared.NewXPGainedEvent(rec.UserID, amount, rec.TotalXP.Int(), string(source), refID, tx.Now))
	return nil
}

// AppendEntry queues a feed entry, written before commit.
func (tx *FlowTx) AppendEntry(kind activity.Kind, refID, title string, xp int) {
	tx.entries = append(tx.entries, activity.Entry{
		ID:         tx.ids.GenerateID(),
		UserID:     tx.Record.UserID,
		Kind:       kind,
		RefID:      refID,
		Title:      title,
		XP:         xp,
		OccurredAt: tx.Now,
	})
}

// Emit queues an event, published after commit.
func (tx *FlowTx) Emit(ev shared.Event) {
	tx.events = append(tx.events, ev)
}

// FlowResult is the outcome of a committed flow.
type FlowResult struct {
	// Initial is the record as loaded; Record is the committed one.
	Initial progress.Record
	Record  progress.Record

	// XPGained sums every delta, achievement rewards included.
	XPGained int

	// LevelChange is set when the level differs between Initial and Record.
	LevelChange *progress.LevelChange

	Streak   progress.StreakChange
	Unlocked []progress.Unlock
	Events   []shared.Event
	Attempts int
}

// LeveledUp returns true if the flow changed the user's level.
func (r *FlowResult) LeveledUp() bool {
	return r.LevelChange != nil
}

// ProgressFlowConfig contains configuration for the progress flow.
type ProgressFlowConfig struct {
	EnableStreaks      bool
	EnableAchievements bool

	// MaxAttempts bounds the whole read-modify-write; 2 means one retry.
	MaxAttempts int
}

// DefaultProgressFlowConfig returns default configuration.
func DefaultProgressFlowConfig() ProgressFlowConfig {
	return ProgressFlowConfig{
		EnableStreaks:      true,
		EnableAchievements: true,
		MaxAttempts:        2,
	}
}

// ProgressFlow runs mutations against users' progress records.
type ProgressFlow struct {
	uowFactory progress.UnitOfWorkFactory
	locker     progress.UserLocker
	publisher  shared.EventPublisher
	overviews  progress.OverviewCache
	clock      timeutil.Clock
	ledger     progress.Ledger
	tracker    progress.StreakTracker
	engine     *progress.Engine
	ids        IDGenerator
	retrier    *retry.Retrier
	observer   FlowObserver
	logger     *slog.Logger

	enableStreaks      bool
	enableAchievements bool
}

// ProgressFlowDeps groups the collaborators of ProgressFlow.
// Locker, Publisher, Overviews and Observer are optional.
type ProgressFlowDeps struct {
	UnitOfWork progress.UnitOfWorkFactory
	Locker     progress.UserLocker
	Publisher  shared.EventPublisher
	Overviews  progress.OverviewCache
	Clock      timeutil.Clock
	Ledger     progress.Ledger
	Engine     *progress.Engine
	IDs        IDGenerator
	Observer   FlowObserver
	Logger     *slog.Logger
}

// NewProgressFlow creates a progress flow.
func NewProgressFlow(deps ProgressFlowDeps, config ProgressFlowConfig) *ProgressFlow {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.NewSystemClock(nil)
	}
	if deps.Engine == nil {
		deps.Engine = progress.NewEngine(deps.Logger)
	}
	if deps.Ledger.IsZero() {
		deps.Ledger = progress.DefaultLedger
	}
	if deps.IDs == nil {
		deps.IDs = UUIDGenerator{}
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 2
	}

	logger := deps.Logger.With("component", "progress_flow")
	f := &ProgressFlow{
		uowFactory:         deps.UnitOfWork,
		locker:             deps.Locker,
		publisher:          deps.Publisher,
		overviews:          deps.Overviews,
		clock:              deps.Clock,
		ledger:             deps.Ledger,
		tracker:            progress.NewStreakTracker(deps.Clock.Location()),
		engine:             deps.Engine,
		ids:                deps.IDs,
		observer:           deps.Observer,
		logger:             logger,
		enableStreaks:      config.EnableStreaks,
		enableAchievements: config.EnableAchievements,
	}
	f.retrier = retry.ConflictRetrier(shared.IsPersistenceConflict,
		retry.WithMaxAttempts(config.MaxAttempts),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			logger.Info("persistence conflict, retrying", "attempt", attempt, "delay", delay, "error", err)
		}),
	)
	return f
}

// Clock returns the reference clock of the flow.
func (f *ProgressFlow) Clock() timeutil.Clock {
	return f.clock
}

// Execute runs the mutation. The per-user lock is held across retries.
func (f *ProgressFlow) Execute(ctx context.Context, m Mutation) (*FlowResult, error) {
	start := time.Now()

	if _, err := shared.NewUserID(m.UserID); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Op, err)
	}

	if f.locker != nil {
		release, err := f.locker.Acquire(ctx, m.UserID)
		if err != nil {
			f.observe(m.Op, err, start)
			return nil, fmt.Errorf("%s: acquire user lock: %w", m.Op, err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				f.logger.Warn("failed to release user lock", "op", m.Op, "user_id", m.UserID, "error", err)
			}
		}()
	}

	attempts := 0
	res, err := retry.DoWithData(ctx, f.retrier, func(ctx context.Context) (*FlowResult, error) {
		attempts++
		if attempts > 1 && f.observer != nil {
			f.observer.ObserveRetry(m.Op)
		}
		return f.attempt(ctx, m)
	})
	f.observe(m.Op, err, start)
	if err != nil {
		return nil, err
	}

	res.Attempts = attempts
	f.invalidate(ctx, res.Record)
	f.publish(res.Events)
	return res, nil
}

// invalidate drops the cached overview while the user lock is still held.
// A failure only costs freshness until the entry's TTL.
func (f *ProgressFlow) invalidate(ctx context.Context, rec progress.Record) {
	if f.overviews == nil {
		return
	}
	if err := f.overviews.Invalidate(context.WithoutCancel(ctx), rec.UserID, rec.Version); err != nil {
		f.logger.Warn("failed to invalidate overview", "user_id", rec.UserID, "version", rec.Version, "error", err)
	}
}

// attempt is one transactional pass. Any error rolls everything back.
func (f *ProgressFlow) attempt(ctx context.Context, m Mutation) (*FlowResult, error) {
	fail := func(step FlowStep, err error) (*FlowResult, error) {
		return nil, &StepError{Op: m.Op, Step: step, Err: err}
	}

	uow, err := f.uowFactory.Begin(ctx)
	if err != nil {
		return fail(StepLoadRecord, fmt.Errorf("begin unit of work: %w", err))
	}
	defer func() {
		if rbErr := uow.Rollback(ctx); rbErr != nil {
			f.logger.Warn("rollback failed", "op", m.Op, "error", rbErr)
		}
	}()

	// Step 1: Load record under lock
	loaded, err := uow.Records().GetForUpdate(ctx, m.UserID)
	if err != nil {
		return fail(StepLoadRecord, err)
	}

	tx := &FlowTx{
		UoW:    uow,
		Now:    f.clock.Now(),
		Record: loaded.Clone(),
		ledger: f.ledger,
		ids:    f.ids,
	}
	result := &FlowResult{Initial: *loaded}

	// Step 2: Streak
	if m.TickStreak && f.enableStreaks {
		rec, change := f.tracker.Tick(tx.Record, tx.Now)
		tx.Record = rec
		result.Streak = change
		if change.Changed() {
			tx.Emit(shared.NewStreakUpdatedEvent(m.UserID, change.Previous, change.Current, tx.Now))
		}
		if change.Broken() {
			tx.Emit(shared.NewStreakBrokenEvent(m.UserID, change.Previous, change.DaysMissed, tx.Now))
		}
	}

	// Step 3: Command-specific writes and XP
	if m.Apply != nil {
		if err := m.Apply(ctx, tx); err != nil {
			return fail(StepApplyCommand, err)
		}
	}

	// Step 4: Achievements, awarded as one batched delta.
	// A failed evaluation means no unlocks this time; XP and streak still commit.
	if f.enableAchievements && !m.SkipAchievements {
		unlocked, err := f.evaluate(ctx, tx)
		switch {
		case err == nil:
			result.Unlocked = unlocked
		case shared.IsPersistenceConflict(err):
			return fail(StepEvaluate, err)
		default:
			f.logger.Warn("achievement evaluation failed, continuing without unlocks",
				"op", m.Op,
				"user_id", m.UserID,
				"error", err,
			)
		}
	}

	// Step 5: Feed
	if len(tx.entries) > 0 {
		if err := uow.Activity().AppendEntries(ctx, tx.entries...); err != nil {
			return fail(StepAppendFeed, err)
		}
	}

	// Step 6: Save with version check
	if tx.Record.Level != loaded.Level {
		result.LevelChange = &progress.LevelChange{From: loaded.Level, To: tx.Record.Level}
		tx.Emit(shared.NewLevelUpEvent(m.UserID, string(loaded.Level), string(tx.Record.Level), tx.Record.TotalXP.Int(), tx.Now))
	}
	tx.Record.UpdatedAt = tx.Now
	if err := uow.Records().Save(ctx, &tx.Record); err != nil {
		return fail(StepSaveRecord, err)
	}

	// Step 7: Commit
	if err := uow.Commit(ctx); err != nil {
		return fail(StepCommit, err)
	}

	result.Record = tx.Record
	result.XPGained = tx.xp
	result.Events = tx.events
	return result, nil
}

// evaluate checks the rules against a fresh snapshot and awards new unlocks.
// Reads and inserts run under a savepoint; tx is only changed on success.
func (f *ProgressFlow) evaluate(ctx context.Context, tx *FlowTx) ([]progress.Unlock, error) {
	var (
		ev  progress.Evaluation
		rec progress.Record
	)
	err := progress.WithSavepoint(ctx, tx.UoW, func(uow progress.UnitOfWork) error {
		stats, err := f.snapshot(ctx, uow, tx.Record)
		if err != nil {
			return err
		}
		ev = f.engine.Evaluate(stats, tx.Record.Achievements, tx.Now)
		if !ev.HasUnlocks() {
			return nil
		}
		if rec, _, err = f.ledger.Award(tx.Record, ev); err != nil {
			return err
		}
		return uow.Achievements().Insert(ctx, tx.Record.UserID, ev.Unlocked)
	})
	if err != nil || !ev.HasUnlocks() {
		return nil, err
	}

	tx.Record = rec
	tx.xp += ev.TotalXP
	tx.Emit(shared.NewXPGainedEvent(rec.UserID, ev.TotalXP, rec.TotalXP.Int(), string(progress.SourceAchievement), "", tx.Now))

	for _, u := range ev.Unlocked {
		tx.AppendEntry(activity.KindAchievement, string(u.ID), u.Name, u.XPReward)
		tx.Emit(shared.NewAchievementUnlockedEvent(rec.UserID, string(u.ID), u.Name, string(u.Category), u.XPReward, tx.Now))
	}
	return ev.Unlocked, nil
}

// snapshot builds the statistics the rules read.
func (f *ProgressFlow) snapshot(ctx context.Context, uow progress.UnitOfWork, rec progress.Record) (progress.Stats, error) {
	stats := progress.NewStats(rec.UserID)
	if f.enableStreaks {
		stats = stats.With(progress.StatStreak, rec.Streak)
	}

	sum, err := uow.Activity().StorySummary(ctx, rec.UserID)
	if err != nil {
		return stats, fmt.Errorf("load story summary: %w", err)
	}
	return StoryStats(stats, sum), nil
}

// StoryStats adds story counters to a statistics snapshot.
func StoryStats(stats progress.Stats, sum activity.StorySummary) progress.Stats {
	return stats.
		With(progress.StatCompletedStories, sum.Completed).
		With(progress.StatPerfectStories, sum.Perfect).
		With(progress.StatFastAccurateStories, sum.FastAccurate).
		With(progress.StatNoTranslation, sum.WithoutTranslation)
}

// publish sends committed events; failures are logged, not returned.
func (f *ProgressFlow) publish(events []shared.Event) {
	if f.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := f.publisher.Publish(ev); err != nil {
			f.logger.Error("failed to publish event", "event_type", ev.EventType(), "error", err)
		}
	}
}

func (f *ProgressFlow) observe(op string, err error, start time.Time) {
	if f.observer != nil {
		f.observer.ObserveFlow(op, err, time.Since(start))
	}
}

// IsStep reports whether err failed at the given step.
func IsStep(err error, step FlowStep) bool {
	var se *StepError
	return errors.As(err, &se) && se.Step == step
}
