// Package memory implements the progress storage contracts in process memory.
// A unit of work takes the store lock, works on a private copy of the data
// and swaps it in on Commit, so a rolled back unit leaves nothing behind.
package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/goal"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// ErrTxDone is returned when a finished unit of work is used.
var ErrTxDone = errors.New("memory: unit of work already finished")

type state struct {
	records      map[string]progress.Record
	achievements map[string]progress.AchievementSet
	stories      map[string]map[string]activity.StoryResult
	practice     map[string][]activity.PracticeResult
	entries      map[string][]activity.Entry
	goals        map[string]*goal.Goal
}

func newState() *state {
	return &state{
		records:      make(map[string]progress.Record),
		achievements: make(map[string]progress.AchievementSet),
		stories:      make(map[string]map[string]activity.StoryResult),
		practice:     make(map[string][]activity.PracticeResult),
		entries:      make(map[string][]activity.Entry),
		goals:        make(map[string]*goal.Goal),
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.records {
		out.records[k] = v.Clone()
	}
	for k, v := range s.achievements {
		out.achievements[k] = v.Clone()
	}
	for k, v := range s.stories {
		m := make(map[string]activity.StoryResult, len(v))
		for id, r := range v {
			m[id] = r
		}
		out.stories[k] = m
	}
	for k, v := range s.practice {
		out.practice[k] = append([]activity.PracticeResult(nil), v...)
	}
	for k, v := range s.entries {
		out.entries[k] = append([]activity.Entry(nil), v...)
	}
	for k, v := range s.goals {
		g := *v
		out.goals[k] = &g
	}
	return out
}

// Store is an in-memory UnitOfWorkFactory.
type Store struct {
	sem   chan struct{}
	state *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sem: make(chan struct{}, 1), state: newState()}
}

// Begin implements progress.UnitOfWorkFactory. It blocks while another
// unit of work is open.
func (s *Store) Begin(ctx context.Context) (progress.UnitOfWork, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &unitOfWork{store: s, work: s.state.clone()}, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Close releases nothing.
func (s *Store) Close() error {
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

type unitOfWork struct {
	store *Store
	work  *state
	done  bool
}

func (u *unitOfWork) Records() progress.RecordRepository           { return recordRepo{u} }
func (u *unitOfWork) Achievements() progress.AchievementRepository { return achievementRepo{u} }
func (u *unitOfWork) Activity() activity.Repository                { return activityRepo{u} }
func (u *unitOfWork) Goals() goal.Repository                       { return goalRepo{u} }

func (u *unitOfWork) Commit(context.Context) error {
	if u.done {
		return ErrTxDone
	}
	u.store.state = u.work
	u.finish()
	return nil
}

func (u *unitOfWork) Rollback(context.Context) error {
	if u.done {
		return nil
	}
	u.finish()
	return nil
}

func (u *unitOfWork) finish() {
	u.done = true
	u.work = nil
	<-u.store.sem
}

func (u *unitOfWork) data() (*state, error) {
	if u.done {
		return nil, ErrTxDone
	}
	return u.work, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORDS
// ══════════════════════════════════════════════════════════════════════════════

type recordRepo struct{ u *unitOfWork }

func (r recordRepo) Create(_ context.Context, rec progress.Record) error {
	st, err := r.u.data()
	if err != nil {
		return err
	}
	if _, ok := st.records[rec.UserID]; ok {
		return shared.ErrProgressAlreadyExists
	}
	rec = rec.Clone()
	rec.Version = 1
	rec.Achievements = nil
	st.records[rec.UserID] = rec
	return nil
}

func (r recordRepo) Get(_ context.Context, userID string) (*progress.Record, error) {
	st, err := r.u.data()
	if err != nil {
		return nil, err
	}
	rec, ok := st.records[userID]
	if !ok {
		return nil, shared.ErrProgressNotFound
	}
	out := rec.Clone()
	out.Achievements = st.achievements[userID].Clone()
	return &out, nil
}

// GetForUpdate is Get: the store lock already serializes units of work.
func (r recordRepo) GetForUpdate(ctx context.Context, userID string) (*progress.Record, error) {
	return r.Get(ctx, userID)
}

func (r recordRepo) Save(_ context.Context, rec *progress.Record) error {
	st, err := r.u.data()
	if err != nil {
		return err
	}
	cur, ok := st.records[rec.UserID]
	if !ok {
		return shared.ErrProgressNotFound
	}
	if cur.Version != rec.Version {
		return shared.ErrRecordConflict
	}

	saved := rec.Clone()
	saved.Achievements = nil
	saved.Version = rec.Version + 1
	st.records[rec.UserID] = saved
	rec.Version = saved.Version
	return nil
}

func (r recordRepo) ListStaleStreaks(_ context.Context, before time.Time, limit int) ([]string, error) {
	st, err := r.u.data()
	if err != nil {
		return nil, err
	}
	var out []string
	for id, rec := range st.records {
		if rec.Streak > 0 && rec.LastActivityDate.Before(before) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r recordRepo) List(_ context.Context, p shared.Pagination) ([]*progress.Record, error) {
	st, err := r.u.data()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(st.records))
	for id := range st.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	ids = page(ids, p.Limit(), p.Offset())

	out := make([]*progress.Record, 0, len(ids))
	for _, id := range ids {
		rec := st.records[id].Clone()
		rec.Achievements = st.achievements[id].Clone()
		out = append(out, &rec)
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

type achievementRepo struct{ u *unitOfWork }

func (r achievementRepo) Insert(_ context.Context, userID string, unlocks []progress.Unlock) error {
	st, err := r.u.data()
	if err != nil {
		return err
	}
	set := st.achievements[userID]
	if set == nil {
		set = progress.AchievementSet{}
	}
	for _, u := range unlocks {
		if set.Has(u.ID) {
			return shared.ErrAchievementConflict
		}
		set[u.ID] = u
	}
	st.achievements[userID] = set
	return nil
}

func (r achievementRepo) List(_ context.Context, userID string) (progress.AchievementSet, error) {
	st, err := r.u.data()
	if err != nil {
		return nil, err
	}
	return st.achievements[userID].Clone(), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY
// ══════════════════════════════════════════════════════════════════════════════

type activityRepo struct{ u *unitOfWork }

func (r activityRepo) UpsertStoryResult(_ context.Context, res *activity.StoryResult) error {
	st, err := r.u.data()
	if err != nil {
		return err
	}
	byStory := st.stories[res.UserID]
	if byStory == nil {
		byStory = make(map[string]activity.StoryResult)
		st.stories[res.UserID] = byStory
	}
	res.Attempts = byStory[res.StoryID].Attempts + 1
	byStory[res.StoryID] = *res
	return nil
}

func (r activityRepo) SavePracticeResult(_ context.Context, res *activity.PracticeResult) error {
	st, err := r.u.data()
	if err != nil {
		return err
	}
	cp := *res
	cp.Mistakes = append([]string(nil), res.Mistakes...)
	st.practice[res.UserID] = append(st.practice[res.UserID], cp)
	return nil
}

func (r activityRepo) AppendEntries(_ context.Context, entries ...activity.Entry) error {
	st, err := r.u.data()
	if err != nil {
		return err
	}
	for _, e := range entries {
		st.entries[e.UserID] = append(st.entries[e.UserID], e)
	}
	return nil
}

func (r activityRepo) RecentEntries(_ context.Context, userID string, limit int) ([]activity.Entry, error) {
	st, err := r.u.data()
	if err != nil {
		return nil, err
	}
	all := st.entries[userID]
	out := make([]activity.Entry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return page(out, limit, 0), nil
}

func (r activityRepo) StorySummary(_ context.Context, userID string) (activity.StorySummary, error) {
	st, err := r.u.data()
	if err != nil {
		return activity.StorySummary{}, err
	}
	results := make([]activity.StoryResult, 0, len(st.stories[userID]))
	for _, res := range st.stories[userID] {
		results = append(results, res)
	}
	return activity.SummarizeStories(results), nil
}

func (r activityRepo) PracticeSummary(_ context.Context, userID string) (activity.PracticeSummary, error) {
	st, err := r.u.data()
	if err != nil {
		return activity.PracticeSummary{}, err
	}
	var sum activity.PracticeSummary
	for _, res := range st.practice[userID] {
		sum.Count++
		sum.TotalTimeSpent += res.TimeSpent
	}
	return sum, nil
}

func (r activityRepo) PracticeHistory(_ context.Context, userID string, limit int) ([]activity.PracticeResult, error) {
	st, err := r.u.data()
	if err != nil {
		return nil, err
	}
	all := st.practice[userID]
	out := make([]activity.PracticeResult, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return page(out, limit, 0), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GOALS
// ══════════════════════════════════════════════════════════════════════════════

type goalRepo struct{ u *unitOfWork }

func (r goalRepo) Create(_ context.Context, g *goal.Goal) error {
	st, err := r.u.data()
	if err != nil {
		return err
	}
	if _, ok := st.goals[g.ID]; ok {
		return shared.NewDomainError("goal", "Create", shared.ErrAlreadyExists, "goal already exists")
	}
	cp := *g
	st.goals[g.ID] = &cp
	return nil
}

func (r goalRepo) GetForUpdate(_ context.Context, userID, goalID string) (*goal.Goal, error) {
	st, err := r.u.data()
	if err != nil {
		return nil, err
	}
	g, ok := st.goals[goalID]
	if !ok || g.UserID != userID {
		return nil, shared.ErrGoalNotFound
	}
	cp := *g
	return &cp, nil
}

func (r goalRepo) Update(_ context.Context, g *goal.Goal) error {
	st, err := r.u.data()
	if err != nil {
		return err
	}
	if _, ok := st.goals[g.ID]; !ok {
		return shared.ErrGoalNotFound
	}
	cp := *g
	st.goals[g.ID] = &cp
	return nil
}

func (r goalRepo) ListByUser(_ context.Context, userID string) ([]*goal.Goal, error) {
	st, err := r.u.data()
	if err != nil {
		return nil, err
	}
	var out []*goal.Goal
	for _, g := range st.goals {
		if g.UserID == userID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r goalRepo) CountActive(_ context.Context, userID string, now time.Time) (int, error) {
	st, err := r.u.data()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, g := range st.goals {
		if g.UserID == userID && g.IsActive(now) {
			n++
		}
	}
	return n, nil
}

func (r goalRepo) ListOverdue(_ context.Context, now time.Time, limit int) ([]*goal.Goal, error) {
	st, err := r.u.data()
	if err != nil {
		return nil, err
	}
	var out []*goal.Goal
	for _, g := range st.goals {
		if g.IsOverdue(now) {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return page(out, limit, 0), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
