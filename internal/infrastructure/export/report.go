// Package export writes progress reports as xlsx workbooks.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
	"github.com/ivrit-hub/progress-hub/pkg/timeutil"
)

// Sheet names.
const (
	SheetProgress     = "Progress"
	SheetAchievements = "Achievements"
	SheetActivity     = "Activity"
)

// DefaultPageSize is the number of records read per transaction.
const DefaultPageSize = shared.MaxPageSize

var (
	progressHeader    = []any{"User", "Total XP", "Level", "To next level %", "Streak", "Last activity", "Achievements"}
	achievementHeader = []any{"User", "Achievement", "Name", "Category", "XP reward", "Unlocked at"}
	activityHeader    = []any{"User", "Kind", "Reference", "Title", "XP", "At"}
)

// Options selects what goes into the report.
type Options struct {
	// UserID limits the report to one user and adds the achievement and
	// activity sheets. Empty means every user.
	UserID string

	// ActivityLimit bounds the activity rows per user (default 50).
	ActivityLimit int
}

// Stats describes a written report.
type Stats struct {
	Users        int
	Achievements int
	Activities   int
}

// Reporter builds progress workbooks from the store.
type Reporter struct {
	uowFactory progress.UnitOfWorkFactory
	levels     progress.LevelTable
	clock      timeutil.Clock
	pageSize   int
	logger     *slog.Logger
}

// NewReporter creates a reporter. Dates are rendered in the clock zone.
func NewReporter(uowFactory progress.UnitOfWorkFactory, levels progress.LevelTable, clock timeutil.Clock, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		uowFactory: uowFactory,
		levels:     levels,
		clock:      clock,
		pageSize:   DefaultPageSize,
		logger:     logger.With("component", "export"),
	}
}

// Write renders the report and writes the xlsx bytes to w.
func (r *Reporter) Write(ctx context.Context, w io.Writer, opts Options) (Stats, error) {
	if opts.ActivityLimit <= 0 {
		opts.ActivityLimit = 50
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			r.logger.Warn("close workbook", "error", err)
		}
	}()

	book, err := newWorkbook(f)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	if opts.UserID != "" {
		stats, err = r.writeUser(ctx, book, opts)
	} else {
		stats, err = r.writeAll(ctx, book)
	}
	if err != nil {
		return Stats{}, err
	}

	if _, err := f.WriteTo(w); err != nil {
		return Stats{}, fmt.Errorf("write workbook: %w", err)
	}
	r.logger.Info("report written", "users", stats.Users, "achievements", stats.Achievements, "activities", stats.Activities)
	return stats, nil
}

func (r *Reporter) writeAll(ctx context.Context, book *workbook) (Stats, error) {
	var stats Stats
	for p := shared.NewPagination(1, r.pageSize); ; p.Page++ {
		recs, err := r.page(ctx, p)
		if err != nil {
			return Stats{}, err
		}
		for _, rec := range recs {
			if err := book.appendRow(SheetProgress, r.progressRow(rec)); err != nil {
				return Stats{}, err
			}
		}
		stats.Users += len(recs)
		if len(recs) < p.Limit() {
			return stats, nil
		}
	}
}

func (r *Reporter) page(ctx context.Context, p shared.Pagination) ([]*progress.Record, error) {
	uow, err := r.uowFactory.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer uow.Rollback(ctx)

	recs, err := uow.Records().List(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("list records page %d: %w", p.Page, err)
	}
	return recs, nil
}

func (r *Reporter) writeUser(ctx context.Context, book *workbook, opts Options) (Stats, error) {
	uow, err := r.uowFactory.Begin(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("begin: %w", err)
	}
	defer uow.Rollback(ctx)

	rec, err := uow.Records().Get(ctx, opts.UserID)
	if err != nil {
		return Stats{}, err
	}
	entries, err := uow.Activity().RecentEntries(ctx, opts.UserID, opts.ActivityLimit)
	if err != nil {
		return Stats{}, fmt.Errorf("recent activity: %w", err)
	}

	if err := book.appendRow(SheetProgress, r.progressRow(rec)); err != nil {
		return Stats{}, err
	}
	if err := book.addSheet(SheetAchievements, achievementHeader); err != nil {
		return Stats{}, err
	}
	for _, u := range rec.Achievements.List() {
		row := []any{rec.UserID, string(u.ID), u.Name, string(u.Category), u.XPReward, r.formatTime(u.UnlockedAt)}
		if err := book.appendRow(SheetAchievements, row); err != nil {
			return Stats{}, err
		}
	}
	if err := book.addSheet(SheetActivity, activityHeader); err != nil {
		return Stats{}, err
	}
	for _, e := range entries {
		if err := book.appendRow(SheetActivity, r.activityRow(e)); err != nil {
			return Stats{}, err
		}
	}

	return Stats{Users: 1, Achievements: rec.Achievements.Count(), Activities: len(entries)}, nil
}

func (r *Reporter) progressRow(rec *progress.Record) []any {
	last := ""
	if rec.HasActivity() {
		last = timeutil.FormatDateStr(rec.LastActivityDate, r.clock.Location())
	}
	return []any{
		rec.UserID,
		rec.TotalXP.Int(),
		rec.Level.String(),
		r.levels.ProgressToNext(rec.TotalXP, rec.Level),
		rec.Streak,
		last,
		rec.Achievements.Count(),
	}
}

func (r *Reporter) activityRow(e activity.Entry) []any {
	return []any{e.UserID, string(e.Kind), e.RefID, e.Title, e.XP, r.formatTime(e.OccurredAt)}
}

func (r *Reporter) formatTime(t time.Time) string {
	return t.In(r.clock.Location()).Format(timeutil.FormatDateTime)
}

// ══════════════════════════════════════════════════════════════════════════════
// WORKBOOK
// ══════════════════════════════════════════════════════════════════════════════

// workbook tracks the next free row of each sheet.
type workbook struct {
	f      *excelize.File
	header int
	next   map[string]int
}

func newWorkbook(f *excelize.File) (*workbook, error) {
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	b := &workbook{f: f, header: header, next: make(map[string]int)}
	if err := f.SetSheetName(f.GetSheetName(0), SheetProgress); err != nil {
		return nil, fmt.Errorf("rename default sheet: %w", err)
	}
	if err := b.writeHeader(SheetProgress, progressHeader); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *workbook) addSheet(name string, header []any) error {
	if _, err := b.f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	return b.writeHeader(name, header)
}

func (b *workbook) writeHeader(sheet string, header []any) error {
	if err := b.f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := b.f.SetCellStyle(sheet, "A1", last, b.header); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	lastCol, _, err := excelize.SplitCellName(last)
	if err != nil {
		return err
	}
	if err := b.f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return fmt.Errorf("size %s columns: %w", sheet, err)
	}
	b.next[sheet] = 2
	return nil
}

func (b *workbook) appendRow(sheet string, row []any) error {
	cell, err := excelize.CoordinatesToCellName(1, b.next[sheet])
	if err != nil {
		return err
	}
	if err := b.f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, b.next[sheet], err)
	}
	b.next[sheet]++
	return nil
}
