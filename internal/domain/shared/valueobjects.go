// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"math"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID identifies a learner. IDs are issued by the account service, so the
// format is opaque: letters, digits, dash and underscore.
type UserID string

var userIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// IsValid checks the user ID format.
func (u UserID) IsValid() bool {
	return userIDRegex.MatchString(string(u))
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.TrimSpace(id))
	if !uid.IsValid() {
		return "", ErrInvalidUserID
	}
	return uid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Score Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Score is a result percentage in [0,100].
type Score int

// PerfectScore is the maximum score.
const PerfectScore Score = 100

// IsValid checks the score range.
func (s Score) IsValid() bool {
	return s >= 0 && s <= PerfectScore
}

// IsPerfect reports a 100% result.
func (s Score) IsPerfect() bool {
	return s == PerfectScore
}

// NewScore creates a Score with validation.
func NewScore(v int) (Score, error) {
	s := Score(v)
	if !s.IsValid() {
		return 0, ErrInvalidScore
	}
	return s, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Percentage helpers
// ═══════════════════════════════════════════════════════════════════════════

// RoundPercent returns round(part/whole*100) clamped to [0,100].
// A non-positive whole yields 100 (nothing left to reach).
func RoundPercent(part, whole int) int {
	if whole <= 0 {
		return 100
	}
	return ClampPercent(int(math.Round(float64(part) / float64(whole) * 100)))
}

// ClampPercent clamps v to [0,100].
func ClampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Offset returns the offset for database queries.
func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NewPagination creates a new Pagination with defaults.
func NewPagination(page, pageSize int) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}
