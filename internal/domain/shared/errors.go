// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")

	// Progress errors
	ErrInvalidDelta    = errors.New("invalid XP delta")
	ErrStatsIncomplete = errors.New("statistics snapshot incomplete")

	// State errors
	ErrInvalidState = errors.New("invalid state")
	ErrExpired      = errors.New("expired")

	// Concurrency errors
	ErrPersistenceConflict = errors.New("concurrent modification detected")
	ErrLockNotAcquired     = errors.New("lock not acquired")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "goal", "activity"
	Op      string // Operation that failed, e.g., "ApplyXP", "Tick"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Progress domain errors
var (
	ErrProgressNotFound      = NewDomainError("progress", "Find", ErrNotFound, "progress record not found")
	ErrProgressAlreadyExists = NewDomainError("progress", "Open", ErrAlreadyExists, "progress record already exists")
	ErrNegativeDelta         = NewDomainError("progress", "ApplyXP", ErrInvalidDelta, "XP delta cannot be negative")
	ErrDeltaOverflow         = NewDomainError("progress", "ApplyXP", ErrInvalidDelta, "XP delta overflows the XP ceiling")
	ErrInvalidScore          = NewDomainError("progress", "Validate", ErrInvalidDelta, "score must be between 0 and 100")
	ErrInvalidTimeSpent      = NewDomainError("progress", "Validate", ErrInvalidDelta, "time spent cannot be negative")
	ErrInvalidStoryPoints    = NewDomainError("progress", "Validate", ErrInvalidDelta, "story points cannot be negative")
	ErrRecordConflict        = NewDomainError("progress", "Save", ErrPersistenceConflict, "progress record was modified concurrently")
	ErrAchievementConflict   = NewDomainError("progress", "Unlock", ErrPersistenceConflict, "achievement already unlocked concurrently")
	ErrInvalidUserID         = NewDomainError("progress", "Validate", ErrInvalidID, "invalid user ID")
)

// Goal domain errors
var (
	ErrGoalNotFound      = NewDomainError("goal", "Find", ErrNotFound, "goal not found")
	ErrInvalidGoalType   = NewDomainError("goal", "Validate", ErrInvalidInput, "invalid goal type")
	ErrInvalidGoalTarget = NewDomainError("goal", "Validate", ErrValueOutOfRange, "goal target must be at least 1")
	ErrGoalEndInPast     = NewDomainError("goal", "Validate", ErrInvalidInput, "goal end date must be in the future")
	ErrGoalExpired       = NewDomainError("goal", "UpdateProgress", ErrExpired, "goal has expired")
	ErrNegativeProgress  = NewDomainError("goal", "UpdateProgress", ErrValueOutOfRange, "goal progress cannot be negative")
)

// Activity domain errors
var (
	ErrInvalidPracticeType = NewDomainError("activity", "Validate", ErrInvalidInput, "invalid practice type")
	ErrInvalidStoryID      = NewDomainError("activity", "Validate", ErrInvalidID, "invalid story ID")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidDelta)
}

// IsPersistenceConflict checks if the error signals a concurrent write.
func IsPersistenceConflict(err error) bool {
	return errors.Is(err, ErrPersistenceConflict)
}

// IsStatsIncomplete checks if an achievement rule was skipped for missing input.
func IsStatsIncomplete(err error) bool {
	return errors.Is(err, ErrStatsIncomplete)
}
