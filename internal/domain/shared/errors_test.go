package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_MatchesKind(t *testing.T) {
	err := fmt.Errorf("complete_story: %w", ErrNegativeDelta)

	assert.True(t, errors.Is(err, ErrInvalidDelta))
	assert.True(t, IsValidation(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, "complete_story: progress.ApplyXP: XP delta cannot be negative", err.Error())
}

func TestWrapError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("serialization failure")
	err := WrapError("progress", "Save", ErrPersistenceConflict, "record changed", cause)

	assert.True(t, IsPersistenceConflict(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "serialization failure")
}

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"progress not found", ErrProgressNotFound, IsNotFound},
		{"goal not found", ErrGoalNotFound, IsNotFound},
		{"already exists", ErrProgressAlreadyExists, IsAlreadyExists},
		{"goal target", ErrInvalidGoalTarget, IsValidation},
		{"practice type", ErrInvalidPracticeType, IsValidation},
		{"user id", ErrInvalidUserID, IsValidation},
		{"achievement conflict", ErrAchievementConflict, IsPersistenceConflict},
		{"stats", fmt.Errorf("rule streak_7: %w", ErrStatsIncomplete), IsStatsIncomplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.is(tt.err))
		})
	}
}

func TestGoalExpired_IsNotValidation(t *testing.T) {
	assert.ErrorIs(t, ErrGoalExpired, ErrExpired)
	assert.False(t, IsValidation(ErrGoalExpired))
}
