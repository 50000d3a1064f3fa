package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentageOf(t *testing.T) {
	tests := []struct {
		name        string
		done, total int
		want        Percentage
	}{
		{"zero total", 3, 0, 0},
		{"none done", 0, 4, 0},
		{"half", 1, 2, 50},
		{"one third rounds down", 1, 3, 33},
		{"two thirds rounds up", 2, 3, 67},
		{"exact half rounds up", 1, 8, 13},
		{"99.5 rounds up", 199, 200, 100},
		{"all", 7, 7, 100},
		{"overshoot clamps", 9, 7, 100},
		{"negative done", -1, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PercentageOf(tt.done, tt.total))
		})
	}
}

func TestNewPercentage(t *testing.T) {
	p, err := NewPercentage(42)
	require.NoError(t, err)
	assert.Equal(t, 42, p.Int())

	_, err = NewPercentage(101)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValueOutOfRange))
	assert.True(t, IsValidation(err))

	assert.Equal(t, MaxPercentage, ClampPercentage(250))
	assert.Equal(t, MinPercentage, ClampPercentage(-3))
	assert.True(t, Percentage(100).IsComplete())
}

func TestIDs(t *testing.T) {
	sid, err := NewStudentID("  64f1c0ffee  ")
	require.NoError(t, err)
	assert.Equal(t, "64f1c0ffee", sid.String())

	_, err = NewCourseID("")
	assert.True(t, IsValidation(err))

	_, err = NewCourseID("bad id with spaces")
	assert.True(t, errors.Is(err, ErrInvalidID))
}

func TestDomainErrorMatching(t *testing.T) {
	wrapped := WrapError("enrollment", "Load", ErrNotFound, "lookup failed", ErrEnrollmentNotFound)
	assert.True(t, IsNotFound(wrapped))
	assert.True(t, errors.Is(wrapped, ErrEnrollmentNotFound))
	assert.False(t, IsAlreadyExists(wrapped))

	assert.True(t, IsAlreadyExists(ErrEnrollmentExists))
	assert.True(t, IsValidation(ErrAnswerCountMismatch))
	assert.True(t, IsValidation(ErrInvalidAnswer))
	assert.True(t, IsRetryable(ErrLockNotAcquired))
	assert.True(t, IsConflict(ErrLockNotAcquired))
	assert.True(t, IsForbidden(ErrCourseNotPublished))
	assert.Contains(t, ErrModuleHasNoQuiz.Error(), "quiz.Grade")
}

func TestKindOf(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := WrapError("enrollment", "Save", ErrServiceUnavailable, "storage unavailable", cause)

	assert.Equal(t, KindUnavailable, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, cause))
	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, "storage unavailable", PublicMessage(fmt.Errorf("flow: %w", wrapped)))
	assert.Equal(t, "connection reset", PublicMessage(cause))

	assert.Equal(t, KindConflict, KindOf(ErrInvalidStatus))
	assert.Equal(t, KindInternal, KindOf(nil))
	assert.Equal(t, "validation_error", KindOf(ErrEmptyValue).String())
}
