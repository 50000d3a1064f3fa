package enrollment

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/lms-backend/internal/domain/shared"
)

func TestNewEnrollment(t *testing.T) {
	e := newTestEnrollment(t)
	assert.Equal(t, 0, e.CompletionPercentage)
	assert.Equal(t, StatusActive, e.Status)
	assert.Equal(t, t0, e.EnrolledAt)
	assert.False(t, e.HasCertificate())

	_, err := NewEnrollment(NewEnrollmentParams{ID: "x", StudentID: "", CourseID: "c"})
	assert.True(t, shared.IsValidation(err))
	_, err = NewEnrollment(NewEnrollmentParams{StudentID: "s", CourseID: "c"})
	assert.True(t, shared.IsValidation(err))
}

func TestMarkModule_SetSemantics(t *testing.T) {
	e := newTestEnrollment(t)
	later := t0.Add(time.Minute)

	assert.True(t, e.MarkModule("m1", true, later))
	assert.False(t, e.MarkModule("m1", true, later))
	assert.Equal(t, []string{"m1"}, e.CompletedModuleIDs)
	assert.Equal(t, later, e.LastAccessed)

	assert.True(t, e.MarkModule("m1", false, later))
	assert.False(t, e.MarkModule("m1", false, later))
	assert.Empty(t, e.CompletedModuleIDs)
}

func TestSetPracticeItem(t *testing.T) {
	e := newTestEnrollment(t)

	changed, err := e.SetPracticeItem(ItemExercise, "m1", 0, true, t0)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = e.SetPracticeItem(ItemExercise, "m1", 0, true, t0)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, e.CompletedExercises, 1)
	assert.False(t, e.IsItemCompleted(ItemActivity, "m1", 0))

	_, err = e.SetPracticeItem(ItemActivity, "m1", -1, true, t0)
	assert.True(t, errors.Is(err, shared.ErrItemIndexOutOfRange))
	_, err = e.SetPracticeItem("video", "m1", 0, true, t0)
	assert.True(t, errors.Is(err, shared.ErrInvalidItemType))
}

func TestParseHelpers(t *testing.T) {
	kind, err := ParseItemType(" Activity ")
	require.NoError(t, err)
	assert.Equal(t, ItemActivity, kind)
	_, err = ParseItemType("lab")
	assert.True(t, shared.IsValidation(err))

	st, err := ParseStatus("DROPPED")
	require.NoError(t, err)
	assert.Equal(t, StatusDropped, st)
	_, err = ParseStatus("paused")
	assert.True(t, errors.Is(err, shared.ErrInvalidStatus))
}

func TestSetAdministrativeStatus(t *testing.T) {
	e := newTestEnrollment(t)

	_, err := e.SetAdministrativeStatus(StatusCompleted, t0)
	assert.True(t, errors.Is(err, shared.ErrInvalidStatus))

	changed, err := e.SetAdministrativeStatus(StatusActive, t0)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = e.SetAdministrativeStatus(StatusDropped, t0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, e.IsDropped())
}

func TestOverridePercentage(t *testing.T) {
	e := newTestEnrollment(t)
	require.NoError(t, e.OverridePercentage(55, t0))
	assert.Equal(t, 55, e.CompletionPercentage)

	err := e.OverridePercentage(101, t0)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, 55, e.CompletionPercentage)
}

func TestProgressEntryApply(t *testing.T) {
	p := NewProgressEntry("pe-1", "s", "c", "m1", t0)
	assert.Equal(t, EntryNotStarted, p.Status)

	notes := "halfway"
	p.Apply(EntryInProgress, 15, &notes, t0.Add(time.Minute))
	assert.Equal(t, EntryInProgress, p.Status)
	assert.Nil(t, p.CompletedAt)
	assert.Equal(t, 15, p.TimeSpentMinutes)

	p.Apply(EntryCompleted, 10, nil, t0.Add(2*time.Minute))
	require.NotNil(t, p.CompletedAt)
	assert.Equal(t, 25, p.TimeSpentMinutes)
	assert.Equal(t, "halfway", p.Notes)

	st, err := ParseEntryStatus("")
	require.NoError(t, err)
	assert.Equal(t, EntryCompleted, st)
	_, err = ParseEntryStatus("done")
	assert.Error(t, err)
}
