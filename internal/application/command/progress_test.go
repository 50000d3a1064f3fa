package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK MODULE COMPLETE
// ══════════════════════════════════════════════════════════════════════════════

func TestMarkModuleComplete_RecordsEntry(t *testing.T) {
	f := newFixture(t, fullCourse())
	f.enroll(t, testCourse)
	h := NewMarkModuleCompleteHandler(f.flow, f.entries, nil)
	ctx := context.Background()
	notes := "halfway"

	res, err := h.Handle(ctx, MarkModuleCompleteCommand{
		StudentID: testStudent, CourseID: testCourse, ModuleID: "m1",
		Status: "in-progress", TimeSpentMinutes: 15, Notes: &notes,
	})
	require.NoError(t, err)
	assert.False(t, res.Enrollment.IsModuleCompleted("m1"))
	assert.Equal(t, enrollment.EntryInProgress, res.Entry.Status)

	res, err = h.Handle(ctx, MarkModuleCompleteCommand{
		StudentID: testStudent, CourseID: testCourse, ModuleID: "m1", TimeSpentMinutes: 10,
	})
	require.NoError(t, err)
	assert.True(t, res.Enrollment.IsModuleCompleted("m1"))
	assert.Equal(t, 20, res.Evaluation.Percentage)

	entry, err := f.entries.Get(ctx, testStudent, testCourse, "m1")
	require.NoError(t, err)
	assert.Equal(t, enrollment.EntryCompleted, entry.Status)
	assert.Equal(t, 25, entry.TimeSpentMinutes)
	assert.Equal(t, "halfway", entry.Notes)
	require.NotNil(t, entry.CompletedAt)
}

func TestMarkModuleComplete_ExplicitFlag(t *testing.T) {
	f := newFixture(t, fullCourse())
	f.enroll(t, testCourse)
	h := NewMarkModuleCompleteHandler(f.flow, nil, nil)
	ctx := context.Background()

	_, err := h.Handle(ctx, MarkModuleCompleteCommand{StudentID: testStudent, CourseID: testCourse, ModuleID: "m1"})
	require.NoError(t, err)

	res, err := h.Handle(ctx, MarkModuleCompleteCommand{
		StudentID: testStudent, CourseID: testCourse, ModuleID: "m1", Completed: boolPtr(false),
	})
	require.NoError(t, err)
	assert.False(t, res.Enrollment.IsModuleCompleted("m1"))
	assert.Equal(t, 0, res.Evaluation.Percentage)
	assert.Nil(t, res.Entry)
}

func TestMarkModuleComplete_FailedSaveRecordsNoTime(t *testing.T) {
	f := newFixture(t, fullCourse())
	f.enroll(t, testCourse)
	h := NewMarkModuleCompleteHandler(f.flow, f.entries, nil)
	ctx := context.Background()
	cmd := MarkModuleCompleteCommand{StudentID: testStudent, CourseID: testCourse, ModuleID: "m1", TimeSpentMinutes: 10}

	f.saves.err = errors.New("certificate id taken")
	_, err := h.Handle(ctx, cmd)
	require.Error(t, err)
	_, err = f.entries.Get(ctx, testStudent, testCourse, "m1")
	assert.True(t, errors.Is(err, shared.ErrNotFound), "no entry before the enrollment is saved")

	f.saves.err = nil
	res, err := h.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Entry.TimeSpentMinutes)
	assert.True(t, f.stored(t, testCourse).IsModuleCompleted("m1"))
}

func TestMarkModuleComplete_Errors(t *testing.T) {
	f := newFixture(t, fullCourse())
	f.enroll(t, testCourse)
	h := NewMarkModuleCompleteHandler(f.flow, f.entries, nil)
	ctx := context.Background()

	_, err := h.Handle(ctx, MarkModuleCompleteCommand{StudentID: testStudent, CourseID: testCourse, ModuleID: "m9"})
	assert.True(t, errors.Is(err, shared.ErrModuleNotFound))

	_, err = h.Handle(ctx, MarkModuleCompleteCommand{StudentID: testStudent, CourseID: testCourse, ModuleID: "m1", Status: "paused"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, MarkModuleCompleteCommand{StudentID: testStudent, CourseID: testCourse, ModuleID: "m1", TimeSpentMinutes: -1})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, MarkModuleCompleteCommand{StudentID: "student-2", CourseID: testCourse, ModuleID: "m1"})
	assert.True(t, errors.Is(err, shared.ErrEnrollmentNotFound))
}

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE PRACTICE ITEM
// ══════════════════════════════════════════════════════════════════════════════

func TestTogglePracticeItem_RoundTrip(t *testing.T) {
	f := newFixture(t, fullCourse())
	f.enroll(t, testCourse)
	h := NewTogglePracticeItemHandler(f.flow, nil)
	ctx := context.Background()

	on, err := h.Handle(ctx, TogglePracticeItemCommand{
		StudentID: testStudent, CourseID: testCourse, ModuleID: "m1", ItemType: "exercise", ItemIndex: 1, Completed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, on.Evaluation.Percentage)

	off, err := h.Handle(ctx, TogglePracticeItemCommand{
		StudentID: testStudent, CourseID: testCourse, ModuleID: "m1", ItemType: "exercise", ItemIndex: 1, Completed: false,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, off.Evaluation.Percentage)
	assert.Empty(t, f.stored(t, testCourse).CompletedExercises)
}

func TestTogglePracticeItem_Validation(t *testing.T) {
	f := newFixture(t, fullCourse())
	f.enroll(t, testCourse)
	h := NewTogglePracticeItemHandler(f.flow, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  TogglePracticeItemCommand
		want error
	}{
		{"index past exercises", TogglePracticeItemCommand{ModuleID: "m1", ItemType: "exercise", ItemIndex: 2}, shared.ErrItemIndexOutOfRange},
		{"index past activities", TogglePracticeItemCommand{ModuleID: "m1", ItemType: "activity", ItemIndex: 1}, shared.ErrItemIndexOutOfRange},
		{"negative index", TogglePracticeItemCommand{ModuleID: "m1", ItemType: "activity", ItemIndex: -1}, shared.ErrItemIndexOutOfRange},
		{"unknown type", TogglePracticeItemCommand{ModuleID: "m1", ItemType: "video"}, shared.ErrInvalidItemType},
		{"unknown module", TogglePracticeItemCommand{ModuleID: "m2", ItemType: "exercise"}, shared.ErrModuleNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cmd.StudentID = testStudent
			tt.cmd.CourseID = testCourse
			_, err := h.Handle(ctx, tt.cmd)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
	assert.Empty(t, f.stored(t, testCourse).CompletedActivities)
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT QUIZ
// ══════════════════════════════════════════════════════════════════════════════

func TestSubmitQuiz_CompletesCourse(t *testing.T) {
	f := newFixture(t, fullCourse())
	f.enroll(t, testCourse)
	ctx := context.Background()

	mark := NewMarkModuleCompleteHandler(f.flow, nil, nil)
	toggle := NewTogglePracticeItemHandler(f.flow, nil)
	quiz := NewSubmitQuizHandler(f.flow, nil)

	_, err := mark.Handle(ctx, MarkModuleCompleteCommand{StudentID: testStudent, CourseID: testCourse, ModuleID: "m1"})
	require.NoError(t, err)
	for _, item := range []struct {
		kind  string
		index int
	}{{"exercise", 0}, {"exercise", 1}, {"activity", 0}} {
		_, err := toggle.Handle(ctx, TogglePracticeItemCommand{
			StudentID: testStudent, CourseID: testCourse, ModuleID: "m1", ItemType: item.kind, ItemIndex: item.index, Completed: true,
		})
		require.NoError(t, err)
	}

	failed, err := quiz.Handle(ctx, SubmitQuizCommand{
		StudentID: testStudent, CourseID: testCourse, ModuleID: "m1", Answers: []any{0, 0, 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, failed.Result.Score)
	assert.False(t, failed.Result.Passed)
	assert.Equal(t, 80, failed.Evaluation.Percentage)
	assert.Empty(t, failed.Enrollment.CertificateID)

	passed, err := quiz.Handle(ctx, SubmitQuizCommand{
		StudentID: testStudent, CourseID: testCourse, ModuleID: "m1", Answers: []any{"0", float64(1), 0},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, passed.Result.Score)
	assert.True(t, passed.Result.Passed)
	assert.Equal(t, 100, passed.Evaluation.Percentage)
	assert.Equal(t, enrollment.StatusCompleted, passed.Enrollment.Status)
	assert.NotEmpty(t, passed.Enrollment.CertificateID)
	assert.Len(t, passed.Enrollment.QuizResults, 1)

	assert.True(t, f.bus.has(shared.EventQuizSubmitted))
	assert.True(t, f.bus.has(shared.EventCertificateIssued))
}

func TestSubmitQuiz_Errors(t *testing.T) {
	c := fullCourse()
	c.Modules = append(c.Modules, c.Modules[0])
	c.Modules[1].ID = "m2"
	c.Modules[1].Quiz = nil
	f := newFixture(t, c)
	f.enroll(t, testCourse)
	h := NewSubmitQuizHandler(f.flow, nil)
	ctx := context.Background()

	_, err := h.Handle(ctx, SubmitQuizCommand{StudentID: testStudent, CourseID: testCourse, ModuleID: "m1", Answers: []any{0, 1}})
	assert.True(t, errors.Is(err, shared.ErrAnswerCountMismatch))

	_, err = h.Handle(ctx, SubmitQuizCommand{StudentID: testStudent, CourseID: testCourse, ModuleID: "m1", Answers: []any{0, "one", 1}})
	assert.True(t, errors.Is(err, shared.ErrInvalidAnswer))

	_, err = h.Handle(ctx, SubmitQuizCommand{StudentID: testStudent, CourseID: testCourse, ModuleID: "m2", Answers: []any{}})
	assert.True(t, errors.Is(err, shared.ErrModuleHasNoQuiz))

	_, err = h.Handle(ctx, SubmitQuizCommand{StudentID: testStudent, CourseID: testCourse, ModuleID: "m1"})
	assert.True(t, shared.IsValidation(err))

	assert.Empty(t, f.stored(t, testCourse).QuizResults)
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func TestUpdateProgress_OverridePersistsForEmptyCourse(t *testing.T) {
	f := newFixture(t, emptyCourse())
	f.enroll(t, "course-empty")
	h := NewUpdateProgressHandler(f.flow, nil)
	ctx := context.Background()

	res, err := h.Handle(ctx, UpdateProgressCommand{StudentID: testStudent, CourseID: "course-empty", Progress: intPtr(40)})
	require.NoError(t, err)
	assert.Equal(t, 40, res.Evaluation.Percentage)
	assert.Equal(t, 40, f.stored(t, "course-empty").CompletionPercentage)

	again, err := f.flow.Recompute(ctx, testStudent, "course-empty", "read")
	require.NoError(t, err)
	assert.Equal(t, 40, again.Enrollment.CompletionPercentage)
}

func TestUpdateProgress_LedgerWinsForCourseWithItems(t *testing.T) {
	f := newFixture(t, fullCourse())
	f.enroll(t, testCourse)
	h := NewUpdateProgressHandler(f.flow, nil)

	res, err := h.Handle(context.Background(), UpdateProgressCommand{
		StudentID: testStudent, CourseID: testCourse, Progress: intPtr(90), ModuleID: "m1", Completed: boolPtr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, 20, res.Evaluation.Percentage)
	assert.True(t, res.Enrollment.IsModuleCompleted("m1"))
}

func TestUpdateProgress_ModuleWithoutCompletedIsUnmarked(t *testing.T) {
	f := newFixture(t, fullCourse())
	f.enroll(t, testCourse)
	h := NewUpdateProgressHandler(f.flow, nil)
	ctx := context.Background()

	res, err := h.Handle(ctx, UpdateProgressCommand{StudentID: testStudent, CourseID: testCourse, ModuleID: "m1"})
	require.NoError(t, err)
	assert.False(t, res.Enrollment.IsModuleCompleted("m1"))

	_, err = h.Handle(ctx, UpdateProgressCommand{StudentID: testStudent, CourseID: testCourse, ModuleID: "m1", Completed: boolPtr(true)})
	require.NoError(t, err)
	res, err = h.Handle(ctx, UpdateProgressCommand{StudentID: testStudent, CourseID: testCourse, ModuleID: "m1"})
	require.NoError(t, err)
	assert.False(t, res.Enrollment.IsModuleCompleted("m1"))
	assert.Equal(t, 0, res.Evaluation.Percentage)
}

func TestUpdateProgress_Validation(t *testing.T) {
	f := newFixture(t, fullCourse())
	f.enroll(t, testCourse)
	h := NewUpdateProgressHandler(f.flow, nil)
	ctx := context.Background()

	_, err := h.Handle(ctx, UpdateProgressCommand{StudentID: testStudent, CourseID: testCourse})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, UpdateProgressCommand{StudentID: testStudent, CourseID: testCourse, Progress: intPtr(101)})
	assert.True(t, errors.Is(err, shared.ErrInvalidPercentage))
}

// ══════════════════════════════════════════════════════════════════════════════
// SET ENROLLMENT STATUS
// ══════════════════════════════════════════════════════════════════════════════

func TestSetEnrollmentStatus_DropAndReactivate(t *testing.T) {
	f := newFixture(t, emptyCourse(), fullCourse())
	f.enroll(t, testCourse)
	h := NewSetEnrollmentStatusHandler(f.flow, nil)
	ctx := context.Background()

	dropped, err := h.Handle(ctx, SetEnrollmentStatusCommand{
		ActorID: testInstructor, StudentID: testStudent, CourseID: testCourse, Status: "dropped",
	})
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusDropped, dropped.Enrollment.Status)
	assert.True(t, f.bus.has(shared.EventEnrollmentStatusChanged))

	// Progress made while dropped keeps the status.
	mark := NewMarkModuleCompleteHandler(f.flow, nil, nil)
	res, err := mark.Handle(ctx, MarkModuleCompleteCommand{StudentID: testStudent, CourseID: testCourse, ModuleID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusDropped, res.Enrollment.Status)

	active, err := h.Handle(ctx, SetEnrollmentStatusCommand{
		ActorID: "admin-1", ActorIsAdmin: true, StudentID: testStudent, CourseID: testCourse, Status: "active",
	})
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusActive, active.Enrollment.Status)
	assert.Equal(t, 20, active.Enrollment.CompletionPercentage)
}

func TestSetEnrollmentStatus_Rejections(t *testing.T) {
	f := newFixture(t, fullCourse())
	f.enroll(t, testCourse)
	h := NewSetEnrollmentStatusHandler(f.flow, nil)
	ctx := context.Background()

	_, err := h.Handle(ctx, SetEnrollmentStatusCommand{
		ActorID: "instructor-2", StudentID: testStudent, CourseID: testCourse, Status: "dropped",
	})
	assert.True(t, shared.IsForbidden(err))

	_, err = h.Handle(ctx, SetEnrollmentStatusCommand{
		ActorID: testInstructor, StudentID: testStudent, CourseID: testCourse, Status: "completed",
	})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, SetEnrollmentStatusCommand{
		ActorID: testInstructor, StudentID: testStudent, CourseID: testCourse, Status: "paused",
	})
	assert.True(t, errors.Is(err, shared.ErrInvalidStatus))

	assert.Equal(t, enrollment.StatusActive, f.stored(t, testCourse).Status)
}
