package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillforge/lms-backend/internal/application/saga"
	"github.com/skillforge/lms-backend/internal/domain/course"
	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"
	"github.com/skillforge/lms-backend/internal/infrastructure/lock"
	"github.com/skillforge/lms-backend/internal/infrastructure/persistence/memory"
)

const (
	testStudent    = "student-1"
	testCourse     = "course-1"
	testInstructor = "instructor-1"
)

var testNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type recordingBus struct {
	mu     sync.Mutex
	events []shared.Event
}

func (b *recordingBus) Publish(e shared.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *recordingBus) has(t shared.EventType) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e.EventType() == t {
			return true
		}
	}
	return false
}

type fixture struct {
	courses     *memory.CourseRepository
	enrollments *memory.EnrollmentRepository
	entries     *memory.ProgressEntryRepository
	saves       *saveGate
	bus         *recordingBus
	flow        *saga.ProgressFlowSaga
}

// saveGate fails enrollment saves while err is set.
type saveGate struct {
	*memory.EnrollmentRepository
	err error
}

func (g *saveGate) Save(ctx context.Context, e *enrollment.Enrollment) error {
	if g.err != nil {
		return g.err
	}
	return g.EnrollmentRepository.Save(ctx, e)
}

func newFixture(t *testing.T, courses ...*course.Course) *fixture {
	t.Helper()
	f := &fixture{
		courses: memory.NewCourseRepository(),
		entries: memory.NewProgressEntryRepository(),
		bus:     &recordingBus{},
	}
	f.enrollments = memory.NewEnrollmentRepository(f.courses)
	f.saves = &saveGate{EnrollmentRepository: f.enrollments}
	for _, c := range courses {
		require.NoError(t, f.courses.Save(context.Background(), c))
	}
	f.flow = saga.NewProgressFlowSaga(saga.ProgressFlowDeps{
		Courses:     f.courses,
		Enrollments: f.saves,
		Locker:      lock.NewKeyedMutex(),
		Snapshots:   memory.NewSnapshotCache(),
		EventBus:    f.bus,
		Now:         func() time.Time { return testNow },
	})
	return f
}

func (f *fixture) enroll(t *testing.T, courseID string) *enrollment.Enrollment {
	t.Helper()
	e, err := enrollment.NewEnrollment(enrollment.NewEnrollmentParams{
		ID: "enr-" + courseID, StudentID: testStudent, CourseID: courseID, Now: testNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, f.enrollments.Create(context.Background(), e))
	return e
}

func (f *fixture) stored(t *testing.T, courseID string) *enrollment.Enrollment {
	t.Helper()
	e, err := f.enrollments.FindByStudentAndCourse(context.Background(), testStudent, courseID)
	require.NoError(t, err)
	return e
}

// fullCourse has one module with 2 exercises, 1 activity and a 3-question quiz.
func fullCourse() *course.Course {
	return &course.Course{
		ID:           testCourse,
		Title:        "Go basics",
		InstructorID: testInstructor,
		IsPublished:  true,
		Modules: []course.Module{{
			ID:         "m1",
			Title:      "Syntax",
			Exercises:  make([]course.PracticeItem, 2),
			Activities: make([]course.PracticeItem, 1),
			Quiz: []course.QuizQuestion{
				{Prompt: "1", Options: []string{"a", "b"}, CorrectOptionIndex: 0},
				{Prompt: "2", Options: []string{"a", "b"}, CorrectOptionIndex: 1},
				{Prompt: "3", Options: []string{"a", "b"}, CorrectOptionIndex: 0},
			},
		}},
	}
}

func emptyCourse() *course.Course {
	return &course.Course{ID: "course-empty", Title: "Placeholder", InstructorID: testInstructor, IsPublished: true}
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }
