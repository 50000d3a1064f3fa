package enrollment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillforge/lms-backend/internal/domain/course"
)

var t0 = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestEnrollment(t *testing.T) *Enrollment {
	t.Helper()
	e, err := NewEnrollment(NewEnrollmentParams{
		ID:        "enr-1",
		StudentID: "64a1b2c3d4e5f60718293a4b",
		CourseID:  "64ffeeddccbbaa0099887766",
		Now:       t0,
	})
	require.NoError(t, err)
	return e
}

func quizOf(n int) []course.QuizQuestion {
	qs := make([]course.QuizQuestion, n)
	for i := range qs {
		qs[i] = course.QuizQuestion{Prompt: "q", Options: []string{"a", "b", "c"}, CorrectOptionIndex: i % 3}
	}
	return qs
}

func items(n int) []course.PracticeItem {
	return make([]course.PracticeItem, n)
}

// singleQuizCourse: 1 модуль, 0 упражнений, 0 активностей, 2 вопроса.
func singleQuizCourse() *course.Course {
	return &course.Course{
		ID:      "64ffeeddccbbaa0099887766",
		Title:   "Quiz only",
		Modules: []course.Module{{ID: "m1", Title: "M1", Quiz: quizOf(2)}},
	}
}

// mixedCourse: m1 (3 упр., 2 акт., квиз), m2 (только чекбокс).
func mixedCourse() *course.Course {
	return &course.Course{
		ID:    "64ffeeddccbbaa0099887766",
		Title: "Mixed",
		Modules: []course.Module{
			{ID: "m1", Title: "M1", Exercises: items(3), Activities: items(2), Quiz: quizOf(3)},
			{ID: "m2", Title: "M2"},
		},
	}
}

func completeAll(t *testing.T, c *course.Course, e *Enrollment) {
	t.Helper()
	for i := range c.Modules {
		m := &c.Modules[i]
		e.MarkModule(m.ID, true, t0)
		for j := 0; j < m.ExerciseCount(); j++ {
			_, err := e.SetPracticeItem(ItemExercise, m.ID, j, true, t0)
			require.NoError(t, err)
		}
		for j := 0; j < m.ActivityCount(); j++ {
			_, err := e.SetPracticeItem(ItemActivity, m.ID, j, true, t0)
			require.NoError(t, err)
		}
		if m.HasQuiz() {
			answers := make([]int, m.QuizLength())
			for k, q := range m.Quiz {
				answers[k] = q.CorrectOptionIndex
			}
			g, err := GradeQuiz(m, answers)
			require.NoError(t, err)
			e.ApplyGrade(m.ID, g, t0)
		}
	}
}
