package course

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/lms-backend/internal/domain/shared"
)

func sampleCourse() *Course {
	return &Course{
		ID:    "course-go-101",
		Title: "Go 101",
		Level: LevelBeginner,
		Modules: []Module{
			{ID: "m1", Title: "Intro"},
			{
				ID:         "m2",
				Title:      "Types",
				Exercises:  []PracticeItem{{Title: "e1"}, {Title: "e2"}},
				Activities: []PracticeItem{{Title: "a1"}},
				Quiz: []QuizQuestion{
					{Prompt: "q1", Options: []string{"a", "b"}, CorrectOptionIndex: 1},
				},
			},
		},
	}
}

func TestModuleCounts(t *testing.T) {
	c := sampleCourse()

	m1, ok := c.ModuleByID("m1")
	require.True(t, ok)
	assert.Equal(t, 0, m1.ExerciseCount())
	assert.False(t, m1.HasQuiz())
	assert.Equal(t, 1, m1.ItemCount())

	m2, ok := c.ModuleByID("m2")
	require.True(t, ok)
	assert.Equal(t, 2, m2.ExerciseCount())
	assert.Equal(t, 1, m2.ActivityCount())
	assert.Equal(t, 1, m2.QuizLength())
	assert.Equal(t, 5, m2.ItemCount())

	assert.Equal(t, 6, c.TotalItems())
	assert.Equal(t, []string{"m1", "m2"}, c.ModuleIDs())
}

func TestRequireModule(t *testing.T) {
	c := sampleCourse()

	_, err := c.RequireModule("missing")
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
	assert.True(t, errors.Is(err, shared.ErrModuleNotFound))

	m, err := c.RequireModule("m2")
	require.NoError(t, err)
	assert.Equal(t, "Types", m.Title)
}

func TestCourseValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Course)
		ok     bool
	}{
		{"valid", func(c *Course) {}, true},
		{"empty title", func(c *Course) { c.Title = " " }, false},
		{"bad level", func(c *Course) { c.Level = "expert" }, false},
		{"duplicate module", func(c *Course) { c.Modules[1].ID = "m1" }, false},
		{"single option", func(c *Course) { c.Modules[1].Quiz[0].Options = []string{"a"} }, false},
		{"correct index out of range", func(c *Course) { c.Modules[1].Quiz[0].CorrectOptionIndex = 2 }, false},
		{"no modules", func(c *Course) { c.Modules = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := sampleCourse()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestForLearnerHidesAnswers(t *testing.T) {
	c := sampleCourse()

	view := c.ForLearner()
	data, err := json.Marshal(view)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "correctOptionIndex")
	assert.Equal(t, 1, c.Modules[1].Quiz[0].CorrectOptionIndex, "original must be untouched")
	assert.Equal(t, c.TotalItems(), view.TotalItems())
}
