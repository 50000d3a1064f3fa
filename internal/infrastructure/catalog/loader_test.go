package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/lms-backend/internal/domain/course"
	"github.com/skillforge/lms-backend/internal/domain/shared"
)

const goCourse = `
id: go-101
title: Go 101
level: beginner
instructor_id: inst-1
published: true
modules:
  - id: m1
    title: Basics
    video_url: https://example.com/v1
    exercises:
      - title: Hello
      - title: Loops
    activities:
      - title: Discussion
    quiz:
      - prompt: "2 + 2?"
        options: ["3", "4"]
        correct_option_index: 1
  - id: m2
    title: Wrap-up
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

type memRepo struct {
	saved map[string]*course.Course
}

func (m *memRepo) GetByID(_ context.Context, id string) (*course.Course, error) {
	c, ok := m.saved[id]
	if !ok {
		return nil, shared.ErrCourseNotFound
	}
	return c, nil
}

func (m *memRepo) Save(_ context.Context, c *course.Course) error {
	m.saved[c.ID] = c
	return nil
}

func (m *memRepo) List(context.Context, course.ListOptions) ([]*course.Course, error) {
	return nil, nil
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "go/go-101.course.yaml", goCourse)
	writeFile(t, dir, "notes.yaml", "id: ignored\n")
	writeFile(t, dir, "broken.course.yaml", "id: [unterminated\n")

	courses, err := NewLoader(dir, nil).Load()
	require.NoError(t, err)
	require.Len(t, courses, 1)

	c := courses[0]
	assert.Equal(t, "go-101", c.ID)
	assert.True(t, c.IsPublished)
	assert.Equal(t, "inst-1", c.InstructorID)
	assert.Equal(t, []string{"m1", "m2"}, c.ModuleIDs())

	m1, ok := c.ModuleByID("m1")
	require.True(t, ok)
	assert.Equal(t, 2, m1.ExerciseCount())
	assert.Equal(t, 1, m1.ActivityCount())
	assert.Equal(t, 1, m1.Quiz[0].CorrectOptionIndex)
	assert.Equal(t, "https://example.com/v1", m1.VideoURL)
	assert.Equal(t, 6, c.TotalItems())
}

func TestLoader_RejectsInvalidCourse(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.course.yaml", `
id: bad
title: Bad
modules:
  - id: m1
    title: Only
    quiz:
      - prompt: "?"
        options: ["a", "b"]
        correct_option_index: 5
`)

	_, err := NewLoader(dir, nil).Load()
	assert.ErrorIs(t, err, shared.ErrInvalidCourse)
}

func TestLoader_RejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.course.yaml", goCourse)
	writeFile(t, dir, "b.course.yaml", goCourse)

	_, err := NewLoader(dir, nil).Load()
	assert.ErrorContains(t, err, "defined in both")
}

func TestLoader_Seed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "go-101.course.yaml", goCourse)

	repo := &memRepo{saved: map[string]*course.Course{}}
	var hooked []string
	loader := NewLoader(dir, nil).
		AfterSave(func(_ context.Context, c *course.Course) error {
			hooked = append(hooked, c.ID)
			return nil
		}).
		AfterSave(func(context.Context, *course.Course) error {
			return errors.New("cache down")
		})
	n, err := loader.Seed(context.Background(), repo)
	require.NoError(t, err, "hook failures only log")
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"go-101"}, hooked)

	got, err := repo.GetByID(context.Background(), "go-101")
	require.NoError(t, err)
	assert.Equal(t, "Go 101", got.Title)
}
