// Package course содержит доменную модель курса: упорядоченный список модулей,
// в каждом из которых есть упражнения, активности и необязательный квиз.
// Движок прогресса читает курс только на чтение.
package course

import (
	"fmt"
	"strings"
	"time"

	"github.com/skillforge/lms-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Level определяет сложность курса.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// IsValid проверяет, что уровень корректен.
func (l Level) IsValid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MODULE
// ══════════════════════════════════════════════════════════════════════════════

// PracticeItem - упражнение или активность внутри модуля.
// Для прогресса важна только позиция элемента в списке.
type PracticeItem struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// QuizQuestion - вопрос квиза с вариантами ответа.
type QuizQuestion struct {
	Prompt             string   `json:"prompt" yaml:"prompt"`
	Options            []string `json:"options" yaml:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex,omitempty" yaml:"correct_option_index"`
}

// Module - единица курса.
type Module struct {
	ID              string         `json:"id" yaml:"id"`
	Title           string         `json:"title" yaml:"title"`
	Content         string         `json:"content,omitempty" yaml:"content,omitempty"`
	VideoURL        string         `json:"videoUrl,omitempty" yaml:"video_url,omitempty"`
	DurationMinutes int            `json:"duration,omitempty" yaml:"duration,omitempty"`
	Exercises       []PracticeItem `json:"exercises" yaml:"exercises"`
	Activities      []PracticeItem `json:"activities" yaml:"activities"`
	Quiz            []QuizQuestion `json:"quiz" yaml:"quiz"`
}

// ExerciseCount возвращает количество упражнений.
func (m *Module) ExerciseCount() int {
	return len(m.Exercises)
}

// ActivityCount возвращает количество активностей.
func (m *Module) ActivityCount() int {
	return len(m.Activities)
}

// HasQuiz возвращает true, если в модуле есть хотя бы один вопрос.
func (m *Module) HasQuiz() bool {
	return len(m.Quiz) > 0
}

// QuizLength возвращает количество вопросов квиза.
func (m *Module) QuizLength() int {
	return len(m.Quiz)
}

// ItemCount возвращает вес модуля в "пунктах" прогресса:
// чекбокс прочтения + упражнения + активности + квиз (если есть).
func (m *Module) ItemCount() int {
	n := 1 + len(m.Exercises) + len(m.Activities)
	if m.HasQuiz() {
		n++
	}
	return n
}

// Validate проверяет структуру модуля.
func (m *Module) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("%w: module id is required", shared.ErrInvalidCourse)
	}
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("%w: module %q has no title", shared.ErrInvalidCourse, m.ID)
	}
	for i, q := range m.Quiz {
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: module %q question %d needs at least two options", shared.ErrInvalidCourse, m.ID, i)
		}
		if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(q.Options) {
			return fmt.Errorf("%w: module %q question %d has out-of-range correct option", shared.ErrInvalidCourse, m.ID, i)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: COURSE
// ══════════════════════════════════════════════════════════════════════════════

// Course - курс с упорядоченным списком модулей.
type Course struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Category     string    `json:"category,omitempty"`
	Level        Level     `json:"level,omitempty"`
	InstructorID string    `json:"instructorId,omitempty"`
	IsPublished  bool      `json:"isPublished"`
	Modules      []Module  `json:"modules"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ModuleByID ищет модуль по идентификатору.
func (c *Course) ModuleByID(id string) (*Module, bool) {
	for i := range c.Modules {
		if c.Modules[i].ID == id {
			return &c.Modules[i], true
		}
	}
	return nil, false
}

// RequireModule возвращает модуль или ErrModuleNotFound.
func (c *Course) RequireModule(id string) (*Module, error) {
	m, ok := c.ModuleByID(id)
	if !ok {
		return nil, shared.WrapError("course", "FindModule", shared.ErrNotFound,
			fmt.Sprintf("module %q not found in course %q", id, c.ID), shared.ErrModuleNotFound)
	}
	return m, nil
}

// ModuleIDs возвращает идентификаторы модулей в порядке курса.
func (c *Course) ModuleIDs() []string {
	ids := make([]string, len(c.Modules))
	for i := range c.Modules {
		ids[i] = c.Modules[i].ID
	}
	return ids
}

// TotalItems возвращает общее количество пунктов прогресса в курсе.
func (c *Course) TotalItems() int {
	total := 0
	for i := range c.Modules {
		total += c.Modules[i].ItemCount()
	}
	return total
}

// ForLearner возвращает копию курса, в которой скрыты правильные ответы квизов.
// Нулевой индекс не сериализуется, поэтому ответы не попадают в JSON.
func (c *Course) ForLearner() *Course {
	out := *c
	out.Modules = make([]Module, len(c.Modules))
	for i, m := range c.Modules {
		quiz := make([]QuizQuestion, len(m.Quiz))
		for j, q := range m.Quiz {
			quiz[j] = QuizQuestion{Prompt: q.Prompt, Options: append([]string(nil), q.Options...)}
		}
		m.Quiz = quiz
		out.Modules[i] = m
	}
	return &out
}

// Validate проверяет курс целиком: идентификатор, название, уникальность модулей.
func (c *Course) Validate() error {
	if _, err := shared.NewCourseID(c.ID); err != nil {
		return err
	}
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("%w: course %q has no title", shared.ErrInvalidCourse, c.ID)
	}
	if c.Level != "" && !c.Level.IsValid() {
		return fmt.Errorf("%w: unknown level %q", shared.ErrInvalidCourse, c.Level)
	}
	seen := make(map[string]struct{}, len(c.Modules))
	for i := range c.Modules {
		m := &c.Modules[i]
		if err := m.Validate(); err != nil {
			return err
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("%w: duplicate module id %q", shared.ErrInvalidCourse, m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}
