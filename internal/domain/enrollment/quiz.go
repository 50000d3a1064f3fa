package enrollment

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/skillforge/lms-backend/internal/domain/course"
	"github.com/skillforge/lms-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUIZ GRADER
// ══════════════════════════════════════════════════════════════════════════════

// Grade - результат проверки одной попытки.
type Grade struct {
	Score  int  `json:"score"`
	Total  int  `json:"total"`
	Passed bool `json:"passed"`
}

// PassThreshold возвращает минимальное число верных ответов: ceil(total * 0.7).
// Считается в целых числах, чтобы 10 * 0.7 не превратилось в 7.000000001.
func PassThreshold(total int) int {
	if total <= 0 {
		return 0
	}
	return (total*7 + 9) / 10
}

// GradeQuiz проверяет ответы против вопросов модуля.
func GradeQuiz(m *course.Module, answers []int) (Grade, error) {
	if m == nil || !m.HasQuiz() {
		return Grade{}, shared.ErrModuleHasNoQuiz
	}
	if len(answers) != m.QuizLength() {
		return Grade{}, shared.WrapError("quiz", "Grade", shared.ErrValidation,
			fmt.Sprintf("expected %d answers, got %d", m.QuizLength(), len(answers)), shared.ErrAnswerCountMismatch)
	}
	g := Grade{Total: m.QuizLength()}
	for i, q := range m.Quiz {
		if answers[i] == q.CorrectOptionIndex {
			g.Score++
		}
	}
	g.Passed = g.Score >= PassThreshold(g.Total)
	return g, nil
}

// ApplyGrade записывает попытку в журнал, заменяя предыдущую по этому модулю.
func (e *Enrollment) ApplyGrade(moduleID string, g Grade, now time.Time) QuizResult {
	r := QuizResult{
		ModuleID:    moduleID,
		Score:       g.Score,
		Total:       g.Total,
		Passed:      g.Passed,
		SubmittedAt: now.UTC(),
	}
	e.RecordQuizResult(r)
	return r
}

// ParseAnswers приводит ответы из внешнего ввода (числа или числовые строки)
// к индексам вариантов. Дробные и нечисловые значения отклоняются.
func ParseAnswers(raw []any) ([]int, error) {
	out := make([]int, len(raw))
	for i, v := range raw {
		n, ok := coerceIndex(v)
		if !ok {
			return nil, shared.WrapError("quiz", "ParseAnswers", shared.ErrInvalidFormat,
				fmt.Sprintf("answer %d: %v is not an integer", i, v), shared.ErrInvalidAnswer)
		}
		out[i] = n
	}
	return out, nil
}

func coerceIndex(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
			return 0, false
		}
		return int(x), true
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
