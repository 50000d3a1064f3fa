package shared

import (
	"regexp"
	"strings"
)

// Идентификаторы выдают внешние системы (авторизация, каталог курсов),
// поэтому проверяется только их форма: до 128 символов без пробелов.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

// StudentID - идентификатор учащегося (subject из JWT).
type StudentID string

func (s StudentID) IsValid() bool  { return idPattern.MatchString(string(s)) }
func (s StudentID) String() string { return string(s) }

// NewStudentID обрезает пробелы по краям и проверяет форму.
func NewStudentID(raw string) (StudentID, error) {
	id := StudentID(strings.TrimSpace(raw))
	if !id.IsValid() {
		return "", NewDomainError("shared", "NewStudentID", ErrInvalidID, "malformed student id")
	}
	return id, nil
}

// CourseID - идентификатор курса из каталога.
type CourseID string

func (c CourseID) IsValid() bool  { return idPattern.MatchString(string(c)) }
func (c CourseID) String() string { return string(c) }

func NewCourseID(raw string) (CourseID, error) {
	id := CourseID(strings.TrimSpace(raw))
	if !id.IsValid() {
		return "", NewDomainError("shared", "NewCourseID", ErrInvalidID, "malformed course id")
	}
	return id, nil
}

// Percentage - целый процент прохождения курса, всегда в [0, 100].
type Percentage int

const (
	MinPercentage Percentage = 0
	MaxPercentage Percentage = 100
)

func (p Percentage) IsValid() bool    { return p >= MinPercentage && p <= MaxPercentage }
func (p Percentage) Int() int         { return int(p) }
func (p Percentage) IsComplete() bool { return p == MaxPercentage }

// NewPercentage не исправляет значение, а отклоняет его: ручная установка
// прогресса вне диапазона - ошибка клиента.
func NewPercentage(v int) (Percentage, error) {
	if p := Percentage(v); p.IsValid() {
		return p, nil
	}
	return 0, ErrInvalidPercentage
}

// ClampPercentage прижимает произвольное число к [0, 100].
func ClampPercentage(v int) Percentage {
	switch {
	case v < int(MinPercentage):
		return MinPercentage
	case v > int(MaxPercentage):
		return MaxPercentage
	}
	return Percentage(v)
}

// PercentageOf считает done/total*100 с округлением половины вверх в целых
// числах: 199/200 даёт 100, 1/3 даёт 33. При total <= 0 результат 0.
func PercentageOf(done, total int) Percentage {
	if total <= 0 {
		return MinPercentage
	}
	if done < 0 {
		done = 0
	}
	return ClampPercentage((done*200 + total) / (2 * total))
}
