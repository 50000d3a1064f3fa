// Package enrollment содержит доменную модель записи студента на курс:
// журнал выполненных пунктов, агрегатор прогресса, оценку квизов,
// машину состояний и выдачу сертификатов.
//
// Пакет не делает I/O и не держит блокировок. Вызывающий код обязан
// сериализовать изменения одной записи (student, course).
package enrollment

import (
	"fmt"
	"strings"
	"time"

	"github.com/skillforge/lms-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status определяет состояние записи на курс.
type Status string

const (
	// StatusActive - начальное состояние, студент проходит курс.
	StatusActive Status = "active"
	// StatusCompleted - прогресс достиг 100%.
	StatusCompleted Status = "completed"
	// StatusDropped - выставляется администратором, пересчёт его не меняет.
	StatusDropped Status = "dropped"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusDropped:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление статуса.
func (s Status) String() string {
	return string(s)
}

// ParseStatus разбирает статус из внешнего ввода.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", shared.WrapError("enrollment", "ParseStatus", shared.ErrInvalidInput,
			fmt.Sprintf("unknown status %q", raw), shared.ErrInvalidStatus)
	}
	return s, nil
}

// ItemType - тип практического элемента модуля.
type ItemType string

const (
	ItemExercise ItemType = "exercise"
	ItemActivity ItemType = "activity"
)

// ParseItemType разбирает тип элемента.
func ParseItemType(raw string) (ItemType, error) {
	switch t := ItemType(strings.ToLower(strings.TrimSpace(raw))); t {
	case ItemExercise, ItemActivity:
		return t, nil
	default:
		return "", shared.ErrInvalidItemType
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// CompletedExercise - отметка о выполненном упражнении.
type CompletedExercise struct {
	ModuleID      string    `json:"moduleId"`
	ExerciseIndex int       `json:"exerciseIndex"`
	CompletedAt   time.Time `json:"completedAt"`
}

// CompletedActivity - отметка о выполненной активности.
type CompletedActivity struct {
	ModuleID      string    `json:"moduleId"`
	ActivityIndex int       `json:"activityIndex"`
	CompletedAt   time.Time `json:"completedAt"`
}

// QuizResult - последняя попытка квиза по модулю. История не хранится.
type QuizResult struct {
	ModuleID    string    `json:"moduleId"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	Passed      bool      `json:"passed"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: ENROLLMENT
// ══════════════════════════════════════════════════════════════════════════════

// Enrollment - запись одного студента на один курс.
//
// Инварианты:
//   - 0 <= CompletionPercentage <= 100
//   - CertificateID и CertificateIssuedAt либо оба заданы, либо оба пусты
//   - после выдачи сертификата его поля не меняются
//   - в QuizResults не более одной записи на модуль
type Enrollment struct {
	ID        string `json:"id"`
	StudentID string `json:"studentId"`
	CourseID  string `json:"courseId"`

	CompletionPercentage int    `json:"completionPercentage"`
	Status               Status `json:"status"`

	CompletedModuleIDs  []string            `json:"completedModuleIds"`
	CompletedExercises  []CompletedExercise `json:"completedExercises"`
	CompletedActivities []CompletedActivity `json:"completedActivities"`
	QuizResults         []QuizResult        `json:"quizResults"`

	CertificateID       string     `json:"certificateId,omitempty"`
	CertificateIssuedAt *time.Time `json:"certificateIssuedAt,omitempty"`

	LastAccessed time.Time `json:"lastAccessed"`
	EnrolledAt   time.Time `json:"enrolledAt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewEnrollmentParams содержит параметры для создания записи.
type NewEnrollmentParams struct {
	ID        string
	StudentID string
	CourseID  string
	Now       time.Time
}

// NewEnrollment создаёт запись с прогрессом 0 и статусом active.
func NewEnrollment(p NewEnrollmentParams) (*Enrollment, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, shared.NewDomainError("enrollment", "New", shared.ErrInvalidID, "enrollment id is required")
	}
	if _, err := shared.NewStudentID(p.StudentID); err != nil {
		return nil, err
	}
	if _, err := shared.NewCourseID(p.CourseID); err != nil {
		return nil, err
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Enrollment{
		ID:                  p.ID,
		StudentID:           strings.TrimSpace(p.StudentID),
		CourseID:            strings.TrimSpace(p.CourseID),
		Status:              StatusActive,
		CompletedModuleIDs:  []string{},
		CompletedExercises:  []CompletedExercise{},
		CompletedActivities: []CompletedActivity{},
		QuizResults:         []QuizResult{},
		LastAccessed:        now,
		EnrolledAt:          now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// Touch обновляет LastAccessed. Вызывается при любой мутации.
func (e *Enrollment) Touch(now time.Time) {
	e.LastAccessed = now.UTC()
	e.UpdatedAt = e.LastAccessed
}

// HasCertificate возвращает true, если сертификат уже выдан.
func (e *Enrollment) HasCertificate() bool {
	return e.CertificateID != "" && e.CertificateIssuedAt != nil
}

// IsDropped возвращает true для отчисленной записи.
func (e *Enrollment) IsDropped() bool {
	return e.Status == StatusDropped
}

// ─────────────────────────────────────────────────────────────────────────────
// Module checkbox
// ─────────────────────────────────────────────────────────────────────────────

// IsModuleCompleted проверяет отметку прочтения модуля.
func (e *Enrollment) IsModuleCompleted(moduleID string) bool {
	for _, id := range e.CompletedModuleIDs {
		if id == moduleID {
			return true
		}
	}
	return false
}

// MarkModule ставит или снимает отметку прочтения модуля.
// Возвращает true, если журнал изменился.
func (e *Enrollment) MarkModule(moduleID string, completed bool, now time.Time) bool {
	e.Touch(now)
	if completed {
		if e.IsModuleCompleted(moduleID) {
			return false
		}
		e.CompletedModuleIDs = append(e.CompletedModuleIDs, moduleID)
		return true
	}
	kept := e.CompletedModuleIDs[:0]
	removed := false
	for _, id := range e.CompletedModuleIDs {
		if id == moduleID {
			removed = true
			continue
		}
		kept = append(kept, id)
	}
	e.CompletedModuleIDs = kept
	return removed
}

// ─────────────────────────────────────────────────────────────────────────────
// Practice items
// ─────────────────────────────────────────────────────────────────────────────

// IsItemCompleted проверяет отметку упражнения или активности.
func (e *Enrollment) IsItemCompleted(kind ItemType, moduleID string, index int) bool {
	switch kind {
	case ItemExercise:
		for _, x := range e.CompletedExercises {
			if x.ModuleID == moduleID && x.ExerciseIndex == index {
				return true
			}
		}
	case ItemActivity:
		for _, x := range e.CompletedActivities {
			if x.ModuleID == moduleID && x.ActivityIndex == index {
				return true
			}
		}
	}
	return false
}

// SetPracticeItem ставит или снимает отметку упражнения/активности.
// Индекс не проверяется на границы модуля: это делает вызывающий код,
// у которого есть структура курса. Повторная отметка ничего не меняет.
func (e *Enrollment) SetPracticeItem(kind ItemType, moduleID string, index int, completed bool, now time.Time) (bool, error) {
	if kind != ItemExercise && kind != ItemActivity {
		return false, shared.ErrInvalidItemType
	}
	if index < 0 {
		return false, shared.ErrItemIndexOutOfRange
	}
	e.Touch(now)

	if completed {
		if e.IsItemCompleted(kind, moduleID, index) {
			return false, nil
		}
		at := now.UTC()
		if kind == ItemExercise {
			e.CompletedExercises = append(e.CompletedExercises, CompletedExercise{ModuleID: moduleID, ExerciseIndex: index, CompletedAt: at})
		} else {
			e.CompletedActivities = append(e.CompletedActivities, CompletedActivity{ModuleID: moduleID, ActivityIndex: index, CompletedAt: at})
		}
		return true, nil
	}

	removed := false
	if kind == ItemExercise {
		kept := e.CompletedExercises[:0]
		for _, x := range e.CompletedExercises {
			if x.ModuleID == moduleID && x.ExerciseIndex == index {
				removed = true
				continue
			}
			kept = append(kept, x)
		}
		e.CompletedExercises = kept
	} else {
		kept := e.CompletedActivities[:0]
		for _, x := range e.CompletedActivities {
			if x.ModuleID == moduleID && x.ActivityIndex == index {
				removed = true
				continue
			}
			kept = append(kept, x)
		}
		e.CompletedActivities = kept
	}
	return removed, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Quiz results
// ─────────────────────────────────────────────────────────────────────────────

// QuizResultFor возвращает последнюю попытку квиза по модулю.
func (e *Enrollment) QuizResultFor(moduleID string) (QuizResult, bool) {
	for _, r := range e.QuizResults {
		if r.ModuleID == moduleID {
			return r, true
		}
	}
	return QuizResult{}, false
}

// RecordQuizResult заменяет предыдущую попытку по модулю новой.
func (e *Enrollment) RecordQuizResult(r QuizResult) {
	e.Touch(r.SubmittedAt)
	r.SubmittedAt = r.SubmittedAt.UTC()
	for i := range e.QuizResults {
		if e.QuizResults[i].ModuleID == r.ModuleID {
			e.QuizResults[i] = r
			return
		}
	}
	e.QuizResults = append(e.QuizResults, r)
}

// ─────────────────────────────────────────────────────────────────────────────
// Administrative status
// ─────────────────────────────────────────────────────────────────────────────

// SetAdministrativeStatus переводит запись в dropped или возвращает в active.
// completed вручную не выставляется: он выводится только из прогресса.
func (e *Enrollment) SetAdministrativeStatus(target Status, now time.Time) (bool, error) {
	switch target {
	case StatusDropped:
		if e.Status == StatusDropped {
			return false, nil
		}
		e.Status = StatusDropped
	case StatusActive:
		if e.Status != StatusDropped {
			return false, nil
		}
		e.Status = StatusActive
	default:
		return false, shared.ErrInvalidStatus
	}
	e.Touch(now)
	return true, nil
}

// OverridePercentage записывает значение прогресса вручную.
// Следующий пересчёт перезапишет его, если в курсе есть пункты.
func (e *Enrollment) OverridePercentage(p int, now time.Time) error {
	pct, err := shared.NewPercentage(p)
	if err != nil {
		return err
	}
	e.CompletionPercentage = pct.Int()
	e.Touch(now)
	return nil
}
