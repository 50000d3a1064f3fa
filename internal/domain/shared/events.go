package shared

import "time"

// EventType - имя события в виде "агрегат.что_случилось".
type EventType string

const (
	EventEnrollmentCreated       EventType = "enrollment.created"
	EventEnrollmentCompleted     EventType = "enrollment.completed"
	EventEnrollmentReopened      EventType = "enrollment.reopened"
	EventEnrollmentStatusChanged EventType = "enrollment.status_changed"
	EventProgressRecalculated    EventType = "progress.recalculated"
	EventQuizSubmitted           EventType = "quiz.submitted"
	EventCertificateIssued       EventType = "certificate.issued"
)

// Event - доменное событие. Агрегат всех событий здесь - запись на курс,
// поэтому AggregateID всегда идентификатор записи.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
	// Payload - плоские поля события для аудита и логов.
	Payload() Fields
}

// Fields - полезная нагрузка события.
type Fields map[string]interface{}

// header - общая часть всех событий. Время фиксируется при создании
// события, а не при доставке.
type header struct {
	Type         EventType `json:"type"`
	At           time.Time `json:"occurred_at"`
	EnrollmentID string    `json:"enrollment_id"`
}

func newHeader(t EventType, enrollmentID string) header {
	return header{Type: t, At: time.Now().UTC(), EnrollmentID: enrollmentID}
}

func (h header) EventType() EventType  { return h.Type }
func (h header) OccurredAt() time.Time { return h.At }
func (h header) AggregateID() string   { return h.EnrollmentID }

// EnrollmentCreatedEvent - учащийся записался на курс.
type EnrollmentCreatedEvent struct {
	header
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`
}

func NewEnrollmentCreatedEvent(enrollmentID, studentID, courseID string) EnrollmentCreatedEvent {
	return EnrollmentCreatedEvent{
		header:    newHeader(EventEnrollmentCreated, enrollmentID),
		StudentID: studentID,
		CourseID:  courseID,
	}
}

func (e EnrollmentCreatedEvent) Payload() Fields {
	return Fields{"student_id": e.StudentID, "course_id": e.CourseID}
}

// EnrollmentStatusChangedEvent публикуется при каждой смене статуса.
// Переходы в completed и из completed в active получают собственные типы
// (enrollment.completed и enrollment.reopened), остальные - status_changed.
type EnrollmentStatusChangedEvent struct {
	header
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

func NewEnrollmentStatusChangedEvent(enrollmentID, studentID, courseID, oldStatus, newStatus string) EnrollmentStatusChangedEvent {
	t := EventEnrollmentStatusChanged
	if newStatus == "completed" {
		t = EventEnrollmentCompleted
	} else if oldStatus == "completed" && newStatus == "active" {
		t = EventEnrollmentReopened
	}
	return EnrollmentStatusChangedEvent{
		header:    newHeader(t, enrollmentID),
		StudentID: studentID,
		CourseID:  courseID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	}
}

func (e EnrollmentStatusChangedEvent) Payload() Fields {
	return Fields{
		"student_id": e.StudentID,
		"course_id":  e.CourseID,
		"old_status": e.OldStatus,
		"new_status": e.NewStatus,
	}
}

// ProgressRecalculatedEvent - сохранённый процент изменился.
// Trigger называет источник: module, practice, quiz, override, reconcile.
type ProgressRecalculatedEvent struct {
	header
	StudentID     string `json:"student_id"`
	CourseID      string `json:"course_id"`
	OldPercentage int    `json:"old_percentage"`
	NewPercentage int    `json:"new_percentage"`
	Trigger       string `json:"trigger"`
}

func NewProgressRecalculatedEvent(enrollmentID, studentID, courseID string, oldPct, newPct int, trigger string) ProgressRecalculatedEvent {
	return ProgressRecalculatedEvent{
		header:        newHeader(EventProgressRecalculated, enrollmentID),
		StudentID:     studentID,
		CourseID:      courseID,
		OldPercentage: oldPct,
		NewPercentage: newPct,
		Trigger:       trigger,
	}
}

func (e ProgressRecalculatedEvent) Payload() Fields {
	return Fields{
		"student_id":     e.StudentID,
		"course_id":      e.CourseID,
		"old_percentage": e.OldPercentage,
		"new_percentage": e.NewPercentage,
		"trigger":        e.Trigger,
	}
}

// QuizSubmittedEvent - попытка теста проверена.
type QuizSubmittedEvent struct {
	header
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`
	ModuleID  string `json:"module_id"`
	Score     int    `json:"score"`
	Total     int    `json:"total"`
	Passed    bool   `json:"passed"`
}

func NewQuizSubmittedEvent(enrollmentID, studentID, courseID, moduleID string, score, total int, passed bool) QuizSubmittedEvent {
	return QuizSubmittedEvent{
		header:    newHeader(EventQuizSubmitted, enrollmentID),
		StudentID: studentID,
		CourseID:  courseID,
		ModuleID:  moduleID,
		Score:     score,
		Total:     total,
		Passed:    passed,
	}
}

func (e QuizSubmittedEvent) Payload() Fields {
	return Fields{
		"student_id": e.StudentID,
		"course_id":  e.CourseID,
		"module_id":  e.ModuleID,
		"score":      e.Score,
		"total":      e.Total,
		"passed":     e.Passed,
	}
}

// CertificateIssuedEvent публикуется не более одного раза на запись:
// сертификат выдаётся однократно.
type CertificateIssuedEvent struct {
	header
	StudentID     string    `json:"student_id"`
	CourseID      string    `json:"course_id"`
	CertificateID string    `json:"certificate_id"`
	IssuedAt      time.Time `json:"issued_at"`
}

func NewCertificateIssuedEvent(enrollmentID, studentID, courseID, certificateID string, issuedAt time.Time) CertificateIssuedEvent {
	return CertificateIssuedEvent{
		header:        newHeader(EventCertificateIssued, enrollmentID),
		StudentID:     studentID,
		CourseID:      courseID,
		CertificateID: certificateID,
		IssuedAt:      issuedAt,
	}
}

func (e CertificateIssuedEvent) Payload() Fields {
	return Fields{
		"student_id":     e.StudentID,
		"course_id":      e.CourseID,
		"certificate_id": e.CertificateID,
		"issued_at":      e.IssuedAt.UTC().Format(time.RFC3339),
	}
}

// EventHandler обрабатывает одно событие. Ошибка обработчика не влияет
// на остальных подписчиков.
type EventHandler func(event Event) error

// EventPublisher - то, что нужно сценариям записи: только публикация.
type EventPublisher interface {
	Publish(event Event) error
}

// EventBus добавляет подписку по типу и на все события.
type EventBus interface {
	EventPublisher
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// NopPublisher отбрасывает события; используется, когда шина не настроена.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) error { return nil }
