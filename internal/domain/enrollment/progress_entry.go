package enrollment

import (
	"strings"
	"time"

	"github.com/skillforge/lms-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODULE PROGRESS ENTRY
// Журнал работы студента с модулем: статус, время, заметки.
// На процент не влияет, отдаётся в снимке прогресса.
// ══════════════════════════════════════════════════════════════════════════════

// EntryStatus - состояние модуля с точки зрения студента.
type EntryStatus string

const (
	EntryNotStarted EntryStatus = "not-started"
	EntryInProgress EntryStatus = "in-progress"
	EntryCompleted  EntryStatus = "completed"
)

// ParseEntryStatus разбирает статус записи. Пустая строка означает completed.
func ParseEntryStatus(raw string) (EntryStatus, error) {
	s := EntryStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case "":
		return EntryCompleted, nil
	case EntryNotStarted, EntryInProgress, EntryCompleted:
		return s, nil
	default:
		return "", shared.NewDomainError("enrollment", "ParseEntryStatus", shared.ErrInvalidInput, "unknown module progress status")
	}
}

// ProgressEntry уникальна для (student, course, module).
type ProgressEntry struct {
	ID               string      `json:"id"`
	StudentID        string      `json:"studentId"`
	CourseID         string      `json:"courseId"`
	ModuleID         string      `json:"moduleId"`
	Status           EntryStatus `json:"status"`
	CompletedAt      *time.Time  `json:"completedAt,omitempty"`
	LastAccessedAt   time.Time   `json:"lastAccessedAt"`
	TimeSpentMinutes int         `json:"timeSpentMinutes"`
	Notes            string      `json:"notes,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// NewProgressEntry создаёт пустую запись в статусе not-started.
func NewProgressEntry(id, studentID, courseID, moduleID string, now time.Time) *ProgressEntry {
	now = now.UTC()
	return &ProgressEntry{
		ID:             id,
		StudentID:      studentID,
		CourseID:       courseID,
		ModuleID:       moduleID,
		Status:         EntryNotStarted,
		LastAccessedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Apply обновляет запись: статус, добавленное время, заметки (nil - не менять).
func (p *ProgressEntry) Apply(status EntryStatus, addMinutes int, notes *string, now time.Time) {
	now = now.UTC()
	p.Status = status
	if status == EntryCompleted {
		p.CompletedAt = &now
	} else {
		p.CompletedAt = nil
	}
	if addMinutes > 0 {
		p.TimeSpentMinutes += addMinutes
	}
	if notes != nil {
		p.Notes = *notes
	}
	p.LastAccessedAt = now
	p.UpdatedAt = now
}
