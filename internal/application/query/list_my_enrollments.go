package query

import (
	"context"
	"fmt"

	"github.com/skillforge/lms-backend/internal/application/saga"
	"github.com/skillforge/lms-backend/internal/domain/course"
	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"
	"github.com/skillforge/lms-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST MY ENROLLMENTS QUERY
// Все курсы студента. Если опция включена, процент каждой записи
// пересчитывается и сохраняется, когда он разошёлся с журналом.
// ══════════════════════════════════════════════════════════════════════════════

// ListMyEnrollmentsQuery содержит параметры запроса.
type ListMyEnrollmentsQuery struct {
	StudentID string
}

// Validate проверяет корректность параметров запроса.
func (q ListMyEnrollmentsQuery) Validate() error {
	_, err := shared.NewStudentID(q.StudentID)
	return err
}

// MyEnrollmentDTO - запись вместе с кратким описанием курса.
type MyEnrollmentDTO struct {
	Enrollment *enrollment.Enrollment `json:"enrollment"`
	Course     *CourseSummaryDTO      `json:"course,omitempty"`
}

// CourseSummaryDTO - курс без содержимого модулей.
type CourseSummaryDTO struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Category    string       `json:"category,omitempty"`
	Level       course.Level `json:"level,omitempty"`
	ModuleCount int          `json:"moduleCount"`
}

func summarize(c *course.Course) *CourseSummaryDTO {
	if c == nil {
		return nil
	}
	return &CourseSummaryDTO{
		ID:          c.ID,
		Title:       c.Title,
		Category:    c.Category,
		Level:       c.Level,
		ModuleCount: len(c.Modules),
	}
}

// ListMyEnrollmentsHandler обрабатывает запрос.
type ListMyEnrollmentsHandler struct {
	enrollments enrollment.Repository
	courses     course.Repository
	flow        *saga.ProgressFlowSaga
	recompute   Toggle
	log         *logger.Logger
}

// NewListMyEnrollmentsHandler создаёт обработчик.
func NewListMyEnrollmentsHandler(
	enrollments enrollment.Repository,
	courses course.Repository,
	flow *saga.ProgressFlowSaga,
	recompute Toggle,
	log *logger.Logger,
) *ListMyEnrollmentsHandler {
	if recompute == nil {
		recompute = Always
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ListMyEnrollmentsHandler{
		enrollments: enrollments,
		courses:     courses,
		flow:        flow,
		recompute:   recompute,
		log:         log.With(logger.Component("list_my_enrollments")),
	}
}

// Handle выполняет запрос.
func (h *ListMyEnrollmentsHandler) Handle(ctx context.Context, q ListMyEnrollmentsQuery) ([]MyEnrollmentDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("list_my_enrollments: validation failed: %w", err)
	}

	list, err := h.enrollments.ListByStudent(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("list_my_enrollments: %w", err)
	}

	recompute := h.recompute(q.StudentID)
	out := make([]MyEnrollmentDTO, 0, len(list))
	for _, e := range list {
		item := MyEnrollmentDTO{Enrollment: e}

		if recompute {
			res, err := h.flow.Recompute(ctx, e.StudentID, e.CourseID, saga.TriggerRead)
			if err == nil {
				item.Enrollment = res.Enrollment
				item.Course = summarize(res.Course)
				out = append(out, item)
				continue
			}
			// A deleted course or a busy lock must not hide the rest of the list.
			h.log.Warn("recompute on list failed, returning stored progress",
				logger.EnrollmentID(e.ID), logger.CourseID(e.CourseID), logger.Err(err))
		}

		if c, err := h.courses.GetByID(ctx, e.CourseID); err == nil {
			item.Course = summarize(c)
		}
		out = append(out, item)
	}

	h.log.Debug("enrollments listed", logger.StudentID(q.StudentID), logger.Int("count", len(out)))
	return out, nil
}
