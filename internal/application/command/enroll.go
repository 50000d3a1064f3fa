// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/lms-backend/internal/application/saga"
	"github.com/skillforge/lms-backend/internal/domain/course"
	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"
	"github.com/skillforge/lms-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL COMMAND
// Creates an enrollment, or returns the existing one with fresh progress.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollCommand contains the data to enroll a student in a course.
type EnrollCommand struct {
	StudentID string
	CourseID  string

	// AllowUnpublished lets staff enroll in a draft course.
	AllowUnpublished bool
}

// Validate validates the command.
func (c EnrollCommand) Validate() error {
	if _, err := shared.NewStudentID(c.StudentID); err != nil {
		return err
	}
	if _, err := shared.NewCourseID(c.CourseID); err != nil {
		return err
	}
	return nil
}

// EnrollResult contains the result of enrolling.
type EnrollResult struct {
	Enrollment *enrollment.Enrollment

	// Created is false when the student was already enrolled.
	Created bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// EnrollHandler handles the EnrollCommand.
type EnrollHandler struct {
	courses     course.Repository
	enrollments enrollment.Repository
	flow        *saga.ProgressFlowSaga
	eventBus    shared.EventPublisher
	log         *logger.Logger
	newID       func() string
	now         func() time.Time
}

// NewEnrollHandler creates a new EnrollHandler.
func NewEnrollHandler(
	courses course.Repository,
	enrollments enrollment.Repository,
	flow *saga.ProgressFlowSaga,
	eventBus shared.EventPublisher,
	log *logger.Logger,
) *EnrollHandler {
	if eventBus == nil {
		eventBus = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &EnrollHandler{
		courses:     courses,
		enrollments: enrollments,
		flow:        flow,
		eventBus:    eventBus,
		log:         log.With(logger.Component("enroll")),
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// Handle executes the enroll command.
func (h *EnrollHandler) Handle(ctx context.Context, cmd EnrollCommand) (*EnrollResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("enroll: validation failed: %w", err)
	}

	c, err := h.courses.GetByID(ctx, cmd.CourseID)
	if err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}

	existing, err := h.enrollments.FindByStudentAndCourse(ctx, cmd.StudentID, cmd.CourseID)
	switch {
	case err == nil:
		return h.existing(ctx, existing)
	case !errors.Is(err, shared.ErrEnrollmentNotFound):
		return nil, fmt.Errorf("enroll: failed to look up enrollment: %w", err)
	}

	if !c.IsPublished && !cmd.AllowUnpublished {
		return nil, shared.ErrCourseNotPublished
	}

	e, err := enrollment.NewEnrollment(enrollment.NewEnrollmentParams{
		ID:        h.newID(),
		StudentID: cmd.StudentID,
		CourseID:  cmd.CourseID,
		Now:       h.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}

	if err := h.enrollments.Create(ctx, e); err != nil {
		if errors.Is(err, shared.ErrEnrollmentExists) {
			// Lost a race with a concurrent request for the same pair.
			existing, findErr := h.enrollments.FindByStudentAndCourse(ctx, cmd.StudentID, cmd.CourseID)
			if findErr != nil {
				return nil, fmt.Errorf("enroll: %w", err)
			}
			return h.existing(ctx, existing)
		}
		return nil, fmt.Errorf("enroll: failed to create enrollment: %w", err)
	}

	if err := h.eventBus.Publish(shared.NewEnrollmentCreatedEvent(e.ID, e.StudentID, e.CourseID)); err != nil {
		h.log.Warn("failed to publish enrollment created event", logger.EnrollmentID(e.ID), logger.Err(err))
	}

	h.log.Info("student enrolled",
		logger.EnrollmentID(e.ID),
		logger.StudentID(e.StudentID),
		logger.CourseID(e.CourseID),
	)

	return &EnrollResult{Enrollment: e, Created: true}, nil
}

// existing re-evaluates an enrollment that is already there, so the caller
// sees current progress even after the course changed.
func (h *EnrollHandler) existing(ctx context.Context, e *enrollment.Enrollment) (*EnrollResult, error) {
	res, err := h.flow.Recompute(ctx, e.StudentID, e.CourseID, saga.TriggerRead)
	if err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}
	return &EnrollResult{Enrollment: res.Enrollment, Created: false}, nil
}
