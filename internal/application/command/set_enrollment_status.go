package command

import (
	"context"
	"fmt"
	"time"

	"github.com/skillforge/lms-backend/internal/application/saga"
	"github.com/skillforge/lms-backend/internal/domain/course"
	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"
	"github.com/skillforge/lms-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SET ENROLLMENT STATUS COMMAND
// Staff drop an enrollment or reactivate a dropped one. Reactivation
// re-evaluates progress, so a fully done enrollment comes back completed.
// ══════════════════════════════════════════════════════════════════════════════

// SetEnrollmentStatusCommand contains the administrative status change.
type SetEnrollmentStatusCommand struct {
	// ActorID is the instructor or admin performing the change.
	ActorID string

	// ActorIsAdmin allows changes on courses owned by other instructors.
	ActorIsAdmin bool

	StudentID string
	CourseID  string
	Status    string
}

// Validate validates the command.
func (c SetEnrollmentStatusCommand) Validate() error {
	if c.ActorID == "" {
		return shared.NewDomainError("enrollment", "SetStatus", shared.ErrUnauthorized, "actor is required")
	}
	status, err := enrollment.ParseStatus(c.Status)
	if err != nil {
		return err
	}
	if status == enrollment.StatusCompleted {
		return shared.WrapError("enrollment", "SetStatus", shared.ErrInvalidInput,
			"completed is derived from progress", shared.ErrInvalidStatus)
	}
	return nil
}

// SetEnrollmentStatusHandler handles the SetEnrollmentStatusCommand.
type SetEnrollmentStatusHandler struct {
	flow *saga.ProgressFlowSaga
	log  *logger.Logger
}

// NewSetEnrollmentStatusHandler creates a new SetEnrollmentStatusHandler.
func NewSetEnrollmentStatusHandler(flow *saga.ProgressFlowSaga, log *logger.Logger) *SetEnrollmentStatusHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SetEnrollmentStatusHandler{flow: flow, log: log.With(logger.Component("set_enrollment_status"))}
}

// Handle executes the command.
func (h *SetEnrollmentStatusHandler) Handle(ctx context.Context, cmd SetEnrollmentStatusCommand) (*ProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("set_enrollment_status: validation failed: %w", err)
	}
	target, _ := enrollment.ParseStatus(cmd.Status)

	res, err := h.flow.Execute(ctx, saga.ProgressFlowInput{
		StudentID: cmd.StudentID,
		CourseID:  cmd.CourseID,
		Trigger:   saga.TriggerStatus,
		Mutate: func(c *course.Course, e *enrollment.Enrollment, now time.Time) ([]shared.Event, error) {
			if !cmd.ActorIsAdmin && c.InstructorID != cmd.ActorID {
				return nil, shared.NewDomainError("enrollment", "SetStatus", shared.ErrForbidden,
					"only the course instructor can change enrollment status")
			}
			previous := e.Status
			changed, err := e.SetAdministrativeStatus(target, now)
			if err != nil || !changed {
				return nil, err
			}
			return []shared.Event{
				shared.NewEnrollmentStatusChangedEvent(e.ID, e.StudentID, e.CourseID, string(previous), string(e.Status)),
			}, nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("set_enrollment_status: %w", err)
	}

	h.log.Info("enrollment status set",
		logger.String("actor_id", cmd.ActorID),
		logger.StudentID(cmd.StudentID),
		logger.CourseID(cmd.CourseID),
		logger.String("status", string(res.Enrollment.Status)),
	)

	return progressResult(res), nil
}
