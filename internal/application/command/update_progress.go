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
// UPDATE PROGRESS COMMAND
// Manual percentage override and/or module toggle followed by re-evaluation.
// The override survives only for courses without countable items.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateProgressCommand contains a manual progress update.
type UpdateProgressCommand struct {
	StudentID string
	CourseID  string

	// Progress is the percentage to store before re-evaluation.
	Progress *int

	// ModuleID, when set, is marked with Completed. A missing Completed
	// unmarks the module.
	ModuleID  string
	Completed *bool
}

// Validate validates the command.
func (c UpdateProgressCommand) Validate() error {
	if c.Progress == nil && c.ModuleID == "" {
		return shared.NewDomainError("enrollment", "UpdateProgress", shared.ErrEmptyValue, "progress or module id is required")
	}
	if c.Progress != nil {
		if _, err := shared.NewPercentage(*c.Progress); err != nil {
			return shared.ErrInvalidPercentage
		}
	}
	return nil
}

// UpdateProgressHandler handles the UpdateProgressCommand.
type UpdateProgressHandler struct {
	flow *saga.ProgressFlowSaga
	log  *logger.Logger
}

// NewUpdateProgressHandler creates a new UpdateProgressHandler.
func NewUpdateProgressHandler(flow *saga.ProgressFlowSaga, log *logger.Logger) *UpdateProgressHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &UpdateProgressHandler{flow: flow, log: log.With(logger.Component("update_progress"))}
}

// Handle executes the command.
func (h *UpdateProgressHandler) Handle(ctx context.Context, cmd UpdateProgressCommand) (*ProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("update_progress: validation failed: %w", err)
	}

	res, err := h.flow.Execute(ctx, saga.ProgressFlowInput{
		StudentID: cmd.StudentID,
		CourseID:  cmd.CourseID,
		Trigger:   saga.TriggerManual,
		Mutate: func(c *course.Course, e *enrollment.Enrollment, now time.Time) ([]shared.Event, error) {
			if cmd.ModuleID != "" {
				if _, err := c.RequireModule(cmd.ModuleID); err != nil {
					return nil, err
				}
				e.MarkModule(cmd.ModuleID, cmd.Completed != nil && *cmd.Completed, now)
			}
			if cmd.Progress != nil {
				if err := e.OverridePercentage(*cmd.Progress, now); err != nil {
					return nil, err
				}
			}
			e.Touch(now)
			return nil, nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("update_progress: %w", err)
	}

	h.log.Info("progress updated",
		logger.StudentID(cmd.StudentID),
		logger.CourseID(cmd.CourseID),
		logger.Percentage(res.Evaluation.Percentage),
		logger.String("status", string(res.Evaluation.Status)),
	)

	return progressResult(res), nil
}
