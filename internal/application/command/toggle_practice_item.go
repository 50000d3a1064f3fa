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
// TOGGLE PRACTICE ITEM COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// TogglePracticeItemCommand marks one exercise or activity of a module.
type TogglePracticeItemCommand struct {
	StudentID string
	CourseID  string
	ModuleID  string
	ItemType  string
	ItemIndex int
	Completed bool
}

// Validate validates the command.
func (c TogglePracticeItemCommand) Validate() error {
	if c.ModuleID == "" {
		return shared.NewDomainError("enrollment", "TogglePracticeItem", shared.ErrEmptyValue, "module id is required")
	}
	if _, err := enrollment.ParseItemType(c.ItemType); err != nil {
		return err
	}
	if c.ItemIndex < 0 {
		return shared.ErrItemIndexOutOfRange
	}
	return nil
}

// TogglePracticeItemHandler handles the TogglePracticeItemCommand.
type TogglePracticeItemHandler struct {
	flow *saga.ProgressFlowSaga
	log  *logger.Logger
}

// NewTogglePracticeItemHandler creates a new TogglePracticeItemHandler.
func NewTogglePracticeItemHandler(flow *saga.ProgressFlowSaga, log *logger.Logger) *TogglePracticeItemHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &TogglePracticeItemHandler{flow: flow, log: log.With(logger.Component("toggle_practice_item"))}
}

// Handle executes the command.
func (h *TogglePracticeItemHandler) Handle(ctx context.Context, cmd TogglePracticeItemCommand) (*ProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("toggle_practice_item: validation failed: %w", err)
	}
	kind, _ := enrollment.ParseItemType(cmd.ItemType)

	res, err := h.flow.Execute(ctx, saga.ProgressFlowInput{
		StudentID: cmd.StudentID,
		CourseID:  cmd.CourseID,
		Trigger:   saga.TriggerPracticeItem,
		Mutate: func(c *course.Course, e *enrollment.Enrollment, now time.Time) ([]shared.Event, error) {
			m, err := c.RequireModule(cmd.ModuleID)
			if err != nil {
				return nil, err
			}
			limit := m.ExerciseCount()
			if kind == enrollment.ItemActivity {
				limit = m.ActivityCount()
			}
			if cmd.ItemIndex >= limit {
				return nil, shared.WrapError("enrollment", "TogglePracticeItem", shared.ErrValueOutOfRange,
					fmt.Sprintf("module %s has %d %s items", m.ID, limit, kind), shared.ErrItemIndexOutOfRange)
			}
			_, err = e.SetPracticeItem(kind, m.ID, cmd.ItemIndex, cmd.Completed, now)
			return nil, err
		},
	})
	if err != nil {
		return nil, fmt.Errorf("toggle_practice_item: %w", err)
	}

	h.log.Info("practice item toggled",
		logger.StudentID(cmd.StudentID),
		logger.CourseID(cmd.CourseID),
		logger.ModuleID(cmd.ModuleID),
		logger.String("item_type", string(kind)),
		logger.Int("item_index", cmd.ItemIndex),
		logger.Bool("completed", cmd.Completed),
		logger.Percentage(res.Evaluation.Percentage),
	)

	return progressResult(res), nil
}
