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
// MARK MODULE COMPLETE COMMAND
// Marks a module as read (or unread) and records the module progress entry.
// ══════════════════════════════════════════════════════════════════════════════

// MarkModuleCompleteCommand contains the data to mark a module.
type MarkModuleCompleteCommand struct {
	StudentID string
	CourseID  string
	ModuleID  string

	// Completed overrides the flag derived from Status when set.
	Completed *bool

	// Status is the module progress entry status. Empty means completed.
	Status string

	// TimeSpentMinutes is added to the time already recorded.
	TimeSpentMinutes int

	// Notes replaces the stored notes when set.
	Notes *string
}

// Validate validates the command.
func (c MarkModuleCompleteCommand) Validate() error {
	if c.ModuleID == "" {
		return shared.NewDomainError("enrollment", "MarkModule", shared.ErrEmptyValue, "module id is required")
	}
	if c.TimeSpentMinutes < 0 {
		return shared.NewDomainError("enrollment", "MarkModule", shared.ErrValueOutOfRange, "time spent cannot be negative")
	}
	if _, err := enrollment.ParseEntryStatus(c.Status); err != nil {
		return err
	}
	return nil
}

// completed resolves the ledger flag for the module.
func (c MarkModuleCompleteCommand) completed() bool {
	if c.Completed != nil {
		return *c.Completed
	}
	status, _ := enrollment.ParseEntryStatus(c.Status)
	return status == enrollment.EntryCompleted
}

// MarkModuleCompleteResult contains the updated enrollment and entry.
type MarkModuleCompleteResult struct {
	ProgressResult
	Entry *enrollment.ProgressEntry
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// MarkModuleCompleteHandler handles the MarkModuleCompleteCommand.
type MarkModuleCompleteHandler struct {
	flow    *saga.ProgressFlowSaga
	entries enrollment.ProgressEntryRepository
	log     *logger.Logger
	newID   func() string
}

// NewMarkModuleCompleteHandler creates a new MarkModuleCompleteHandler.
// entries may be nil, then no module progress entry is kept.
func NewMarkModuleCompleteHandler(
	flow *saga.ProgressFlowSaga,
	entries enrollment.ProgressEntryRepository,
	log *logger.Logger,
) *MarkModuleCompleteHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &MarkModuleCompleteHandler{
		flow:    flow,
		entries: entries,
		log:     log.With(logger.Component("mark_module_complete")),
		newID:   uuid.NewString,
	}
}

// Handle executes the command.
func (h *MarkModuleCompleteHandler) Handle(ctx context.Context, cmd MarkModuleCompleteCommand) (*MarkModuleCompleteResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("mark_module_complete: validation failed: %w", err)
	}

	var (
		entry    *enrollment.ProgressEntry
		markedAt time.Time
	)
	input := saga.ProgressFlowInput{
		StudentID: cmd.StudentID,
		CourseID:  cmd.CourseID,
		Trigger:   saga.TriggerModuleComplete,
		Mutate: func(c *course.Course, e *enrollment.Enrollment, now time.Time) ([]shared.Event, error) {
			if _, err := c.RequireModule(cmd.ModuleID); err != nil {
				return nil, err
			}
			e.MarkModule(cmd.ModuleID, cmd.completed(), now)
			markedAt = now
			return nil, nil
		},
	}
	if h.entries != nil {
		// The entry is written under the enrollment lock, so time spent
		// accumulates without lost updates, and only after the enrollment
		// is saved, so a failed save never counts time twice on retry.
		input.Settle = func(ctx context.Context, _ *saga.ProgressFlowResult) error {
			var err error
			entry, err = h.recordEntry(ctx, cmd, markedAt)
			return err
		}
	}
	res, err := h.flow.Execute(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("mark_module_complete: %w", err)
	}

	h.log.Info("module marked",
		logger.StudentID(cmd.StudentID),
		logger.CourseID(cmd.CourseID),
		logger.ModuleID(cmd.ModuleID),
		logger.Bool("completed", cmd.completed()),
		logger.Percentage(res.Evaluation.Percentage),
	)

	return &MarkModuleCompleteResult{ProgressResult: *progressResult(res), Entry: entry}, nil
}

func (h *MarkModuleCompleteHandler) recordEntry(ctx context.Context, cmd MarkModuleCompleteCommand, now time.Time) (*enrollment.ProgressEntry, error) {
	entry, err := h.entries.Get(ctx, cmd.StudentID, cmd.CourseID, cmd.ModuleID)
	if errors.Is(err, shared.ErrNotFound) {
		entry = enrollment.NewProgressEntry(h.newID(), cmd.StudentID, cmd.CourseID, cmd.ModuleID, now)
	} else if err != nil {
		return nil, fmt.Errorf("failed to load progress entry: %w", err)
	}

	status, _ := enrollment.ParseEntryStatus(cmd.Status)
	entry.Apply(status, cmd.TimeSpentMinutes, cmd.Notes, now)

	if err := h.entries.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save progress entry: %w", err)
	}
	return entry, nil
}
