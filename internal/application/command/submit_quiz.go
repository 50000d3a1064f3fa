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
// SUBMIT QUIZ COMMAND
// Grades a quiz attempt and replaces the previous result for the module.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitQuizCommand contains one quiz attempt.
type SubmitQuizCommand struct {
	StudentID string
	CourseID  string
	ModuleID  string

	// Answers are option indices as numbers or numeric strings.
	Answers []any
}

// Validate validates the command.
func (c SubmitQuizCommand) Validate() error {
	if c.ModuleID == "" {
		return shared.NewDomainError("quiz", "Submit", shared.ErrEmptyValue, "module id is required")
	}
	if c.Answers == nil {
		return shared.NewDomainError("quiz", "Submit", shared.ErrEmptyValue, "answers are required")
	}
	return nil
}

// SubmitQuizResult contains the grade and the updated enrollment.
type SubmitQuizResult struct {
	ProgressResult
	Result enrollment.QuizResult
}

// SubmitQuizHandler handles the SubmitQuizCommand.
type SubmitQuizHandler struct {
	flow *saga.ProgressFlowSaga
	log  *logger.Logger
}

// NewSubmitQuizHandler creates a new SubmitQuizHandler.
func NewSubmitQuizHandler(flow *saga.ProgressFlowSaga, log *logger.Logger) *SubmitQuizHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SubmitQuizHandler{flow: flow, log: log.With(logger.Component("submit_quiz"))}
}

// Handle executes the command.
func (h *SubmitQuizHandler) Handle(ctx context.Context, cmd SubmitQuizCommand) (*SubmitQuizResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("submit_quiz: validation failed: %w", err)
	}
	answers, err := enrollment.ParseAnswers(cmd.Answers)
	if err != nil {
		return nil, fmt.Errorf("submit_quiz: %w", err)
	}

	var result enrollment.QuizResult
	res, err := h.flow.Execute(ctx, saga.ProgressFlowInput{
		StudentID: cmd.StudentID,
		CourseID:  cmd.CourseID,
		Trigger:   saga.TriggerQuiz,
		Mutate: func(c *course.Course, e *enrollment.Enrollment, now time.Time) ([]shared.Event, error) {
			m, err := c.RequireModule(cmd.ModuleID)
			if err != nil {
				return nil, err
			}
			grade, err := enrollment.GradeQuiz(m, answers)
			if err != nil {
				return nil, err
			}
			result = e.ApplyGrade(m.ID, grade, now)
			return []shared.Event{
				shared.NewQuizSubmittedEvent(e.ID, e.StudentID, e.CourseID, m.ID, grade.Score, grade.Total, grade.Passed),
			}, nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("submit_quiz: %w", err)
	}

	h.log.Info("quiz submitted",
		logger.StudentID(cmd.StudentID),
		logger.CourseID(cmd.CourseID),
		logger.ModuleID(cmd.ModuleID),
		logger.Int("score", result.Score),
		logger.Int("total", result.Total),
		logger.Bool("passed", result.Passed),
	)

	return &SubmitQuizResult{ProgressResult: *progressResult(res), Result: result}, nil
}
