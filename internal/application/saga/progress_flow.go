// Package saga contains multi-step business processes that orchestrate
// several domain operations under one per-enrollment lock.
package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/skillforge/lms-backend/internal/domain/course"
	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"
	"github.com/skillforge/lms-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS FLOW SAGA
// Flow: Acquire Lock → Load Course → Load Enrollment → Mutate Ledger →
//
//	Evaluate (percentage, status, certificate) → Save → Invalidate Snapshot →
//	Settle → Publish Events → Release Lock
//
// Every write to an enrollment goes through this flow, so the ledger, the
// stored percentage, the status and the certificate never drift apart.
// ══════════════════════════════════════════════════════════════════════════════

// Mutation changes the ledger of a loaded enrollment. It may return extra
// events to publish once the enrollment is saved.
type Mutation func(c *course.Course, e *enrollment.Enrollment, now time.Time) ([]shared.Event, error)

// Trigger names what caused a recomputation. It is carried in events.
type Trigger string

const (
	TriggerModuleComplete Trigger = "module_complete"
	TriggerPracticeItem   Trigger = "practice_item"
	TriggerQuiz           Trigger = "quiz"
	TriggerManual         Trigger = "manual_update"
	TriggerStatus         Trigger = "status_change"
	TriggerRead           Trigger = "read"
	TriggerReconcile      Trigger = "reconcile"
)

// ProgressFlowInput identifies the enrollment and the change to apply.
type ProgressFlowInput struct {
	StudentID string
	CourseID  string
	Trigger   Trigger

	// Mutate is nil for a pure recomputation.
	Mutate Mutation

	// Settle runs after the enrollment is saved and its snapshot invalidated
	// (or after a recomputation found nothing to save), while the lock is
	// still held. Its error fails the flow, but the enrollment stays saved.
	Settle func(ctx context.Context, res *ProgressFlowResult) error
}

// Validate validates the input.
func (i ProgressFlowInput) Validate() error {
	if _, err := shared.NewStudentID(i.StudentID); err != nil {
		return err
	}
	if _, err := shared.NewCourseID(i.CourseID); err != nil {
		return err
	}
	return nil
}

// ProgressFlowResult contains the outcome of one flow execution.
type ProgressFlowResult struct {
	Course     *course.Course
	Enrollment *enrollment.Enrollment
	Evaluation enrollment.Evaluation

	// Saved is false when a pure recomputation found nothing to change.
	Saved bool

	// Events contains the events that were published.
	Events []shared.Event
}

// ProgressFlowStep represents a step in the progress flow.
type ProgressFlowStep string

const (
	StepAcquireLock    ProgressFlowStep = "acquire_lock"
	StepLoadCourse     ProgressFlowStep = "load_course"
	StepLoadEnrollment ProgressFlowStep = "load_enrollment"
	StepMutate         ProgressFlowStep = "mutate"
	StepEvaluate       ProgressFlowStep = "evaluate"
	StepSave           ProgressFlowStep = "save"
	StepSettle         ProgressFlowStep = "settle"
	StepPublishEvents  ProgressFlowStep = "publish_events"
	StepComplete       ProgressFlowStep = "complete"
)

// ══════════════════════════════════════════════════════════════════════════════
// SAGA IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressFlowSaga runs every enrollment read-modify-write.
type ProgressFlowSaga struct {
	courses     course.Repository
	enrollments enrollment.Repository
	engine      *enrollment.Engine
	locker      enrollment.Locker
	snapshots   enrollment.SnapshotCache
	eventBus    shared.EventPublisher
	log         *logger.Logger
	now         func() time.Time
}

// ProgressFlowDeps groups the saga dependencies. Snapshots and EventBus are optional.
type ProgressFlowDeps struct {
	Courses     course.Repository
	Enrollments enrollment.Repository
	Engine      *enrollment.Engine
	Locker      enrollment.Locker
	Snapshots   enrollment.SnapshotCache
	EventBus    shared.EventPublisher
	Logger      *logger.Logger
	Now         func() time.Time
}

// NewProgressFlowSaga creates the saga.
func NewProgressFlowSaga(deps ProgressFlowDeps) *ProgressFlowSaga {
	if deps.Engine == nil {
		deps.Engine = enrollment.NewEngine(nil)
	}
	if deps.EventBus == nil {
		deps.EventBus = shared.NopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &ProgressFlowSaga{
		courses:     deps.Courses,
		enrollments: deps.Enrollments,
		engine:      deps.Engine,
		locker:      deps.Locker,
		snapshots:   deps.Snapshots,
		eventBus:    deps.EventBus,
		log:         deps.Logger.With(logger.Component("progress_flow")),
		now:         deps.Now,
	}
}

// Execute runs the flow. With a nil Mutate the enrollment is saved only if
// the evaluation changed something.
func (s *ProgressFlowSaga) Execute(ctx context.Context, input ProgressFlowInput) (*ProgressFlowResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	step := StepAcquireLock
	release, err := s.locker.Acquire(ctx, enrollment.LockKey(input.StudentID, input.CourseID))
	if err != nil {
		return nil, s.wrapError(step, input, err)
	}
	defer release()

	step = StepLoadCourse
	c, err := s.courses.GetByID(ctx, input.CourseID)
	if err != nil {
		return nil, s.wrapError(step, input, err)
	}

	step = StepLoadEnrollment
	e, err := s.enrollments.FindByStudentAndCourse(ctx, input.StudentID, input.CourseID)
	if err != nil {
		return nil, s.wrapError(step, input, err)
	}

	now := s.now().UTC()
	var extra []shared.Event
	if input.Mutate != nil {
		step = StepMutate
		if extra, err = input.Mutate(c, e, now); err != nil {
			return nil, s.wrapError(step, input, err)
		}
	}

	// The stored value stands in for an empty course; a manual override
	// has already been written into it by the mutation.
	step = StepEvaluate
	ev, err := s.engine.Evaluate(c, e, enrollment.Fallback(e.CompletionPercentage))
	if err != nil {
		return nil, s.wrapError(step, input, err)
	}
	if ev.CertificateIssued {
		// Issuing a certificate is a mutation even on a read.
		e.Touch(now)
	}

	result := &ProgressFlowResult{Course: c, Enrollment: e, Evaluation: ev}
	if input.Mutate != nil || ev.Changed() {
		step = StepSave
		if err := s.enrollments.Save(ctx, e); err != nil {
			return nil, s.wrapError(step, input, err)
		}
		result.Saved = true

		if s.snapshots != nil {
			if err := s.snapshots.Invalidate(ctx, e.StudentID, e.CourseID); err != nil {
				s.log.Warn("failed to invalidate progress snapshot",
					logger.StudentID(e.StudentID), logger.CourseID(e.CourseID), logger.Err(err))
			}
		}
	}

	var settleErr error
	if input.Settle != nil {
		settleErr = input.Settle(ctx, result)
	}

	if !result.Saved {
		if settleErr != nil {
			return nil, s.wrapError(StepSettle, input, settleErr)
		}
		return result, nil
	}

	// The enrollment is saved, so its events go out even if Settle failed.
	result.Events = append(s.evaluationEvents(e, ev, input.Trigger), extra...)
	s.publish(result.Events)
	if settleErr != nil {
		return nil, s.wrapError(StepSettle, input, settleErr)
	}

	s.log.Debug("enrollment evaluated",
		logger.EnrollmentID(e.ID),
		logger.String("trigger", string(input.Trigger)),
		logger.Int("previous_percentage", ev.PreviousPercentage),
		logger.Percentage(ev.Percentage),
		logger.String("status", string(ev.Status)),
		logger.Bool("certificate_issued", ev.CertificateIssued),
	)

	return result, nil
}

// Recompute re-evaluates an enrollment without changing its ledger.
func (s *ProgressFlowSaga) Recompute(ctx context.Context, studentID, courseID string, trigger Trigger) (*ProgressFlowResult, error) {
	return s.Execute(ctx, ProgressFlowInput{StudentID: studentID, CourseID: courseID, Trigger: trigger})
}

// evaluationEvents derives events from an evaluation.
func (s *ProgressFlowSaga) evaluationEvents(e *enrollment.Enrollment, ev enrollment.Evaluation, trigger Trigger) []shared.Event {
	var events []shared.Event
	if ev.PercentageChanged() {
		events = append(events, shared.NewProgressRecalculatedEvent(
			e.ID, e.StudentID, e.CourseID, ev.PreviousPercentage, ev.Percentage, string(trigger)))
	}
	if ev.StatusChanged() {
		events = append(events, shared.NewEnrollmentStatusChangedEvent(
			e.ID, e.StudentID, e.CourseID, string(ev.PreviousStatus), string(ev.Status)))
	}
	if ev.CertificateIssued {
		events = append(events, shared.NewCertificateIssuedEvent(
			e.ID, e.StudentID, e.CourseID, e.CertificateID, *e.CertificateIssuedAt))
	}
	return events
}

// publish sends events best-effort; the enrollment is already saved.
func (s *ProgressFlowSaga) publish(events []shared.Event) {
	for _, event := range events {
		if err := s.eventBus.Publish(event); err != nil {
			s.log.Warn("failed to publish event",
				logger.String("event_type", string(event.EventType())), logger.Err(err))
		}
	}
}

func (s *ProgressFlowSaga) wrapError(step ProgressFlowStep, input ProgressFlowInput, err error) error {
	return &ProgressFlowError{
		Step:      step,
		StudentID: input.StudentID,
		CourseID:  input.CourseID,
		Cause:     err,
		Message:   fmt.Sprintf("progress_flow: step %s failed: %v", step, err),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// ProgressFlowError represents an error during the progress flow.
type ProgressFlowError struct {
	Step      ProgressFlowStep
	StudentID string
	CourseID  string
	Cause     error
	Message   string
}

// Error implements the error interface.
func (e *ProgressFlowError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ProgressFlowError) Unwrap() error {
	return e.Cause
}
