// Package query contains read operations (CQRS - Queries).
package query

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
// GET PROGRESS SNAPSHOT QUERY
// Полная картина прогресса студента по курсу: запись, курс, журнал модулей
// и разбивка по модулям. Перед чтением прогресс пересчитывается.
// ══════════════════════════════════════════════════════════════════════════════

// Toggle решает, включена ли опция для конкретного студента.
type Toggle func(studentID string) bool

// Always - Toggle, который всегда включён.
func Always(string) bool { return true }

// GetProgressSnapshotQuery содержит параметры запроса снимка.
type GetProgressSnapshotQuery struct {
	StudentID string
	CourseID  string
}

// Validate проверяет корректность параметров запроса.
func (q GetProgressSnapshotQuery) Validate() error {
	if _, err := shared.NewStudentID(q.StudentID); err != nil {
		return err
	}
	if _, err := shared.NewCourseID(q.CourseID); err != nil {
		return err
	}
	return nil
}

// ProgressSnapshotDTO - снимок прогресса. Сериализуется в кэш как есть.
type ProgressSnapshotDTO struct {
	Enrollment      *enrollment.Enrollment      `json:"enrollment"`
	Course          *course.Course              `json:"course"`
	ProgressEntries []*enrollment.ProgressEntry `json:"progressEntries"`

	// Разбивка по модулям в порядке курса.
	Modules        []enrollment.ModuleProgress `json:"modules"`
	CompletedItems int                         `json:"completedItems"`
	TotalItems     int                         `json:"totalItems"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// GetProgressSnapshotResult - результат запроса.
type GetProgressSnapshotResult struct {
	Snapshot  *ProgressSnapshotDTO
	FromCache bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressSnapshotHandler обрабатывает запрос снимка.
type GetProgressSnapshotHandler struct {
	flow     *saga.ProgressFlowSaga
	entries  enrollment.ProgressEntryRepository
	cache    enrollment.SnapshotCache
	useCache Toggle
	log      *logger.Logger
	now      func() time.Time
}

// NewGetProgressSnapshotHandler создаёт обработчик. entries и cache могут быть nil.
func NewGetProgressSnapshotHandler(
	flow *saga.ProgressFlowSaga,
	entries enrollment.ProgressEntryRepository,
	cache enrollment.SnapshotCache,
	useCache Toggle,
	log *logger.Logger,
) *GetProgressSnapshotHandler {
	if useCache == nil {
		useCache = Always
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetProgressSnapshotHandler{
		flow:     flow,
		entries:  entries,
		cache:    cache,
		useCache: useCache,
		log:      log.With(logger.Component("get_progress_snapshot")),
		now:      time.Now,
	}
}

// Handle выполняет запрос.
func (h *GetProgressSnapshotHandler) Handle(ctx context.Context, q GetProgressSnapshotQuery) (*GetProgressSnapshotResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_progress_snapshot: validation failed: %w", err)
	}

	cached := h.cache != nil && h.useCache(q.StudentID)
	if cached {
		var dto ProgressSnapshotDTO
		hit, err := h.cache.Get(ctx, q.StudentID, q.CourseID, &dto)
		if err != nil {
			h.log.Warn("snapshot cache read failed", logger.StudentID(q.StudentID), logger.CourseID(q.CourseID), logger.Err(err))
		}
		if hit {
			return &GetProgressSnapshotResult{Snapshot: &dto, FromCache: true}, nil
		}
	}

	// Снимок строится и кладётся в кэш под блокировкой записи: запись,
	// пришедшая после чтения, сбросит уже сохранённый снимок.
	var dto *ProgressSnapshotDTO
	res, err := h.flow.Execute(ctx, saga.ProgressFlowInput{
		StudentID: q.StudentID,
		CourseID:  q.CourseID,
		Trigger:   saga.TriggerRead,
		Settle: func(ctx context.Context, res *saga.ProgressFlowResult) error {
			var err error
			if dto, err = h.build(ctx, res); err != nil {
				return err
			}
			if cached {
				if err := h.cache.Set(ctx, q.StudentID, q.CourseID, dto); err != nil {
					h.log.Warn("snapshot cache write failed", logger.StudentID(q.StudentID), logger.CourseID(q.CourseID), logger.Err(err))
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get_progress_snapshot: %w", err)
	}

	h.log.Debug("progress snapshot built",
		logger.StudentID(q.StudentID),
		logger.CourseID(q.CourseID),
		logger.Percentage(res.Enrollment.CompletionPercentage),
	)

	return &GetProgressSnapshotResult{Snapshot: dto}, nil
}

func (h *GetProgressSnapshotHandler) build(ctx context.Context, res *saga.ProgressFlowResult) (*ProgressSnapshotDTO, error) {
	entries := []*enrollment.ProgressEntry{}
	if h.entries != nil {
		var err error
		entries, err = h.entries.ListByStudentAndCourse(ctx, res.Enrollment.StudentID, res.Enrollment.CourseID)
		if err != nil {
			return nil, fmt.Errorf("failed to list progress entries: %w", err)
		}
	}

	completed, total := enrollment.CountItems(res.Course, res.Enrollment)
	return &ProgressSnapshotDTO{
		Enrollment:      res.Enrollment,
		Course:          res.Course,
		ProgressEntries: entries,
		Modules:         enrollment.Breakdown(res.Course, res.Enrollment),
		CompletedItems:  completed,
		TotalItems:      total,
		GeneratedAt:     h.now().UTC(),
	}, nil
}
