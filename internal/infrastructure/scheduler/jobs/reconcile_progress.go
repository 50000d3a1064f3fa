// Package jobs contains implementations of scheduled jobs for the LMS worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skillforge/lms-backend/internal/application/saga"
	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"
	"github.com/skillforge/lms-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE PROGRESS JOB
// Walks every enrollment in ID order and re-evaluates it against the current
// course structure. Catches percentages that drifted after a course edit and
// certificates that became due without a student request.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRecomputer re-evaluates one enrollment under its lock.
type ProgressRecomputer interface {
	Recompute(ctx context.Context, studentID, courseID string, trigger saga.Trigger) (*saga.ProgressFlowResult, error)
}

// ReconcileProgressJob re-evaluates stored enrollments.
type ReconcileProgressJob struct {
	enrollments enrollment.Repository
	recomputer  ProgressRecomputer
	log         *logger.Logger
	config      ReconcileProgressConfig

	lastStats atomic.Value // *ReconcileStats
}

// ReconcileProgressConfig contains configuration for the job.
type ReconcileProgressConfig struct {
	// BatchSize is the page size used to walk enrollments.
	BatchSize int

	// Concurrency is the number of enrollments evaluated in parallel.
	Concurrency int

	// MaxFailureRate fails the run when exceeded (0..1).
	MaxFailureRate float64
}

// DefaultReconcileProgressConfig returns sensible defaults.
func DefaultReconcileProgressConfig() ReconcileProgressConfig {
	return ReconcileProgressConfig{
		BatchSize:      200,
		Concurrency:    4,
		MaxFailureRate: 0.5,
	}
}

// ReconcileStats contains statistics of one run.
type ReconcileStats struct {
	StartedAt          time.Time
	Duration           time.Duration
	Checked            int
	Updated            int
	CertificatesIssued int
	Skipped            int
	Failed             int
}

// NewReconcileProgressJob creates the job.
func NewReconcileProgressJob(
	enrollments enrollment.Repository,
	recomputer ProgressRecomputer,
	log *logger.Logger,
	config ReconcileProgressConfig,
) *ReconcileProgressJob {
	defaults := DefaultReconcileProgressConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.MaxFailureRate <= 0 {
		config.MaxFailureRate = defaults.MaxFailureRate
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ReconcileProgressJob{
		enrollments: enrollments,
		recomputer:  recomputer,
		log:         log.With(logger.String("job", "reconcile_progress")),
		config:      config,
	}
}

// Name implements scheduler.Job.
func (j *ReconcileProgressJob) Name() string {
	return "reconcile_progress"
}

// Description implements scheduler.Job.
func (j *ReconcileProgressJob) Description() string {
	return "Re-evaluates stored enrollments against the current course structure"
}

// Run implements scheduler.Job.
func (j *ReconcileProgressJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &ReconcileStats{StartedAt: startedAt}

	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			j.finish(stats, startedAt)
			return fmt.Errorf("reconcile_progress: interrupted after %d enrollments: %w", stats.Checked, err)
		}

		page, err := j.enrollments.ListAfter(ctx, afterID, j.config.BatchSize)
		if err != nil {
			j.finish(stats, startedAt)
			return fmt.Errorf("reconcile_progress: failed to list enrollments: %w", err)
		}
		if len(page) == 0 {
			break
		}

		j.reconcilePage(ctx, page, stats)
		afterID = page[len(page)-1].ID

		if len(page) < j.config.BatchSize {
			break
		}
	}

	j.finish(stats, startedAt)

	j.log.Info("reconcile_progress completed",
		logger.Int("checked", stats.Checked),
		logger.Int("updated", stats.Updated),
		logger.Int("certificates_issued", stats.CertificatesIssued),
		logger.Int("skipped", stats.Skipped),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration),
	)

	if stats.Checked > 0 {
		rate := float64(stats.Failed) / float64(stats.Checked)
		if rate > j.config.MaxFailureRate {
			return fmt.Errorf("reconcile_progress: %d of %d enrollments failed", stats.Failed, stats.Checked)
		}
	}
	return nil
}

func (j *ReconcileProgressJob) reconcilePage(ctx context.Context, page []*enrollment.Enrollment, stats *ReconcileStats) {
	var (
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, j.config.Concurrency)
		mu        sync.Mutex
	)

	for _, e := range page {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(e *enrollment.Enrollment) {
			defer wg.Done()
			defer func() { <-semaphore }()

			res, err := j.recomputer.Recompute(ctx, e.StudentID, e.CourseID, saga.TriggerReconcile)

			mu.Lock()
			defer mu.Unlock()
			stats.Checked++

			switch {
			case err == nil:
				if res.Saved {
					stats.Updated++
				}
				if res.Evaluation.CertificateIssued {
					stats.CertificatesIssued++
				}
			case errors.Is(err, shared.ErrCourseNotFound), errors.Is(err, shared.ErrLockNotAcquired):
				// Orphaned or busy enrollments are picked up by the next run.
				stats.Skipped++
			default:
				stats.Failed++
				j.log.Error("failed to reconcile enrollment",
					logger.EnrollmentID(e.ID),
					logger.StudentID(e.StudentID),
					logger.CourseID(e.CourseID),
					logger.Err(err),
				)
			}
		}(e)
	}

	wg.Wait()
}

func (j *ReconcileProgressJob) finish(stats *ReconcileStats, startedAt time.Time) {
	stats.Duration = time.Since(startedAt)
	j.lastStats.Store(stats)
}

// LastStats returns statistics of the last run, or nil before the first run.
func (j *ReconcileProgressJob) LastStats() *ReconcileStats {
	if v := j.lastStats.Load(); v != nil {
		return v.(*ReconcileStats)
	}
	return nil
}
