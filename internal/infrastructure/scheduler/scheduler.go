// Package scheduler runs background jobs of the LMS worker, such as the
// periodic reconciliation of stored progress against the course structure.
// Timing is delegated to robfig/cron; this package adds per-run timeouts,
// panic capture, enable switches and a bounded run history.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/skillforge/lms-backend/pkg/logger"
)

var (
	ErrNilJob                  = errors.New("scheduler: nil job")
	ErrNilSchedule             = errors.New("scheduler: nil schedule")
	ErrJobAlreadyExists        = errors.New("scheduler: job already registered")
	ErrJobNotFound             = errors.New("scheduler: job not found")
	ErrJobPanicked             = errors.New("scheduler: job panicked")
	ErrSchedulerAlreadyRunning = errors.New("scheduler: already running")
	ErrSchedulerNotRunning     = errors.New("scheduler: not running")
)

// Job is a unit of background work.
type Job interface {
	Name() string
	Description() string
	// Run must return promptly once ctx is cancelled.
	Run(ctx context.Context) error
}

// Schedule is a cron.Schedule that can describe itself.
type Schedule interface {
	cron.Schedule
	String() string
}

// JobResult describes one finished run.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
	Manual      bool
}

// SchedulerConfig configures NewScheduler.
type SchedulerConfig struct {
	Logger *logger.Logger
	// Timezone for cron expressions. UTC when nil.
	Timezone *time.Location
	// JobTimeout bounds a single run. Zero means no limit.
	JobTimeout time.Duration
	// MaxHistorySize caps the results kept for GetHistory. Default 200.
	MaxHistorySize int
}

type entry struct {
	job      Job
	schedule Schedule
	id       cron.EntryID
	enabled  bool
	runs     int64
	failures int64
	last     *JobResult
}

// Scheduler runs registered jobs on their schedules. A scheduled run is
// skipped while the previous run of the same job is still going.
type Scheduler struct {
	log        *logger.Logger
	cron       *cron.Cron
	jobTimeout time.Duration
	maxHistory int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	history []JobResult
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("scheduler"))
	tz := cfg.Timezone
	if tz == nil {
		tz = time.UTC
	}
	if cfg.MaxHistorySize <= 0 {
		cfg.MaxHistorySize = 200
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log: log,
		cron: cron.New(
			cron.WithLocation(tz),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})),
		),
		jobTimeout: cfg.JobTimeout,
		maxHistory: cfg.MaxHistorySize,
		now:        time.Now,
		entries:    make(map[string]*entry),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Register adds job under its Name. Jobs may be registered before or after Start.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	e := &entry{job: job, schedule: schedule, enabled: true}
	e.id = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.mu.Lock()
		enabled, ctx := e.enabled, s.ctx
		s.mu.Unlock()
		if enabled {
			s.execute(ctx, e, false)
		}
	}))
	s.entries[name] = e

	s.log.Info("job registered", logger.String("job", name), logger.String("schedule", schedule.String()))
	return nil
}

// SetEnabled pauses or resumes the scheduled runs of a job. RunNow ignores it.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	e.enabled = enabled
	s.log.Info("job toggled", logger.String("job", name), logger.Bool("enabled", enabled))
	return nil
}

// Start begins firing schedules. Cancelling ctx cancels running jobs but
// does not stop the scheduler; call Stop for that.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()
	s.log.Info("scheduler started", logger.Int("jobs", len(s.entries)))
	return nil
}

// Stop stops firing, cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow runs a job immediately, outside its schedule, and returns its result.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobResult, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	res := s.execute(ctx, e, true)
	return &res, res.Error
}

func (s *Scheduler) execute(ctx context.Context, e *entry, manual bool) JobResult {
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}
	name := e.job.Name()

	res := JobResult{JobName: name, Manual: manual, StartedAt: s.now()}
	res.Error = runJob(ctx, e.job)
	res.CompletedAt = s.now()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)
	res.Success = res.Error == nil

	s.mu.Lock()
	e.runs++
	if res.Error != nil {
		e.failures++
	}
	e.last = &res
	s.history = append(s.history, res)
	if over := len(s.history) - s.maxHistory; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
	s.mu.Unlock()

	fields := []logger.Field{
		logger.String("job", name),
		logger.Bool("manual", manual),
		logger.Duration("duration", res.Duration),
	}
	if res.Error != nil {
		s.log.Error("job failed", append(fields, logger.Err(res.Error))...)
	} else {
		s.log.Info("job completed", fields...)
	}
	return res
}

func runJob(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Run(ctx)
}

// JobInfo is a read-only view of a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	Enabled     bool
	// PrevRun and NextRun come from the cron entry and are zero before Start.
	PrevRun    time.Time
	NextRun    time.Time
	RunCount   int64
	FailCount  int64
	LastResult *JobResult
}

// ListJobs returns all jobs ordered by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		ce := s.cron.Entry(e.id)
		out = append(out, JobInfo{
			Name:        name,
			Description: e.job.Description(),
			Schedule:    e.schedule.String(),
			Enabled:     e.enabled,
			PrevRun:     ce.Prev,
			NextRun:     ce.Next,
			RunCount:    e.runs,
			FailCount:   e.failures,
			LastResult:  e.last,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetHistory returns up to limit most recent results, oldest first.
// limit <= 0 returns everything kept.
func (s *Scheduler) GetHistory(limit int) []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	return append([]JobResult(nil), s.history[len(s.history)-limit:]...)
}

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Err(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
