package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/lms-backend/pkg/logger"
)

type funcJob struct {
	name string
	runs atomic.Int32
	fn   func(ctx context.Context) error
}

func (j *funcJob) Name() string        { return j.name }
func (j *funcJob) Description() string { return "test job " + j.name }
func (j *funcJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.fn == nil {
		return nil
	}
	return j.fn(ctx)
}

func newTestScheduler(timeout time.Duration) *Scheduler {
	return NewScheduler(SchedulerConfig{
		Logger:     logger.Nop(),
		JobTimeout: timeout,
	})
}

func TestParseCron(t *testing.T) {
	s, err := ParseCron("*/15 * * * *")
	require.NoError(t, err)
	assert.Equal(t, "*/15 * * * *", s.String())

	from := time.Date(2026, 5, 4, 10, 7, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 5, 4, 10, 15, 0, 0, time.UTC), s.Next(from))

	every, err := ParseCron("@every 1h")
	require.NoError(t, err)
	assert.Equal(t, from.Add(time.Hour), every.Next(from))

	_, err = ParseCron("every day")
	assert.Error(t, err)
	assert.Panics(t, func() { MustParseCron("61 * * * *") })
}

func TestRegister(t *testing.T) {
	s := newTestScheduler(0)
	job := &funcJob{name: "a"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Hour)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&funcJob{name: "b"}, nil), ErrNilSchedule)
	assert.ErrorIs(t, s.SetEnabled("missing", true), ErrJobNotFound)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "@every 1h0m0s", jobs[0].Schedule)
	assert.True(t, jobs[0].Enabled)
}

func TestRunNow(t *testing.T) {
	s := newTestScheduler(0)
	boom := errors.New("boom")
	ok := &funcJob{name: "ok"}
	bad := &funcJob{name: "bad", fn: func(context.Context) error { return boom }}
	panicky := &funcJob{name: "panicky", fn: func(context.Context) error { panic("nil map") }}
	for _, j := range []*funcJob{ok, bad, panicky} {
		require.NoError(t, s.Register(j, NewIntervalSchedule(time.Hour)))
	}
	ctx := context.Background()

	res, err := s.RunNow(ctx, "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	_, err = s.RunNow(ctx, "bad")
	assert.ErrorIs(t, err, boom)

	_, err = s.RunNow(ctx, "panicky")
	assert.ErrorIs(t, err, ErrJobPanicked)

	_, err = s.RunNow(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	jobs := s.ListJobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, "bad", jobs[0].Name)
	assert.Equal(t, int64(1), jobs[0].FailCount)
	assert.Equal(t, int64(1), jobs[1].RunCount)
	assert.True(t, jobs[1].LastResult.Success)
	assert.Len(t, s.GetHistory(0), 3)
	last := s.GetHistory(1)
	require.Len(t, last, 1)
	assert.Equal(t, "panicky", last[0].JobName)
}

func TestRunNow_JobTimeout(t *testing.T) {
	s := newTestScheduler(20 * time.Millisecond)
	slow := &funcJob{name: "slow", fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	require.NoError(t, s.Register(slow, NewIntervalSchedule(time.Hour)))

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartRunsDueJobsAndStops(t *testing.T) {
	s := newTestScheduler(time.Second)
	job := &funcJob{name: "tick"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	info := s.ListJobs()[0]
	assert.False(t, info.PrevRun.IsZero())
	assert.Equal(t, job.runs.Load(), int32(info.RunCount))
}

func TestHistoryIsBounded(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Logger: logger.Nop(), MaxHistorySize: 2})
	require.NoError(t, s.Register(&funcJob{name: "a"}, NewIntervalSchedule(time.Hour)))

	for i := 0; i < 5; i++ {
		_, err := s.RunNow(context.Background(), "a")
		require.NoError(t, err)
	}
	assert.Len(t, s.GetHistory(0), 2)
	assert.Equal(t, int64(5), s.ListJobs()[0].RunCount)
}

func TestSlowJobDoesNotOverlap(t *testing.T) {
	s := newTestScheduler(time.Second)
	var concurrent, maxConcurrent atomic.Int32
	job := &funcJob{name: "slow", fn: func(ctx context.Context) error {
		n := concurrent.Add(1)
		defer concurrent.Add(-1)
		for {
			m := maxConcurrent.Load()
			if n <= m || maxConcurrent.CompareAndSwap(m, n) {
				break
			}
		}
		select {
		case <-time.After(60 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil
	}}
	require.NoError(t, s.Register(job, NewIntervalSchedule(5*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Equal(t, int32(1), maxConcurrent.Load())
}

func TestDisabledJobDoesNotRun(t *testing.T) {
	s := newTestScheduler(time.Second)
	job := &funcJob{name: "off"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(5*time.Millisecond)))
	require.NoError(t, s.SetEnabled("off", false))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Zero(t, job.runs.Load())
}
