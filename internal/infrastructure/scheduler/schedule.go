package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CronSchedule runs a job on a standard five-field cron expression.
// Descriptors such as "@hourly" and "@every 15m" are accepted too.
type CronSchedule struct {
	spec     string
	schedule cron.Schedule
}

// ParseCron parses a cron expression.
func ParseCron(spec string) (*CronSchedule, error) {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid cron spec %q: %w", spec, err)
	}
	return &CronSchedule{spec: spec, schedule: s}, nil
}

// MustParseCron is like ParseCron but panics on an invalid expression.
func MustParseCron(spec string) *CronSchedule {
	s, err := ParseCron(spec)
	if err != nil {
		panic(err)
	}
	return s
}

// Next returns the next activation strictly after t.
func (s *CronSchedule) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// String returns the original expression.
func (s *CronSchedule) String() string {
	return s.spec
}

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}
