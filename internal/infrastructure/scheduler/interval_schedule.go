package scheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Schedule defines when a job should run.
type Schedule interface {
	// String returns a human-readable representation of the schedule.
	String() string

	definition() gocron.JobDefinition
}

// IntervalSchedule runs a job at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every creates an IntervalSchedule.
func Every(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

func (s *IntervalSchedule) definition() gocron.JobDefinition {
	return gocron.DurationJob(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}

// WeeklySchedule runs a job once a week at a wall-clock time in the
// scheduler's location.
type WeeklySchedule struct {
	Weekday time.Weekday
	Hour    uint
	Minute  uint
}

// Weekly creates a WeeklySchedule.
func Weekly(day time.Weekday, hour, minute uint) *WeeklySchedule {
	return &WeeklySchedule{Weekday: day, Hour: hour, Minute: minute}
}

func (s *WeeklySchedule) definition() gocron.JobDefinition {
	return gocron.WeeklyJob(1,
		gocron.NewWeekdays(s.Weekday),
		gocron.NewAtTimes(gocron.NewAtTime(s.Hour, s.Minute, 0)))
}

// String returns the string representation of the schedule.
func (s *WeeklySchedule) String() string {
	return fmt.Sprintf("weekly %s %02d:%02d", s.Weekday, s.Hour, s.Minute)
}

// CronSchedule runs a job on a standard five-field cron expression.
type CronSchedule struct {
	Expr string
}

// Cron creates a CronSchedule.
func Cron(expr string) *CronSchedule {
	return &CronSchedule{Expr: expr}
}

func (s *CronSchedule) definition() gocron.JobDefinition {
	return gocron.CronJob(s.Expr, false)
}

// String returns the cron expression.
func (s *CronSchedule) String() string {
	return s.Expr
}
