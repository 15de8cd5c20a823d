package cron

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/ragbench/internal/config"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Schedule kinds.
const (
	KindCron  = "cron"
	KindEvery = "every"
)

// Schedule is a parsed benchmark schedule.
type Schedule struct {
	Kind     string
	CronExpr string
	Every    time.Duration
	Timezone string

	expr cron.Schedule
	loc  *time.Location
}

// NewSchedule parses a schedule config. A cron expression wins over an
// interval when both are set.
func NewSchedule(cfg config.ScheduleConfig) (Schedule, error) {
	sched := Schedule{
		CronExpr: strings.TrimSpace(cfg.Cron),
		Every:    cfg.Every,
		Timezone: strings.TrimSpace(cfg.Timezone),
	}
	if sched.CronExpr == "" && sched.Every <= 0 {
		return Schedule{}, fmt.Errorf("schedule.cron or schedule.every is required")
	}
	if sched.Timezone != "" {
		loc, err := time.LoadLocation(sched.Timezone)
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid timezone %q: %w", sched.Timezone, err)
		}
		sched.loc = loc
	}
	if sched.CronExpr != "" {
		expr, err := cronParser.Parse(sched.CronExpr)
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid cron expression: %w", err)
		}
		sched.expr = expr
		sched.Kind = KindCron
		return sched, nil
	}
	sched.Kind = KindEvery
	return sched, nil
}

// Next returns the first run time after now.
func (s Schedule) Next(now time.Time) (time.Time, error) {
	switch s.Kind {
	case KindEvery:
		if s.Every <= 0 {
			return time.Time{}, fmt.Errorf("every schedule missing duration")
		}
		return now.Add(s.Every), nil
	case KindCron:
		if s.expr == nil {
			return time.Time{}, fmt.Errorf("cron schedule missing expression")
		}
		if s.loc != nil {
			now = now.In(s.loc)
		}
		next := s.expr.Next(now)
		if next.IsZero() {
			return time.Time{}, fmt.Errorf("cron expression %q never fires", s.CronExpr)
		}
		return next, nil
	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}

// String describes the schedule for logs.
func (s Schedule) String() string {
	if s.Kind == KindEvery {
		return "every " + s.Every.String()
	}
	if s.Timezone != "" {
		return s.CronExpr + " (" + s.Timezone + ")"
	}
	return s.CronExpr
}
