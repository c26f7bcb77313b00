package job

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"leadestate_server/pkg/apperr"
)

// Schedule yields run times for a job.
type Schedule interface {
	// Next returns the first run time strictly after t.
	Next(t time.Time) time.Time
	// Interval is the nominal gap between runs.
	Interval() time.Duration
}

// ParseSchedule accepts "*/N * * * *", "* * * * *" and "@every <duration>".
func ParseSchedule(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)

	if rest, ok := strings.CutPrefix(expr, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil || d < time.Second {
			return nil, apperr.ConfigError(fmt.Sprintf("invalid schedule %q: duration must be at least 1s", expr))
		}
		return everySchedule(d), nil
	}

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, apperr.ConfigError(fmt.Sprintf("invalid schedule %q: expected 5 fields", expr))
	}
	for _, f := range fields[1:] {
		if f != "*" {
			return nil, apperr.ConfigError(fmt.Sprintf("unsupported schedule %q: only the minute field may be set", expr))
		}
	}

	minute := fields[0]
	if minute == "*" {
		return minuteStep(1), nil
	}
	step, ok := strings.CutPrefix(minute, "*/")
	if !ok {
		return nil, apperr.ConfigError(fmt.Sprintf("unsupported schedule %q: minute must be * or */N", expr))
	}
	n, err := strconv.Atoi(step)
	if err != nil || n < 1 || n > 59 {
		return nil, apperr.ConfigError(fmt.Sprintf("invalid schedule %q: step must be 1-59", expr))
	}
	return minuteStep(n), nil
}

// minuteStep fires on minutes divisible by N, like cron's */N.
type minuteStep int

func (s minuteStep) Next(t time.Time) time.Time {
	next := t.Truncate(time.Minute).Add(time.Minute)
	for next.Minute()%int(s) != 0 {
		next = next.Add(time.Minute)
	}
	return next
}

func (s minuteStep) Interval() time.Duration {
	return time.Duration(s) * time.Minute
}

type everySchedule time.Duration

func (s everySchedule) Next(t time.Time) time.Time {
	return t.Add(time.Duration(s))
}

func (s everySchedule) Interval() time.Duration {
	return time.Duration(s)
}
