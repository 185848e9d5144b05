package cron

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
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

// ParseSchedule validates a cron expression or descriptor such as
// "@every 15m", "@hourly" or "0 9 * * *".
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("schedule is required")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// ScheduleInterval returns the first occurrence after now and the gap in
// whole seconds to the occurrence after it. Irregular expressions (such as
// "0 9 * * 1-5") are approximated by that first gap.
func ScheduleInterval(expr string, now time.Time) (time.Time, int, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, 0, err
	}
	if every, ok := schedule.(cron.ConstantDelaySchedule); ok {
		seconds := int(every.Delay / time.Second)
		return now.Add(every.Delay), seconds, nil
	}
	first := schedule.Next(now)
	second := schedule.Next(first)
	if first.IsZero() || second.IsZero() {
		return time.Time{}, 0, fmt.Errorf("schedule %q never fires", expr)
	}
	seconds := int(second.Sub(first) / time.Second)
	if seconds <= 0 {
		return time.Time{}, 0, fmt.Errorf("schedule %q fires more than once per second", expr)
	}
	return first, seconds, nil
}
