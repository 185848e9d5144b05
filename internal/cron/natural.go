package cron

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	inPattern    = regexp.MustCompile(`^in\s+(\d+)\s*(s|sec|secs|second|seconds|m|min|mins|minute|minutes|h|hr|hrs|hour|hours|d|day|days)$`)
	dayAtPattern = regexp.MustCompile(`^(today|tomorrow)(?:\s+at\s+(.+))?$`)
	meridiemTime = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?(am|pm)$`)
	clockTime    = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?$`)
)

var localLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseNaturalTime resolves expressions like "in 10 minutes",
// "tomorrow at 7:30pm", "today", RFC3339 instants, "2026-03-01 08:00" and
// "2026-03-01T08:00[:SS]". Day expressions without a time mean 09:00.
// Local forms are read in loc.
func ParseNaturalTime(expr string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	raw := strings.TrimSpace(expr)
	if raw == "" {
		return time.Time{}, fmt.Errorf("time expression is required")
	}
	normalized := strings.ToLower(raw)

	if m := inPattern.FindStringSubmatch(normalized); m != nil {
		value, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid amount %q: %w", m[1], err)
		}
		return now.Add(time.Duration(value) * unitDuration(m[2])), nil
	}

	if m := dayAtPattern.FindStringSubmatch(normalized); m != nil {
		local := now.In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		if m[1] == "tomorrow" {
			day = day.AddDate(0, 0, 1)
		}
		hour, minute, err := parseClock(m[2])
		if err != nil {
			return time.Time{}, err
		}
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), nil
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time expression: %s", expr)
}

func unitDuration(unit string) time.Duration {
	switch unit {
	case "m", "min", "mins", "minute", "minutes":
		return time.Minute
	case "h", "hr", "hrs", "hour", "hours":
		return time.Hour
	case "d", "day", "days":
		return 24 * time.Hour
	default:
		return time.Second
	}
}

func parseClock(token string) (int, int, error) {
	value := strings.ReplaceAll(strings.TrimSpace(token), " ", "")
	if value == "" {
		return 9, 0, nil
	}
	if m := meridiemTime.FindStringSubmatch(value); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		hour %= 12
		if m[3] == "pm" {
			hour += 12
		}
		return validClock(token, hour, minute)
	}
	if m := clockTime.FindStringSubmatch(value); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		return validClock(token, hour, minute)
	}
	return 0, 0, fmt.Errorf("invalid time format: %s", token)
}

func validClock(token string, hour, minute int) (int, int, error) {
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time format: %s", token)
	}
	return hour, minute, nil
}
