package models

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleType distinguishes the two scheduled-trigger flavors.
type ScheduleType string

const (
	ScheduleTypeDelay ScheduleType = "delay" // fire once a duration has elapsed
	ScheduleTypeCron  ScheduleType = "cron"  // fire at the next cron activation
)

// Schedule is the trigger configuration of a scheduled transition. The
// reference point is always the instance's UpdatedAt: a delay fires when
// UpdatedAt + Duration has passed, a cron expression fires when its first
// activation after UpdatedAt has passed.
type Schedule struct {
	Type       ScheduleType `json:"type"`
	Duration   string       `json:"duration,omitempty"`   // ISO-8601, days and smaller only
	Expression string       `json:"expression,omitempty"` // standard 5-field cron
	TimeZone   string       `json:"timeZone,omitempty"`
}

// Due reports whether the schedule should fire, given the instance's last
// update time and the current time.
func (s *Schedule) Due(updatedAt, now time.Time) (bool, error) {
	location := time.UTC

	if s.TimeZone != "" {
		loc, err := time.LoadLocation(s.TimeZone)
		if err != nil {
			return false, fmt.Errorf("unknown time zone %q: %w", s.TimeZone, err)
		}

		location = loc
	}

	switch s.Type {
	case ScheduleTypeDelay:
		duration, err := ParseISODuration(s.Duration)
		if err != nil {
			return false, err
		}

		return !now.In(location).Before(updatedAt.Add(duration)), nil

	case ScheduleTypeCron:
		spec, err := cron.ParseStandard(s.Expression)
		if err != nil {
			return false, fmt.Errorf("invalid cron expression %q: %w", s.Expression, err)
		}

		next := spec.Next(updatedAt.In(location))

		return !next.IsZero() && !now.In(location).Before(next), nil

	default:
		return false, fmt.Errorf("unsupported schedule type %q", s.Type)
	}
}

var isoDurationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

var ErrInvalidDuration = errors.New("invalid ISO 8601 duration")

// ParseISODuration parses an ISO-8601 duration limited to day, hour, minute
// and second components. Calendar components (years, months) are rejected.
func ParseISODuration(value string) (time.Duration, error) {
	match := isoDurationPattern.FindStringSubmatch(value)
	if match == nil || value == "P" || value == "PT" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, value)
	}

	days := parseDurationGroup(match[1])
	hours := parseDurationGroup(match[2])
	minutes := parseDurationGroup(match[3])
	seconds := parseDurationGroup(match[4])

	return time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second, nil
}

func parseDurationGroup(group string) int {
	if group == "" {
		return 0
	}

	n, err := strconv.Atoi(group)
	if err != nil {
		return 0
	}

	return n
}
