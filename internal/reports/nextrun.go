package reports

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// NextRunAt computes the next firing time for a schedule, strictly after
// now. The calculation is pure: it reads only the schedule's recurrence
// fields and the reference instant, so the scheduler and the API compute
// identical timestamps.
func NextRunAt(schedule *ReportSchedule, now time.Time) (time.Time, error) {
	if schedule.CronExpression != nil && *schedule.CronExpression != "" {
		return nextCronRun(*schedule.CronExpression, schedule.Timezone, now)
	}

	loc := loadLocation(schedule.Timezone)
	hour, minute, err := parseTimeOfDay(schedule.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)

	switch schedule.Cadence {
	case CadenceDaily:
		next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next.UTC(), nil

	case CadenceWeekly:
		target := time.Monday
		if schedule.DayOfWeek != nil {
			target = time.Weekday(*schedule.DayOfWeek % 7)
		}
		next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		for next.Weekday() != target || !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next.UTC(), nil

	case CadenceMonthly:
		day := 1
		if schedule.DayOfMonth != nil {
			day = *schedule.DayOfMonth
		}
		next := monthlyOccurrence(local.Year(), local.Month(), day, hour, minute, loc)
		if !next.After(now) {
			next = monthlyOccurrence(local.Year(), local.Month()+1, day, hour, minute, loc)
		}
		return next.UTC(), nil

	case CadenceQuarterly:
		day := 1
		if schedule.DayOfMonth != nil {
			day = *schedule.DayOfMonth
		}
		// Quarters open in January, April, July and October.
		for offset := 0; offset <= 12; offset += 3 {
			month := firstMonthOfQuarter(local.Month()) + time.Month(offset)
			next := monthlyOccurrence(local.Year(), month, day, hour, minute, loc)
			if next.After(now) {
				return next.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("failed to find next quarterly occurrence")

	default:
		return time.Time{}, fmt.Errorf("unsupported cadence %q", string(schedule.Cadence))
	}
}

func nextCronRun(expr, tz string, now time.Time) (time.Time, error) {
	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	next := spec.Next(now.In(loadLocation(tz)))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q never fires", expr)
	}
	return next.UTC(), nil
}

// monthlyOccurrence builds the occurrence for a given year/month, clamping
// the day to the month's last day so a day-31 schedule still fires in
// February.
func monthlyOccurrence(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	// time.Date normalizes month overflow (month 13 becomes January next year)
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	lastDay := firstOfMonth.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	if day < 1 {
		day = 1
	}
	return time.Date(firstOfMonth.Year(), firstOfMonth.Month(), day, hour, minute, 0, 0, loc)
}

func firstMonthOfQuarter(m time.Month) time.Month {
	switch {
	case m >= time.October:
		return time.October
	case m >= time.July:
		return time.July
	case m >= time.April:
		return time.April
	default:
		return time.January
	}
}

func parseTimeOfDay(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q, expected HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in time of day %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in time of day %q", s)
	}
	return hour, minute, nil
}

func loadLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
