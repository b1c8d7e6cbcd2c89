// Package duespec turns user-supplied due specifications into absolute
// reminder instants.
//
// Two forms are supported:
//   - Absolute: "2024-12-05 14:30" (local time)
//   - Relative: "через 30 минут" (magnitude + unit, anchored to now)
//
// Relative offsets in seconds..weeks are fixed-duration; months and years
// use calendar arithmetic (Jan 31 + 1 month lands on the last day of
// February, not 30 days later).
package duespec

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidUnit      = errors.New("unknown time unit")
	ErrInvalidMagnitude = errors.New("magnitude must be a positive integer")
	ErrInvalidDueSpec   = errors.New("invalid due specification")
)

// Unit is a canonical time unit for relative offsets.
type Unit int

const (
	Seconds Unit = iota
	Minutes
	Hours
	Days
	Weeks
	Months
	Years
)

func (u Unit) String() string {
	switch u {
	case Seconds:
		return "seconds"
	case Minutes:
		return "minutes"
	case Hours:
		return "hours"
	case Days:
		return "days"
	case Weeks:
		return "weeks"
	case Months:
		return "months"
	case Years:
		return "years"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// unitSynonyms maps user-facing unit tokens (lowercased) to canonical units.
// Russian grammatical variants come from the bot's command surface; the
// English canonical names are accepted too.
var unitSynonyms = map[string]Unit{
	"секунды": Seconds, "секунду": Seconds, "секунд": Seconds, "seconds": Seconds,
	"минуты": Minutes, "минуту": Minutes, "минут": Minutes, "minutes": Minutes,
	"часа": Hours, "час": Hours, "часов": Hours, "hours": Hours,
	"дни": Days, "день": Days, "дней": Days, "days": Days,
	"недели": Weeks, "неделю": Weeks, "недель": Weeks, "weeks": Weeks,
	"месяцы": Months, "месяц": Months, "месяцев": Months, "months": Months,
	"годы": Years, "год": Years, "лет": Years, "years": Years,
}

// ParseUnit normalizes a unit token to its canonical unit.
func ParseUnit(token string) (Unit, error) {
	u, ok := unitSynonyms[strings.ToLower(strings.TrimSpace(token))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, token)
	}
	return u, nil
}

// Resolve returns the instant exactly magnitude units after now.
// It is a pure function: no clock access, no side effects.
func Resolve(now time.Time, magnitude int, unit Unit) (time.Time, error) {
	if magnitude <= 0 {
		return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidMagnitude, magnitude)
	}
	switch unit {
	case Seconds:
		return now.Add(time.Duration(magnitude) * time.Second), nil
	case Minutes:
		return now.Add(time.Duration(magnitude) * time.Minute), nil
	case Hours:
		return now.Add(time.Duration(magnitude) * time.Hour), nil
	case Days:
		return now.Add(time.Duration(magnitude) * 24 * time.Hour), nil
	case Weeks:
		return now.Add(time.Duration(magnitude) * 7 * 24 * time.Hour), nil
	case Months:
		return addMonths(now, magnitude), nil
	case Years:
		return addMonths(now, magnitude*12), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidUnit, unit)
	}
}

// addMonths advances t by n calendar months, clamping the day of month to
// the last valid day of the target month. time.AddDate is not used here
// because it normalizes overflow (Jan 31 + 1 month -> Mar 2/3).
func addMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	total := year*12 + int(month) - 1 + n
	ny, nm := total/12, time.Month(total%12+1)
	if last := daysInMonth(ny, nm); day > last {
		day = last
	}
	return time.Date(ny, nm, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// daysInMonth returns the number of days in the given month.
// Day 0 of the following month normalizes to the last day of this one.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
