package duespec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// absoluteLayout matches the "date time" pair the bot accepts: local time,
// minute precision.
const absoluteLayout = "2006-01-02 15:04"

// relativeMarker introduces a relative offset spec ("через 30 минут ...").
const relativeMarker = "через"

// Parse extracts a due instant and the reminder text from command fields.
//
// Accepted forms:
//
//	<YYYY-MM-DD> <HH:MM> <text...>
//	через <N> <unit> <text...>
//
// now anchors relative offsets; the returned text is never empty-trimmed
// here (the coordinator validates it).
func Parse(now time.Time, fields []string) (due time.Time, text string, err error) {
	if len(fields) == 0 {
		return time.Time{}, "", fmt.Errorf("%w: empty input", ErrInvalidDueSpec)
	}

	if strings.EqualFold(fields[0], relativeMarker) {
		if len(fields) < 4 {
			return time.Time{}, "", fmt.Errorf("%w: relative form needs magnitude, unit and text", ErrInvalidDueSpec)
		}
		magnitude, err := strconv.Atoi(fields[1])
		if err != nil {
			return time.Time{}, "", fmt.Errorf("%w: %q", ErrInvalidMagnitude, fields[1])
		}
		unit, err := ParseUnit(fields[2])
		if err != nil {
			return time.Time{}, "", err
		}
		due, err := Resolve(now, magnitude, unit)
		if err != nil {
			return time.Time{}, "", err
		}
		return due, strings.Join(fields[3:], " "), nil
	}

	if len(fields) < 3 {
		return time.Time{}, "", fmt.Errorf("%w: absolute form needs date, time and text", ErrInvalidDueSpec)
	}
	due, err = ParseAbsolute(fields[0] + " " + fields[1])
	if err != nil {
		return time.Time{}, "", err
	}
	return due, strings.Join(fields[2:], " "), nil
}

// ParseAbsolute parses a "YYYY-MM-DD HH:MM" pair in local time.
func ParseAbsolute(s string) (time.Time, error) {
	t, err := time.ParseInLocation(absoluteLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q (want YYYY-MM-DD HH:MM)", ErrInvalidDueSpec, s)
	}
	return t, nil
}

// FormatDue renders a due instant the way the bot shows it to users.
func FormatDue(t time.Time) string {
	return t.Format("02-01-2006 15:04")
}
