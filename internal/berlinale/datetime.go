package berlinale

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	shortMonthFormat = "Jan"
	longMonthFormat  = "January"
	timestampLayout  = "2006-01-02T15:04"
)

var (
	ErrMalformedDay   = errors.New("malformed screening day")
	ErrMalformedClock = errors.New("malformed screening time")
)

// ParseMonth accepts English month abbreviations and full names, in any case.
func ParseMonth(name string) (time.Month, error) {
	name = strings.TrimSpace(name)
	for _, layout := range []string{shortMonthFormat, longMonthFormat} {
		if t, err := time.Parse(layout, name); err == nil {
			return t.Month(), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown month %q", ErrMalformedDay, name)
}

// ScreeningTime combines a "Feb 21" day and a "19:30" clock time into an
// instant in the given festival year.
func ScreeningTime(day, clock string, year int, loc *time.Location) (time.Time, error) {
	dayFields := strings.Fields(day)
	if len(dayFields) != 2 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDay, day)
	}
	month, err := ParseMonth(dayFields[0])
	if err != nil {
		return time.Time{}, err
	}
	dom, err := strconv.Atoi(dayFields[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformedDay, day, err)
	}

	clockFields := strings.Split(strings.TrimSpace(clock), ":")
	if len(clockFields) != 2 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedClock, clock)
	}
	hour, err := strconv.Atoi(clockFields[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformedClock, clock, err)
	}
	minute, err := strconv.Atoi(clockFields[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformedClock, clock, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: %q out of range", ErrMalformedClock, clock)
	}

	t := time.Date(year, month, dom, hour, minute, 0, 0, loc)
	if t.Month() != month || t.Day() != dom {
		return time.Time{}, fmt.Errorf("%w: %q is not a date in %d", ErrMalformedDay, day, year)
	}
	return t, nil
}

// FormatTimestamp renders t as "2020-02-21T19:30:00Z+01"; the "Z" is literal
// and followed by the signed hour offset.
func FormatTimestamp(t time.Time, utcOffsetHours int) string {
	return fmt.Sprintf("%s:00Z%+03d", t.Format(timestampLayout), utcOffsetHours)
}

func festivalZone(utcOffsetHours int) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+03d", utcOffsetHours), utcOffsetHours*60*60)
}
