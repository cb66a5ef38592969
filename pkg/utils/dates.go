package utils

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar dates in requests and exports
const DateLayout = "2006-01-02"

// LocalDay truncates t to midnight of its calendar day in loc.
// Both "now" and every stored due date go through this conversion before
// any day comparison.
func LocalDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// AddDays moves a local day by n calendar days, keeping it at midnight
// across DST transitions
func AddDays(day time.Time, n int) time.Time {
	return day.AddDate(0, 0, n)
}

// ParseLocalDate parses a YYYY-MM-DD string as midnight in loc
func ParseLocalDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", value, err)
	}
	return t, nil
}

// SameDay reports whether a and b fall on the same calendar day in loc
func SameDay(a, b time.Time, loc *time.Location) bool {
	return LocalDay(a, loc).Equal(LocalDay(b, loc))
}
