package core

import (
	"errors"
	"strings"
	"time"
)

const (
	// ISOLayout is the millisecond-precision UTC form written for createdAt.
	ISOLayout = "2006-01-02T15:04:05.000Z07:00"

	DayLayout             = "2006-01-02"
	DisplayDateLayout     = "02/01/2006"
	DisplayDateTimeLayout = "02/01/2006 15:04"

	// DateFallback is shown for missing or unparseable dates.
	DateFallback = "--/--/----"
)

var ErrUnparseableDate = errors.New("unparseable date")

// local date-time forms without an offset, interpreted in the caller's location
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// ParseDate parses a bare calendar date (local midnight) or an ISO date-time.
func ParseDate(s string) (time.Time, error) {
	return ParseDateIn(s, time.Local)
}

// ParseDateIn parses s like ParseDate. Bare dates and zoneless date-times are
// read in loc; date-times carrying an offset are converted to loc.
func ParseDateIn(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrUnparseableDate
	}
	if len(s) == len(DayLayout) {
		t, err := time.ParseInLocation(DayLayout, s, loc)
		if err != nil {
			return time.Time{}, ErrUnparseableDate
		}
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparseableDate
}

// FormatISO renders t as an ISO date-time in UTC with millisecond precision.
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// FormatDate formats a stored date string with layout in the local zone,
// returning DateFallback when the input is missing or unparseable.
func FormatDate(s, layout string) string {
	return FormatDateIn(s, layout, time.Local)
}

func FormatDateIn(s, layout string, loc *time.Location) string {
	t, err := ParseDateIn(s, loc)
	if err != nil {
		return DateFallback
	}
	if layout == "" {
		layout = DisplayDateLayout
	}
	return t.Format(layout)
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last nanosecond of t's day in t's location.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
