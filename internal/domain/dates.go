package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for the date column.
const DateLayout = "2006-01-02"

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	DateLayout,
}

// ParseTimestamp accepts the timestamp layouts emitted by the providers.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &MalformedInputError{Field: "time", Reason: fmt.Sprintf("unparseable timestamp %q", s)}
}

// DateOf returns the calendar date portion of a timestamp, in the timestamp's own zone.
func DateOf(timestamp string) (string, error) {
	t, err := ParseTimestamp(timestamp)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout), nil
}

// YearOf returns the year of a YYYY-MM-DD date.
func YearOf(date string) (int, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return 0, &MalformedInputError{Field: "date", Reason: fmt.Sprintf("unparseable date %q", date)}
	}
	return t.Year(), nil
}

// DayOffset counts whole days from January 1 of year to date.
func DayOffset(date string, year int) (int, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return 0, &MalformedInputError{Field: "date", Reason: fmt.Sprintf("unparseable date %q", date)}
	}
	origin := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(origin).Hours() / 24), nil
}
