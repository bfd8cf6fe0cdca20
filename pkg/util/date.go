package util

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// ParseDate accepts YYYY-MM-DD, YYYYMMDD and RFC3339 and returns midnight UTC of that calendar day.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{DateLayout, "20060102", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// ParseDateDefault parses s or returns def when s is empty or invalid.
func ParseDateDefault(s string, def time.Time) time.Time {
	if t, err := ParseDate(s); err == nil {
		return t
	}
	return def
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EachDay calls fn for every calendar day in [from, to], stopping at the first error.
func EachDay(from, to time.Time, fn func(day time.Time) error) error {
	for d := Day(from); !d.After(Day(to)); d = d.AddDate(0, 0, 1) {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}
