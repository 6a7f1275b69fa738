// Package ptr provides time pointer helpers for tests.
package ptr

import "time"

// Time returns a pointer to the given time.Time value.
func Time(v time.Time) *time.Time { return &v }

// Millis returns a pointer to the instant v milliseconds after the epoch.
func Millis(v int64) *time.Time {
	t := time.UnixMilli(v)
	return &t
}

// Date returns a UTC time for the given year, month, and day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DatePtr returns a pointer to Date(year, month, day).
func DatePtr(year int, month time.Month, day int) *time.Time {
	return Time(Date(year, month, day))
}
