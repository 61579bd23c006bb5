// Package clock provides the day-bucketing helper the post expiry model
// (spec.md §3) is built on.
package clock

import "time"

// Today returns the current integer day count since the Unix epoch, UTC.
func Today() int {
	return DayOf(time.Now())
}

// DayOf returns the integer day count since the Unix epoch for t, UTC.
func DayOf(t time.Time) int {
	return int(t.UTC().Unix() / 86400)
}
