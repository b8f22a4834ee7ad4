// Package daybucket splits half-open time intervals at UTC midnight
// boundaries so session durations can be accumulated per calendar day.
package daybucket

import "time"

// Segment is the portion of an interval that falls on a single UTC date.
// Date is always midnight UTC of that day.
type Segment struct {
	Date     time.Time
	Duration time.Duration
}

// Split breaks [start, end) into per-UTC-day segments in chronological
// order. Segments are contiguous, never overlap, and sum exactly to
// end - start. An interval that does not move forward yields nil.
func Split(start, end time.Time) []Segment {
	if !end.After(start) {
		return nil
	}

	cursor := start.UTC()
	end = end.UTC()

	var segs []Segment
	for cursor.Before(end) {
		day := DateOf(cursor)
		next := day.AddDate(0, 0, 1)
		segEnd := next
		if end.Before(next) {
			segEnd = end
		}
		segs = append(segs, Segment{Date: day, Duration: segEnd.Sub(cursor)})
		cursor = segEnd
	}
	return segs
}

// DateOf returns midnight UTC of the day containing t.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
