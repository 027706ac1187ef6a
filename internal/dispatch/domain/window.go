package domain

import "time"

// WorkingWindow is the daily service window in a single fixed zone.
// Start and End are offsets from midnight of the working day.
type WorkingWindow struct {
	Start    time.Duration
	End      time.Duration
	Location *time.Location
}

// DefaultWorkingWindow is 09:00:00 to 18:30:00 UTC, weekdays only.
func DefaultWorkingWindow() WorkingWindow {
	return WorkingWindow{
		Start:    9 * time.Hour,
		End:      18*time.Hour + 30*time.Minute,
		Location: time.UTC,
	}
}

// For returns the window bounds on the calendar day containing date.
func (w WorkingWindow) For(date time.Time) (start, end time.Time) {
	d := date.In(w.Location)
	midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, w.Location)
	return midnight.Add(w.Start), midnight.Add(w.End)
}

// IsWorkingDay reports whether date falls on a working weekday.
// Calendar exceptions (holidays) are the availability data source's
// concern, not computed here.
func (w WorkingWindow) IsWorkingDay(date time.Time) bool {
	switch date.In(w.Location).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// Clamp pins t into the window of its own day. On a non-working day the
// result is the window end, leaving no usable time.
func (w WorkingWindow) Clamp(t time.Time) time.Time {
	start, end := w.For(t)
	if !w.IsWorkingDay(t) {
		return end
	}
	if t.Before(start) {
		return start
	}
	if t.After(end) {
		return end
	}
	return t.In(w.Location)
}
