package briefing

import "time"

// Window is an inclusive range of publish times.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// FullWindow covers yesterday 23:00 to today 05:30 in loc, so the morning run
// finishes ahead of a 06:00 delivery.
func FullWindow(date time.Time, loc *time.Location) Window {
	y, m, d := date.In(loc).Date()
	return Window{
		Start: time.Date(y, m, d-1, 23, 0, 0, 0, loc),
		End:   time.Date(y, m, d, 5, 30, 0, 0, loc),
	}
}

// UpdateWindow covers the three hours up to now.
func UpdateWindow(now time.Time) Window {
	return Window{Start: now.Add(-3 * time.Hour), End: now}
}
