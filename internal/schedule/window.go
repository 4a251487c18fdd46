package schedule

import "time"

// lookaheadDays bounds the forward search for the next matching weekday.
// A filter that matches nothing within this window yields "no next time".
const lookaheadDays = 7

// DurationWindow runs for Minutes starting at Start on each allowed day.
type DurationWindow struct {
	Start   TimeOfDay `json:"start_time" yaml:"start_time"`
	Minutes int       `json:"duration_minutes" yaml:"duration_minutes"`
	Days    Weekdays  `json:"active_days,omitempty" yaml:"active_days,omitempty"`
}

// End is the time-of-day the window closes, wrapped past midnight.
func (w DurationWindow) End() TimeOfDay {
	return w.Start.Add(time.Duration(w.Minutes) * time.Minute)
}

func (w DurationWindow) activeAt(t time.Time) bool {
	if !w.Days.Allows(t.Weekday()) {
		return false
	}
	return inWindow(ClockOf(t), w.Start, w.End())
}

func (w DurationWindow) nextActivation(from time.Time) (time.Time, bool) {
	return nextOccurrenceOf(from, w.Start, w.Days)
}

func (w DurationWindow) nextDeactivation(from time.Time) (time.Time, bool) {
	on, ok := w.nextActivation(from)
	if !ok {
		return time.Time{}, false
	}
	return on.Add(time.Duration(w.Minutes) * time.Minute), true
}

// RangeWindow is on between On and Off (inclusive) on each allowed day.
type RangeWindow struct {
	On   TimeOfDay `json:"on_time" yaml:"on_time"`
	Off  TimeOfDay `json:"off_time" yaml:"off_time"`
	Days Weekdays  `json:"active_days,omitempty" yaml:"active_days,omitempty"`
}

// SpansMidnight reports whether the off time falls on the following day.
func (w RangeWindow) SpansMidnight() bool { return w.Off < w.On }

func (w RangeWindow) activeAt(t time.Time) bool {
	if !w.Days.Allows(t.Weekday()) {
		return false
	}
	return inWindow(ClockOf(t), w.On, w.Off)
}

func (w RangeWindow) nextActivation(from time.Time) (time.Time, bool) {
	return nextOccurrenceOf(from, w.On, w.Days)
}

func (w RangeWindow) nextDeactivation(from time.Time) (time.Time, bool) {
	// Inside the after-midnight tail of a range that started yesterday:
	// the off time is today even though the on time was not.
	if w.SpansMidnight() && ClockOf(from) <= w.Off && w.Days.Allows(from.Weekday()) {
		return w.Off.On(DateOf(from), from.Location()), true
	}
	return nextOccurrenceOf(from, w.Off, w.Days)
}

// inWindow applies the inclusive [start, end] test, treating end < start as
// a window that wraps past midnight.
func inWindow(tod, start, end TimeOfDay) bool {
	if end < start {
		return tod >= start || tod <= end
	}
	return tod >= start && tod <= end
}

// nextOccurrenceOf returns today at `at` if from is strictly before it and
// today is allowed, otherwise the first allowed day in the next
// lookaheadDays days.
func nextOccurrenceOf(from time.Time, at TimeOfDay, days Weekdays) (time.Time, bool) {
	today := DateOf(from)
	loc := from.Location()
	if ClockOf(from) < at && days.Allows(from.Weekday()) {
		return at.On(today, loc), true
	}
	for i := 1; i <= lookaheadDays; i++ {
		d := today.AddDays(i)
		if days.Allows(d.Weekday()) {
			return at.On(d, loc), true
		}
	}
	return time.Time{}, false
}
