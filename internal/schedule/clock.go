package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// TimeOfDay is an offset from local midnight in [0, 24h).
//
// Text form is "HH:MM:SS"; "HH:MM" is accepted on input.
type TimeOfDay time.Duration

// At builds a TimeOfDay from hour and minute.
func At(hour, minute int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute).wrap()
}

// ClockOf returns the time-of-day component of t in t's location.
func ClockOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

// Add moves the time-of-day forward by d, wrapping around midnight.
func (c TimeOfDay) Add(d time.Duration) TimeOfDay {
	return TimeOfDay(time.Duration(c) + d).wrap()
}

func (c TimeOfDay) wrap() TimeOfDay {
	d := time.Duration(c) % day
	if d < 0 {
		d += day
	}
	return TimeOfDay(d)
}

// On returns the instant at this time-of-day on the given date.
func (c TimeOfDay) On(d Date, loc *time.Location) time.Time {
	v := time.Duration(c)
	h := int(v / time.Hour)
	v -= time.Duration(h) * time.Hour
	m := int(v / time.Minute)
	v -= time.Duration(m) * time.Minute
	s := int(v / time.Second)
	v -= time.Duration(s) * time.Second
	return time.Date(d.Year, d.Month, d.Day, h, m, s, int(v), loc)
}

func (c TimeOfDay) String() string {
	v := time.Duration(c.wrap())
	h := v / time.Hour
	m := (v % time.Hour) / time.Minute
	s := (v % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func (c TimeOfDay) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	s := strings.TrimSpace(raw)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM or HH:MM:SS", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	sec := 0
	if len(parts) == 3 {
		sec, err = strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("invalid second in %q", raw)
		}
	}
	return TimeOfDay(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second), nil
}

// Date is a calendar date with no time-of-day and no location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// NewDate builds a Date, normalizing out-of-range components the way time.Date does.
func NewDate(year int, month time.Month, dayOfMonth int) Date {
	return DateOf(time.Date(year, month, dayOfMonth, 0, 0, 0, 0, time.UTC))
}

func (d Date) IsZero() bool { return d.Year == 0 && d.Month == 0 && d.Day == 0 }

// Midnight returns the start of the date in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) Weekday() time.Weekday { return d.Midnight(time.UTC).Weekday() }

func (d Date) AddDays(n int) Date {
	return DateOf(d.Midnight(time.UTC).AddDate(0, 0, n))
}

// AddMonths adds calendar months. The day is clamped to the last day of the
// target month, so Jan 31 + 1 month is Feb 28 (or 29).
func (d Date) AddMonths(n int) Date {
	total := int(d.Month) - 1 + n
	y := d.Year + total/12
	m := total % 12
	if m < 0 {
		m += 12
		y--
	}
	month := time.Month(m + 1)
	dd := d.Day
	if last := daysIn(y, month); dd > last {
		dd = last
	}
	return Date{Year: y, Month: month, Day: dd}
}

// AddYears adds calendar years, clamping Feb 29 to Feb 28 in non-leap years.
func (d Date) AddYears(n int) Date { return d.AddMonths(12 * n) }

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	v, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return DateOf(t), nil
}

// Weekday is a time.Weekday with a text form ("Monday").
type Weekday time.Weekday

func (w Weekday) MarshalText() ([]byte, error) {
	if w < 0 || w > 6 {
		return nil, fmt.Errorf("invalid weekday %d", int(w))
	}
	return []byte(time.Weekday(w).String()), nil
}

func (w *Weekday) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 6 {
			return fmt.Errorf("invalid weekday %d", n)
		}
		*w = Weekday(n)
		return nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := d.String()
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			*w = Weekday(d)
			return nil
		}
	}
	return fmt.Errorf("invalid weekday %q", s)
}

// Weekdays filters the days a time-of-day schedule runs on.
// An empty set means every day.
type Weekdays []Weekday

// Days builds a Weekdays set.
func Days(ds ...time.Weekday) Weekdays {
	if len(ds) == 0 {
		return nil
	}
	out := make(Weekdays, 0, len(ds))
	for _, d := range ds {
		out = append(out, Weekday(d))
	}
	return out
}

// Allows reports whether the filter admits d.
func (w Weekdays) Allows(d time.Weekday) bool {
	if len(w) == 0 {
		return true
	}
	for _, x := range w {
		if time.Weekday(x) == d {
			return true
		}
	}
	return false
}
