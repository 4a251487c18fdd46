package schedule

import (
	"testing"
	"time"
)

// 2026-03-02 is a Monday.
func at(day, hour, minute, sec int) time.Time {
	return time.Date(2026, time.March, day, hour, minute, sec, 0, time.UTC)
}

func TestDurationActiveAcrossMidnight(t *testing.T) {
	t.Parallel()
	s := NewDuration("night", At(23, 0), 120)

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{name: "before start", t: at(2, 22, 0, 0), want: false},
		{name: "same day", t: at(2, 23, 30, 0), want: true},
		{name: "next day", t: at(3, 0, 30, 0), want: true},
		{name: "wrapped end inclusive", t: at(3, 1, 0, 0), want: true},
		{name: "after wrapped end", t: at(3, 1, 0, 1), want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := s.IsActiveAt(tt.t); got != tt.want {
				t.Fatalf("IsActiveAt(%s) = %v, want %v", tt.t.Format(time.RFC3339), got, tt.want)
			}
		})
	}
}

func TestDurationBoundariesInclusive(t *testing.T) {
	t.Parallel()
	s := NewDuration("morning", At(10, 0), 60)
	if !s.IsActiveAt(at(2, 10, 0, 0)) {
		t.Fatal("expected active at start")
	}
	if !s.IsActiveAt(at(2, 11, 0, 0)) {
		t.Fatal("expected active at end")
	}
	if s.IsActiveAt(at(2, 9, 59, 59)) {
		t.Fatal("expected inactive before start")
	}
}

func TestDisabledNeverActive(t *testing.T) {
	t.Parallel()
	schedules := []*Schedule{
		NewDuration("d", At(0, 0), 23*60+59),
		NewTimeRange("r", At(0, 0), At(23, 59)),
		NewRecurring("p", Period{Kind: PeriodDays, Value: 1}),
	}
	if err := schedules[2].StartOccurrences(DateOf(at(1, 0, 0, 0)), at(1, 0, 0, 0)); err != nil {
		t.Fatalf("StartOccurrences: %v", err)
	}
	for _, s := range schedules {
		if !s.IsActiveAt(at(2, 12, 0, 0)) {
			t.Fatalf("%s: expected active while enabled", s.Kind)
		}
		s.Enabled = false
		for h := 0; h < 24; h++ {
			if s.IsActiveAt(at(2, h, 0, 0)) {
				t.Fatalf("%s: disabled schedule active at %02d:00", s.Kind, h)
			}
		}
		if _, ok := s.NextActivation(at(2, 12, 0, 0)); ok {
			t.Fatalf("%s: disabled schedule has a next activation", s.Kind)
		}
	}
}

func TestEmptyFilterIgnoresDate(t *testing.T) {
	t.Parallel()
	s := NewTimeRange("lights", At(18, 0), At(22, 0))
	for d := 1; d <= 14; d++ {
		if !s.IsActiveAt(at(d, 20, 0, 0)) {
			t.Fatalf("expected active on March %d", d)
		}
		if s.IsActiveAt(at(d, 12, 0, 0)) {
			t.Fatalf("expected inactive at noon on March %d", d)
		}
	}
}

func TestWeekdayFilter(t *testing.T) {
	t.Parallel()
	s := NewDuration("weekend", At(8, 0), 30, time.Saturday, time.Sunday)
	if s.IsActiveAt(at(2, 8, 10, 0)) {
		t.Fatal("expected inactive on Monday")
	}
	if !s.IsActiveAt(at(7, 8, 10, 0)) {
		t.Fatal("expected active on Saturday")
	}
}

func TestRangeSpanningMidnightFiltersByInstantWeekday(t *testing.T) {
	t.Parallel()
	// The filter is checked against the instant's own weekday, so the
	// after-midnight tail needs its day allowed too.
	s := NewTimeRange("late", At(22, 0), At(2, 0), time.Monday)
	if !s.IsActiveAt(at(2, 23, 0, 0)) {
		t.Fatal("expected active Monday 23:00")
	}
	if !s.IsActiveAt(at(2, 1, 0, 0)) {
		t.Fatal("expected active Monday 01:00")
	}
	if s.IsActiveAt(at(3, 1, 0, 0)) {
		t.Fatal("expected inactive Tuesday 01:00")
	}
}

func TestNextActivation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		s      *Schedule
		from   time.Time
		want   time.Time
		wantOK bool
	}{
		{name: "later today", s: NewDuration("a", At(10, 0), 5), from: at(2, 9, 0, 0), want: at(2, 10, 0, 0), wantOK: true},
		{name: "exactly at start rolls to tomorrow", s: NewDuration("a", At(10, 0), 5), from: at(2, 10, 0, 0), want: at(3, 10, 0, 0), wantOK: true},
		{name: "filtered to friday", s: NewTimeRange("b", At(7, 0), At(8, 0), time.Friday), from: at(2, 6, 0, 0), want: at(6, 7, 0, 0), wantOK: true},
		{name: "same weekday next week", s: NewTimeRange("b", At(7, 0), At(8, 0), time.Monday), from: at(2, 9, 0, 0), want: at(9, 7, 0, 0), wantOK: true},
		{name: "filter matches nothing", s: &Schedule{Kind: KindDuration, Name: "c", Enabled: true, Duration: &DurationWindow{Start: At(1, 0), Days: Weekdays{Weekday(9)}}}, from: at(2, 0, 0, 0), wantOK: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.s.NextActivation(tt.from)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !got.Equal(tt.want) {
				t.Fatalf("NextActivation = %s, want %s", got, tt.want)
			}
			if got.Before(tt.from) || got.After(tt.from.AddDate(0, 0, 7)) {
				t.Fatalf("NextActivation %s outside [from, from+7d]", got)
			}
		})
	}
}

func TestNextDeactivation(t *testing.T) {
	t.Parallel()
	d := NewDuration("a", At(23, 0), 90)
	got, ok := d.NextDeactivation(at(2, 12, 0, 0))
	if !ok || !got.Equal(at(3, 0, 30, 0)) {
		t.Fatalf("duration NextDeactivation = %s (ok=%v), want %s", got, ok, at(3, 0, 30, 0))
	}

	r := NewTimeRange("b", At(22, 0), At(6, 0))
	got, ok = r.NextDeactivation(at(3, 3, 0, 0))
	if !ok || !got.Equal(at(3, 6, 0, 0)) {
		t.Fatalf("wrapped tail NextDeactivation = %s (ok=%v), want %s", got, ok, at(3, 6, 0, 0))
	}
	got, ok = r.NextDeactivation(at(2, 23, 0, 0))
	if !ok || !got.Equal(at(3, 6, 0, 0)) {
		t.Fatalf("pre-midnight NextDeactivation = %s (ok=%v), want %s", got, ok, at(3, 6, 0, 0))
	}

	plain := NewTimeRange("c", At(9, 0), At(17, 0))
	got, ok = plain.NextDeactivation(at(2, 12, 0, 0))
	if !ok || !got.Equal(at(2, 17, 0, 0)) {
		t.Fatalf("plain NextDeactivation = %s (ok=%v), want %s", got, ok, at(2, 17, 0, 0))
	}
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()
	v, err := ParseTimeOfDay("07:30")
	if err != nil || v != At(7, 30) {
		t.Fatalf("ParseTimeOfDay(07:30) = %v, %v", v, err)
	}
	v, err = ParseTimeOfDay("07:30:15")
	if err != nil || v.String() != "07:30:15" {
		t.Fatalf("ParseTimeOfDay(07:30:15) = %v, %v", v, err)
	}
	for _, bad := range []string{"", "7", "24:00", "12:60", "aa:bb"} {
		if _, err := ParseTimeOfDay(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestDateAddMonthsClamps(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from Date
		n    int
		want Date
	}{
		{from: NewDate(2026, time.January, 31), n: 1, want: NewDate(2026, time.February, 28)},
		{from: NewDate(2028, time.January, 31), n: 1, want: NewDate(2028, time.February, 29)},
		{from: NewDate(2026, time.November, 15), n: 3, want: NewDate(2027, time.February, 15)},
		{from: NewDate(2028, time.February, 29), n: 12, want: NewDate(2029, time.February, 28)},
	}
	for _, tt := range tests {
		if got := tt.from.AddMonths(tt.n); got != tt.want {
			t.Fatalf("%s + %d months = %s, want %s", tt.from, tt.n, got, tt.want)
		}
	}
}
