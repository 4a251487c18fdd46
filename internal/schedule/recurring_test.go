package schedule

import (
	"errors"
	"testing"
	"time"
)

func primed(t *testing.T, p Period, start Date) *Schedule {
	t.Helper()
	s := NewRecurring("filter change", p)
	if err := s.StartOccurrences(start, start.Midnight(time.UTC)); err != nil {
		t.Fatalf("StartOccurrences: %v", err)
	}
	return s
}

func TestCompleteAdvancesFromCompletionDate(t *testing.T) {
	t.Parallel()
	s := primed(t, Period{Kind: PeriodDays, Value: 7}, NewDate(2026, time.March, 1))
	first := s.Recurring.Current.ID

	done := time.Date(2026, time.March, 4, 15, 0, 0, 0, time.UTC)
	closed, err := s.CompleteOccurrence(done, "replaced")
	if err != nil {
		t.Fatalf("CompleteOccurrence: %v", err)
	}
	if closed.ID != first || closed.Status != StatusCompleted {
		t.Fatalf("closed = %+v", closed)
	}
	if closed.CompletedDate == nil || *closed.CompletedDate != NewDate(2026, time.March, 4) {
		t.Fatalf("CompletedDate = %v", closed.CompletedDate)
	}
	if closed.Notes != "replaced" {
		t.Fatalf("Notes = %q", closed.Notes)
	}
	if s.Recurring.LastCompleted != closed {
		t.Fatal("completed occurrence not moved to last completed")
	}
	next := s.Recurring.Current
	if next == nil || next.Status != StatusPending {
		t.Fatalf("next = %+v", next)
	}
	if next.ScheduledDate != NewDate(2026, time.March, 11) {
		t.Fatalf("next date = %s, want 2026-03-11", next.ScheduledDate)
	}
	if next.ID == first {
		t.Fatal("successor reused the closed occurrence id")
	}
	if next.PeriodID != s.Recurring.Period.ID || next.PeriodID == "" {
		t.Fatalf("PeriodID = %q, want %q", next.PeriodID, s.Recurring.Period.ID)
	}
	if s.ModifiedAt == nil {
		t.Fatal("ModifiedAt not stamped")
	}
}

func TestSkipKeepsOriginalSlot(t *testing.T) {
	t.Parallel()
	original := NewDate(2026, time.March, 1)
	s := primed(t, Period{Kind: PeriodWeeks, Value: 1}, original)

	// Skipped three days late.
	skippedAt := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)
	closed, err := s.SkipOccurrence("away", skippedAt)
	if err != nil {
		t.Fatalf("SkipOccurrence: %v", err)
	}
	if closed.Status != StatusSkipped || closed.Notes != "away" {
		t.Fatalf("closed = %+v", closed)
	}
	if got := s.Recurring.Current.ScheduledDate; got != NewDate(2026, time.March, 8) {
		t.Fatalf("next date = %s, want 2026-03-08 (original + period)", got)
	}
	if s.Recurring.LastCompleted != nil {
		t.Fatal("skip must not populate last completed")
	}
}

func TestOccurrenceMisuse(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	s := NewRecurring("empty", Period{Kind: PeriodDays, Value: 1})

	if _, err := s.CompleteOccurrence(now, ""); !errors.Is(err, ErrNoCurrentOccurrence) {
		t.Fatalf("Complete err = %v, want ErrNoCurrentOccurrence", err)
	}
	if _, err := s.SkipOccurrence("", now); !errors.Is(err, ErrNoCurrentOccurrence) {
		t.Fatalf("Skip err = %v, want ErrNoCurrentOccurrence", err)
	}
	if err := s.StartOccurrences(DateOf(now), now); err != nil {
		t.Fatalf("StartOccurrences: %v", err)
	}
	if err := s.StartOccurrences(DateOf(now), now); !errors.Is(err, ErrOccurrenceExists) {
		t.Fatalf("second StartOccurrences err = %v, want ErrOccurrenceExists", err)
	}

	d := NewDuration("d", At(1, 0), 10)
	if _, err := d.CompleteOccurrence(now, ""); !errors.Is(err, ErrNotRecurring) {
		t.Fatalf("Complete on duration err = %v, want ErrNotRecurring", err)
	}
}

func TestPeriodNext(t *testing.T) {
	t.Parallel()
	from := NewDate(2026, time.January, 31)
	tests := []struct {
		name string
		p    Period
		want Date
	}{
		{name: "days", p: Period{Kind: PeriodDays, Value: 3}, want: NewDate(2026, time.February, 3)},
		{name: "days legacy fallback", p: Period{Kind: PeriodDays, LegacyDays: 10}, want: NewDate(2026, time.February, 10)},
		{name: "weeks default", p: Period{Kind: PeriodWeeks}, want: NewDate(2026, time.February, 7)},
		{name: "weeks", p: Period{Kind: PeriodWeeks, Value: 2}, want: NewDate(2026, time.February, 14)},
		{name: "months clamps", p: Period{Kind: PeriodMonths, Value: 1}, want: NewDate(2026, time.February, 28)},
		{name: "months default", p: Period{Kind: PeriodMonths}, want: NewDate(2026, time.February, 28)},
		{name: "years", p: Period{Kind: PeriodYears, Value: 2}, want: NewDate(2028, time.January, 31)},
		{name: "unknown kind", p: Period{Kind: "Fortnights", Value: 9, LegacyDays: 14}, want: NewDate(2026, time.February, 14)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Next(from); got != tt.want {
				t.Fatalf("Next = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRecurringActivity(t *testing.T) {
	t.Parallel()
	s := primed(t, Period{Kind: PeriodDays, Value: 30}, NewDate(2026, time.March, 5))

	if s.IsActiveAt(time.Date(2026, time.March, 4, 23, 59, 0, 0, time.UTC)) {
		t.Fatal("expected inactive before the scheduled date")
	}
	if !s.IsActiveAt(time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("expected active on the scheduled date")
	}
	if !s.IsActiveAt(time.Date(2026, time.April, 20, 12, 0, 0, 0, time.UTC)) {
		t.Fatal("expected active while overdue")
	}

	for _, from := range []time.Time{
		time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC),
	} {
		got, ok := s.NextActivation(from)
		if !ok || !got.Equal(time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("NextActivation(%s) = %s (ok=%v)", from, got, ok)
		}
	}
	if _, ok := s.NextDeactivation(time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)); ok {
		t.Fatal("recurring schedules never deactivate on their own")
	}
}
