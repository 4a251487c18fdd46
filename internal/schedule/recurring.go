package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoCurrentOccurrence is returned when completing or skipping a
	// recurring schedule that has nothing pending.
	ErrNoCurrentOccurrence = errors.New("no current occurrence")
	// ErrOccurrenceExists is returned when initializing a recurring schedule
	// that already has a pending occurrence.
	ErrOccurrenceExists = errors.New("recurring schedule already has a current occurrence")
	// ErrNotRecurring is returned by occurrence operations on other variants.
	ErrNotRecurring = errors.New("schedule is not recurring")
)

// PeriodKind is the calendar unit of a recurrence.
type PeriodKind string

const (
	PeriodDays   PeriodKind = "Days"
	PeriodWeeks  PeriodKind = "Weeks"
	PeriodMonths PeriodKind = "Months"
	PeriodYears  PeriodKind = "Years"
)

// Period describes how far apart occurrences are.
//
// LegacyDays is the fallback day count used when Value is unset (<= 0) for
// Days, and for any unrecognized Kind.
type Period struct {
	ID          string     `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string     `json:"name,omitempty" yaml:"name,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        PeriodKind `json:"kind" yaml:"kind"`
	Value       int        `json:"value,omitempty" yaml:"value,omitempty"`
	LegacyDays  int        `json:"legacy_days,omitempty" yaml:"legacy_days,omitempty"`
}

// Next returns the date one period after from.
func (p Period) Next(from Date) Date {
	n := p.Value
	switch PeriodKind(strings.TrimSpace(string(p.Kind))) {
	case PeriodDays:
		if n > 0 {
			return from.AddDays(n)
		}
		return from.AddDays(p.LegacyDays)
	case PeriodWeeks:
		return from.AddDays(orOne(n) * 7)
	case PeriodMonths:
		return from.AddMonths(orOne(n))
	case PeriodYears:
		return from.AddYears(orOne(n))
	default:
		return from.AddDays(p.LegacyDays)
	}
}

func orOne(n int) int {
	if n > 0 {
		return n
	}
	return 1
}

// OccurrenceStatus is the lifecycle state of one occurrence.
type OccurrenceStatus string

const (
	StatusPending   OccurrenceStatus = "Pending"
	StatusCompleted OccurrenceStatus = "Completed"
	StatusSkipped   OccurrenceStatus = "Skipped"
)

// Occurrence is one dated instance of a recurring schedule.
type Occurrence struct {
	ID            string           `json:"id" yaml:"id"`
	PeriodID      string           `json:"period_id" yaml:"period_id"`
	ScheduledDate Date             `json:"scheduled_date" yaml:"scheduled_date"`
	Status        OccurrenceStatus `json:"status" yaml:"status"`
	CompletedDate *Date            `json:"completed_date,omitempty" yaml:"completed_date,omitempty"`
	Notes         string           `json:"notes,omitempty" yaml:"notes,omitempty"`
	CreatedAt     time.Time        `json:"created_at" yaml:"created_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

func (o *Occurrence) clone() *Occurrence {
	if o == nil {
		return nil
	}
	cp := *o
	if o.CompletedDate != nil {
		d := *o.CompletedDate
		cp.CompletedDate = &d
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// Recurrence is the Recurring variant payload. Current is the single
// pending occurrence; LastCompleted is history only.
type Recurrence struct {
	Period        Period      `json:"period" yaml:"period"`
	Current       *Occurrence `json:"current_occurrence,omitempty" yaml:"current_occurrence,omitempty"`
	LastCompleted *Occurrence `json:"last_completed,omitempty" yaml:"last_completed,omitempty"`
}

func (r *Recurrence) clone() *Recurrence {
	cp := *r
	cp.Current = r.Current.clone()
	cp.LastCompleted = r.LastCompleted.clone()
	return &cp
}

// Due reports whether the current occurrence is scheduled on or before today.
func (r *Recurrence) Due(today Date) bool {
	return r.Current != nil && !r.Current.ScheduledDate.After(today)
}

func (r *Recurrence) activeAt(t time.Time) bool { return r.Due(DateOf(t)) }

func (r *Recurrence) nextActivation(from time.Time) (time.Time, bool) {
	if r.Current == nil {
		return time.Time{}, false
	}
	// Due today, overdue or in the future: always the scheduled date.
	return r.Current.ScheduledDate.Midnight(from.Location()), true
}

func (r *Recurrence) pending(on Date, at time.Time) *Occurrence {
	return &Occurrence{
		ID:            uuid.NewString(),
		PeriodID:      r.Period.ID,
		ScheduledDate: on,
		Status:        StatusPending,
		CreatedAt:     at.UTC(),
	}
}

// InitializeFirstOccurrence primes the recurrence with a pending occurrence
// on start. It assigns a period id if none is set.
func (r *Recurrence) InitializeFirstOccurrence(start Date, at time.Time) error {
	if r.Current != nil {
		return ErrOccurrenceExists
	}
	if strings.TrimSpace(r.Period.ID) == "" {
		r.Period.ID = uuid.NewString()
	}
	r.Current = r.pending(start, at)
	return nil
}

// Complete closes the current occurrence as done on the date of `at` and
// schedules the next one a period after that completion date.
//
// Restart-the-clock rule: completion advances from when the work was
// actually done. Skip (below) keeps the original slot instead.
func (r *Recurrence) Complete(at time.Time, notes string) (*Occurrence, error) {
	cur := r.Current
	if cur == nil {
		return nil, fmt.Errorf("complete: %w", ErrNoCurrentOccurrence)
	}
	done := DateOf(at)
	stamp := at.UTC()
	cur.Status = StatusCompleted
	cur.CompletedDate = &done
	cur.CompletedAt = &stamp
	if strings.TrimSpace(notes) != "" {
		cur.Notes = notes
	}
	r.LastCompleted = cur
	r.Current = r.pending(r.Period.Next(done), at)
	return cur, nil
}

// Skip closes the current occurrence without doing it and schedules the
// next one a period after the occurrence's original scheduled date.
//
// Keep-the-slot rule: skipping never shifts the cadence, no matter how
// overdue the skipped occurrence was.
func (r *Recurrence) Skip(reason string, at time.Time) (*Occurrence, error) {
	cur := r.Current
	if cur == nil {
		return nil, fmt.Errorf("skip: %w", ErrNoCurrentOccurrence)
	}
	cur.Status = StatusSkipped
	cur.Notes = reason
	r.Current = r.pending(r.Period.Next(cur.ScheduledDate), at)
	return cur, nil
}

// StartOccurrences initializes the first occurrence of a recurring schedule.
func (s *Schedule) StartOccurrences(start Date, at time.Time) error {
	if s == nil || s.Kind != KindRecurring || s.Recurring == nil {
		return ErrNotRecurring
	}
	return s.Recurring.InitializeFirstOccurrence(start, at)
}

// CompleteOccurrence completes the current occurrence and stamps ModifiedAt.
func (s *Schedule) CompleteOccurrence(at time.Time, notes string) (*Occurrence, error) {
	if s == nil || s.Kind != KindRecurring || s.Recurring == nil {
		return nil, ErrNotRecurring
	}
	closed, err := s.Recurring.Complete(at, notes)
	if err != nil {
		return nil, err
	}
	s.touch(at)
	return closed, nil
}

// SkipOccurrence skips the current occurrence and stamps ModifiedAt.
func (s *Schedule) SkipOccurrence(reason string, at time.Time) (*Occurrence, error) {
	if s == nil || s.Kind != KindRecurring || s.Recurring == nil {
		return nil, ErrNotRecurring
	}
	closed, err := s.Recurring.Skip(reason, at)
	if err != nil {
		return nil, err
	}
	s.touch(at)
	return closed, nil
}

func (s *Schedule) touch(at time.Time) {
	t := at.UTC()
	s.ModifiedAt = &t
}
