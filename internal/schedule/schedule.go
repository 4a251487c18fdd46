package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the persisted discriminator of a Schedule.
type Kind string

const (
	KindDuration  Kind = "Duration"
	KindTimeRange Kind = "TimeRange"
	KindRecurring Kind = "Recurring"
)

// ParseKind resolves a discriminator, accepting the legacy "Periodic" alias.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "duration":
		return KindDuration, nil
	case "timerange", "time_range", "range":
		return KindTimeRange, nil
	case "recurring", "periodic":
		return KindRecurring, nil
	default:
		return "", fmt.Errorf("unknown timer type %q", raw)
	}
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

var ErrInvalidSchedule = errors.New("invalid schedule")

// Schedule is a named, enable-able temporal rule. Exactly one of Duration,
// Range or Recurring is set, matching Kind.
type Schedule struct {
	ID          int64      `json:"id" yaml:"id"`
	Kind        Kind       `json:"type" yaml:"type"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool       `json:"enabled" yaml:"enabled"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	ModifiedAt  *time.Time `json:"modified_at,omitempty" yaml:"modified_at,omitempty"`

	Duration  *DurationWindow `json:"duration,omitempty" yaml:"duration,omitempty"`
	Range     *RangeWindow    `json:"time_range,omitempty" yaml:"time_range,omitempty"`
	Recurring *Recurrence     `json:"recurring,omitempty" yaml:"recurring,omitempty"`

	Binding *ActionBinding `json:"binding,omitempty" yaml:"binding,omitempty"`
}

// NewDuration returns an enabled Duration schedule.
func NewDuration(name string, start TimeOfDay, minutes int, days ...time.Weekday) *Schedule {
	return &Schedule{
		Kind:     KindDuration,
		Name:     name,
		Enabled:  true,
		Duration: &DurationWindow{Start: start, Minutes: minutes, Days: Days(days...)},
	}
}

// NewTimeRange returns an enabled TimeRange schedule.
func NewTimeRange(name string, on, off TimeOfDay, days ...time.Weekday) *Schedule {
	return &Schedule{
		Kind:    KindTimeRange,
		Name:    name,
		Enabled: true,
		Range:   &RangeWindow{On: on, Off: off, Days: Days(days...)},
	}
}

// NewRecurring returns an enabled Recurring schedule with no occurrence yet.
func NewRecurring(name string, p Period) *Schedule {
	return &Schedule{
		Kind:      KindRecurring,
		Name:      name,
		Enabled:   true,
		Recurring: &Recurrence{Period: p},
	}
}

// Validate checks that the variant payload matches the discriminator.
func (s *Schedule) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil", ErrInvalidSchedule)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSchedule)
	}
	set := 0
	for _, ok := range []bool{s.Duration != nil, s.Range != nil, s.Recurring != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: exactly one variant payload must be set (got %d)", ErrInvalidSchedule, set)
	}
	switch s.Kind {
	case KindDuration:
		if s.Duration == nil {
			return fmt.Errorf("%w: %s timer without duration payload", ErrInvalidSchedule, s.Kind)
		}
		if s.Duration.Minutes < 0 {
			return fmt.Errorf("%w: duration_minutes must be >= 0", ErrInvalidSchedule)
		}
	case KindTimeRange:
		if s.Range == nil {
			return fmt.Errorf("%w: %s timer without time_range payload", ErrInvalidSchedule, s.Kind)
		}
	case KindRecurring:
		if s.Recurring == nil {
			return fmt.Errorf("%w: %s timer without recurring payload", ErrInvalidSchedule, s.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSchedule, s.Kind)
	}
	if s.Binding != nil {
		if err := s.Binding.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
	}
	return nil
}

// IsActiveAt reports whether the schedule considers itself "on" at t.
// Disabled schedules are never active.
func (s *Schedule) IsActiveAt(t time.Time) bool {
	if s == nil || !s.Enabled {
		return false
	}
	switch s.Kind {
	case KindDuration:
		return s.Duration != nil && s.Duration.activeAt(t)
	case KindTimeRange:
		return s.Range != nil && s.Range.activeAt(t)
	case KindRecurring:
		return s.Recurring != nil && s.Recurring.activeAt(t)
	default:
		return false
	}
}

// NextActivation returns the next instant the schedule turns on, looking
// from the given instant. ok is false when there is none.
func (s *Schedule) NextActivation(from time.Time) (next time.Time, ok bool) {
	if s == nil || !s.Enabled {
		return time.Time{}, false
	}
	switch s.Kind {
	case KindDuration:
		if s.Duration != nil {
			return s.Duration.nextActivation(from)
		}
	case KindTimeRange:
		if s.Range != nil {
			return s.Range.nextActivation(from)
		}
	case KindRecurring:
		if s.Recurring != nil {
			return s.Recurring.nextActivation(from)
		}
	}
	return time.Time{}, false
}

// NextDeactivation returns the next instant the schedule turns off.
// Recurring schedules never deactivate on their own.
func (s *Schedule) NextDeactivation(from time.Time) (next time.Time, ok bool) {
	if s == nil || !s.Enabled {
		return time.Time{}, false
	}
	switch s.Kind {
	case KindDuration:
		if s.Duration != nil {
			return s.Duration.nextDeactivation(from)
		}
	case KindTimeRange:
		if s.Range != nil {
			return s.Range.nextDeactivation(from)
		}
	case KindRecurring:
		return time.Time{}, false
	}
	return time.Time{}, false
}

// Clone returns a deep copy.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	cp := *s
	if s.ModifiedAt != nil {
		t := *s.ModifiedAt
		cp.ModifiedAt = &t
	}
	if s.Duration != nil {
		d := *s.Duration
		d.Days = append(Weekdays(nil), s.Duration.Days...)
		cp.Duration = &d
	}
	if s.Range != nil {
		r := *s.Range
		r.Days = append(Weekdays(nil), s.Range.Days...)
		cp.Range = &r
	}
	if s.Recurring != nil {
		cp.Recurring = s.Recurring.clone()
	}
	if s.Binding != nil {
		cp.Binding = s.Binding.clone()
	}
	return &cp
}
