package monitor

import (
	"context"
	"time"

	"swamptimers/internal/schedule"
)

// Kind is the direction of a transition.
type Kind string

const (
	Activated   Kind = "activated"
	Deactivated Kind = "deactivated"
)

// Transition is an edge in a schedule's activity observed by one poll.
// Schedule is the snapshot evaluated in that poll.
type Transition struct {
	Kind             Kind
	Schedule         *schedule.Schedule
	At               time.Time
	NextActivation   *time.Time
	NextDeactivation *time.Time
}

func (t Transition) Activated() bool { return t.Kind == Activated }

func newTransition(s *schedule.Schedule, active bool, at time.Time) Transition {
	tr := Transition{Kind: Deactivated, Schedule: s, At: at}
	if active {
		tr.Kind = Activated
	}
	if next, ok := s.NextActivation(at); ok {
		tr.NextActivation = &next
	}
	if next, ok := s.NextDeactivation(at); ok {
		tr.NextDeactivation = &next
	}
	return tr
}

// Handler reacts to transitions. It is called synchronously from the poll
// loop, one transition at a time.
type Handler interface {
	HandleTransition(ctx context.Context, t Transition)
}

type HandlerFunc func(ctx context.Context, t Transition)

func (f HandlerFunc) HandleTransition(ctx context.Context, t Transition) { f(ctx, t) }

// Source supplies the schedules a poll evaluates.
type Source interface {
	ListEnabled(ctx context.Context) ([]*schedule.Schedule, error)
}

// Summary is the bus payload for a transition.
type Summary struct {
	ScheduleID   int64      `json:"schedule_id"`
	ScheduleName string     `json:"schedule_name"`
	Kind         Kind       `json:"kind"`
	At           time.Time  `json:"at"`
	Next         *time.Time `json:"next,omitempty"`
}

func (t Transition) Summary() Summary {
	s := Summary{Kind: t.Kind, At: t.At}
	if t.Schedule != nil {
		s.ScheduleID, s.ScheduleName = t.Schedule.ID, t.Schedule.Name
	}
	if t.Activated() {
		s.Next = t.NextDeactivation
	} else {
		s.Next = t.NextActivation
	}
	return s
}
