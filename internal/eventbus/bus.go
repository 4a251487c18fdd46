// Package eventbus fans out in-process events from the monitor and the
// dispatcher to optional listeners such as the chat notifier.
package eventbus

import (
	"sync"
	"time"
)

// Type names an event kind.
type Type string

const (
	// ScheduleActivated and ScheduleDeactivated carry a transition summary.
	ScheduleActivated   Type = "schedule.activated"
	ScheduleDeactivated Type = "schedule.deactivated"
	// ActionSucceeded and ActionFailed carry the audit entry of one action.
	ActionSucceeded Type = "action.succeeded"
	ActionFailed    Type = "action.failed"
	// CycleFailed carries the error that abandoned a monitor cycle.
	CycleFailed Type = "monitor.cycle_failed"
)

// Event is a small in-memory signal. Publish never blocks: subscribers get
// a buffered channel and a slow subscriber loses events.
type Event struct {
	Type Type
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory bus. It owns no goroutines.
func New() Bus {
	return &memBus{}
}

type subscriber struct {
	ch     chan Event
	closed bool
}

type memBus struct {
	mu   sync.Mutex
	subs []*subscriber
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.closed {
			continue
		}
		select {
		case s.ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, x := range b.subs {
				if x == s {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					break
				}
			}
			s.closed = true
			close(s.ch)
		})
	}
}
