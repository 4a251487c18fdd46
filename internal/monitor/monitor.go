// Package monitor polls enabled schedules and turns changes in their
// activity into edge-triggered transitions.
//
// A Monitor remembers the last observed activity per schedule id. The
// memory lives only in process: after a restart every schedule starts as
// inactive, so a schedule that is active at startup activates on the first
// poll.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"swamptimers/internal/eventbus"
	logx "swamptimers/pkg/logx"
)

const (
	DefaultStartupDelay = 5 * time.Second
	DefaultCycleTimeout = 2 * time.Minute
)

type Config struct {
	StartupDelay time.Duration
	Cadence      string
	CycleTimeout time.Duration
}

// Status is a point-in-time view for health reporting.
type Status struct {
	Running     bool      `json:"running"`
	Cadence     string    `json:"cadence"`
	Cycles      int64     `json:"cycles"`
	Failures    int64     `json:"failures"`
	LastCycle   time.Time `json:"last_cycle,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Tracked     int       `json:"tracked"`
	ActiveCount int       `json:"active"`
}

type Monitor struct {
	src     Source
	handler Handler
	bus     eventbus.Bus
	log     logx.Logger
	now     func() time.Time

	// pollMu serializes polls; last is only touched under it.
	pollMu sync.Mutex
	last   map[int64]bool

	mu     sync.Mutex
	cfg    Config
	sched  cron.Schedule
	status Status
	reload chan struct{}
}

// New validates cfg and returns an idle monitor. handler and bus may be nil.
func New(src Source, handler Handler, bus eventbus.Bus, cfg Config, log logx.Logger) (*Monitor, error) {
	if src == nil {
		return nil, errors.New("monitor: nil schedule source")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Monitor{
		src:     src,
		handler: handler,
		bus:     bus,
		log:     log,
		now:     time.Now,
		last:    map[int64]bool{},
		reload:  make(chan struct{}, 1),
	}
	if err := m.Apply(cfg); err != nil {
		return nil, err
	}
	select {
	case <-m.reload:
	default:
	}
	return m, nil
}

// Apply swaps the cadence and timeouts. A running loop picks up the new
// cadence before its next sleep.
func (m *Monitor) Apply(cfg Config) error {
	sched, err := ParseCadence(cfg.Cadence)
	if err != nil {
		return err
	}
	if cfg.StartupDelay < 0 {
		return fmt.Errorf("monitor: negative startup delay %s", cfg.StartupDelay)
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = DefaultCycleTimeout
	}
	if cfg.Cadence == "" {
		cfg.Cadence = DefaultCadence.String()
	}
	m.mu.Lock()
	changed := m.cfg.Cadence != cfg.Cadence
	m.cfg, m.sched = cfg, sched
	m.status.Cadence = cfg.Cadence
	m.mu.Unlock()
	if changed {
		select {
		case m.reload <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Poll runs one evaluation at now. Handler calls and bus events happen in
// schedule order before Poll returns. On a listing error nothing changes.
func (m *Monitor) Poll(ctx context.Context, now time.Time) ([]Transition, error) {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()

	list, err := m.src.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled schedules: %w", err)
	}

	var out []Transition
	seen := make(map[int64]struct{}, len(list))
	active := 0
	for _, s := range list {
		if s == nil {
			continue
		}
		seen[s.ID] = struct{}{}
		isActive := s.IsActiveAt(now)
		if isActive {
			active++
		}
		if isActive == m.last[s.ID] {
			continue
		}
		m.last[s.ID] = isActive
		tr := newTransition(s, isActive, now)
		out = append(out, tr)
		m.log.Info("schedule "+string(tr.Kind),
			logx.Int64("schedule_id", s.ID),
			logx.String("schedule", s.Name),
			logx.String("type", string(s.Kind)))
		m.publish(tr)
		if m.handler != nil {
			m.handler.HandleTransition(ctx, tr)
		}
	}

	for id := range m.last {
		if _, ok := seen[id]; !ok {
			delete(m.last, id)
		}
	}

	m.mu.Lock()
	m.status.Tracked = len(m.last)
	m.status.ActiveCount = active
	m.mu.Unlock()
	return out, nil
}

func (m *Monitor) publish(tr Transition) {
	if m.bus == nil {
		return
	}
	typ := eventbus.ScheduleDeactivated
	if tr.Activated() {
		typ = eventbus.ScheduleActivated
	}
	m.bus.Publish(eventbus.Event{Type: typ, Time: tr.At, Data: tr.Summary()})
}

// Run waits for the startup delay, then polls on the configured cadence
// until ctx is canceled. Cycle failures are logged and do not stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	m.setRunning(true)
	defer m.setRunning(false)

	m.mu.Lock()
	delay := m.cfg.StartupDelay
	m.mu.Unlock()
	m.log.Info("monitor starting", logx.Duration("startup_delay", delay))
	if !sleep(ctx, delay) {
		return nil
	}

	for {
		m.cycle(ctx)

		m.mu.Lock()
		sched := m.sched
		m.mu.Unlock()
		t := time.NewTimer(untilNext(sched, m.now()))
		select {
		case <-ctx.Done():
			t.Stop()
			m.log.Info("monitor stopped")
			return nil
		case <-m.reload:
			t.Stop()
			m.log.Info("monitor cadence changed", logx.String("cadence", m.Status().Cadence))
			// wait a full tick of the new cadence
			if !m.waitNext(ctx) {
				return nil
			}
		case <-t.C:
		}
	}
}

func (m *Monitor) waitNext(ctx context.Context) bool {
	m.mu.Lock()
	sched := m.sched
	m.mu.Unlock()
	return sleep(ctx, untilNext(sched, m.now()))
}

// cycle runs one poll on a context detached from shutdown so an in-flight
// cycle finishes its actions, bounded by the cycle timeout.
func (m *Monitor) cycle(parent context.Context) {
	m.mu.Lock()
	timeout := m.cfg.CycleTimeout
	m.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
	defer cancel()

	start := m.now()
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				m.log.Error("monitor cycle panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		var trs []Transition
		trs, err = m.Poll(ctx, start)
		if err == nil && len(trs) > 0 {
			m.log.Debug("monitor cycle done", logx.Int("transitions", len(trs)), logx.Duration("took", m.now().Sub(start)))
		}
	}()

	m.mu.Lock()
	m.status.Cycles++
	m.status.LastCycle = start
	if err != nil {
		m.status.Failures++
		m.status.LastError = err.Error()
	} else {
		m.status.LastError = ""
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Error("monitor cycle failed", logx.Err(err))
		if m.bus != nil {
			m.bus.Publish(eventbus.Event{Type: eventbus.CycleFailed, Time: start, Data: err.Error()})
		}
	}
}

func (m *Monitor) setRunning(v bool) {
	m.mu.Lock()
	m.status.Running = v
	m.mu.Unlock()
}

// sleep waits d or until ctx ends; it reports false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
