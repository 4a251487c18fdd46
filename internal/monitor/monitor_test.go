package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"swamptimers/internal/eventbus"
	"swamptimers/internal/schedule"
	logx "swamptimers/pkg/logx"
)

type fakeSource struct {
	mu    sync.Mutex
	items []*schedule.Schedule
	err   error
	calls int
}

func (f *fakeSource) ListEnabled(context.Context) ([]*schedule.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*schedule.Schedule, 0, len(f.items))
	for _, s := range f.items {
		if s.Enabled {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (f *fakeSource) set(items ...*schedule.Schedule) {
	f.mu.Lock()
	f.items = items
	f.mu.Unlock()
}

type recorder struct {
	mu  sync.Mutex
	got []Transition
}

func (r *recorder) HandleTransition(_ context.Context, t Transition) {
	r.mu.Lock()
	r.got = append(r.got, t)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func at(h, m int) time.Time { return time.Date(2026, time.March, 2, h, m, 0, 0, time.UTC) }

func pump() *schedule.Schedule {
	s := schedule.NewDuration("Pump", schedule.At(6, 0), 30)
	s.ID = 1
	return s
}

func newMonitor(t *testing.T, src Source, h Handler, bus eventbus.Bus) *Monitor {
	t.Helper()
	m, err := New(src, h, bus, Config{Cadence: "1s"}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestPollEmitsEdgesOnly(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	src.set(pump())
	rec := &recorder{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()
	m := newMonitor(t, src, rec, bus)
	ctx := context.Background()

	steps := []struct {
		now  time.Time
		want []Kind
	}{
		{at(5, 59), nil},
		{at(6, 0), []Kind{Activated}},
		{at(6, 10), nil},
		{at(6, 30), nil},
		{at(6, 31), []Kind{Deactivated}},
		{at(7, 0), nil},
	}
	for _, st := range steps {
		trs, err := m.Poll(ctx, st.now)
		if err != nil {
			t.Fatalf("Poll(%s): %v", st.now.Format("15:04"), err)
		}
		if len(trs) != len(st.want) {
			t.Fatalf("Poll(%s) = %d transitions, want %d", st.now.Format("15:04"), len(trs), len(st.want))
		}
		for i, tr := range trs {
			if tr.Kind != st.want[i] || tr.Schedule.ID != 1 || !tr.At.Equal(st.now) {
				t.Fatalf("Poll(%s)[%d] = %+v", st.now.Format("15:04"), i, tr)
			}
		}
	}
	if rec.count() != 2 {
		t.Fatalf("handler calls = %d, want 2", rec.count())
	}
	first := rec.got[0]
	// evaluated at the start instant, the next window is tomorrow's
	if first.NextDeactivation == nil || !first.NextDeactivation.Equal(at(6, 30).AddDate(0, 0, 1)) {
		t.Fatalf("activation next deactivation = %v", first.NextDeactivation)
	}
	if len(events) != 2 || (<-events).Type != eventbus.ScheduleActivated {
		t.Fatal("bus did not see the activation first")
	}
}

func TestActiveAtStartupActivatesOnFirstPoll(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	src.set(pump())
	m := newMonitor(t, src, nil, nil)
	trs, err := m.Poll(context.Background(), at(6, 15))
	if err != nil || len(trs) != 1 || !trs[0].Activated() {
		t.Fatalf("Poll = %+v, err %v", trs, err)
	}
}

func TestRemovedScheduleIsForgotten(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	s := pump()
	src.set(s)
	m := newMonitor(t, src, nil, nil)
	ctx := context.Background()

	if trs, _ := m.Poll(ctx, at(6, 5)); len(trs) != 1 {
		t.Fatalf("activation transitions = %d", len(trs))
	}
	src.set()
	if trs, _ := m.Poll(ctx, at(6, 6)); len(trs) != 0 {
		t.Fatalf("removal emitted %d transitions", len(trs))
	}
	if st := m.Status(); st.Tracked != 0 {
		t.Fatalf("tracked = %d after removal", st.Tracked)
	}

	// back in the window: activates again since nothing is remembered
	src.set(s)
	if trs, _ := m.Poll(ctx, at(6, 7)); len(trs) != 1 || !trs[0].Activated() {
		t.Fatalf("re-added schedule transitions = %+v", trs)
	}
}

func TestDisablingForgetsWithoutDeactivating(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	s := pump()
	src.set(s)
	m := newMonitor(t, src, nil, nil)
	ctx := context.Background()
	_, _ = m.Poll(ctx, at(6, 5))

	off := s.Clone()
	off.Enabled = false
	src.set(off)
	if trs, _ := m.Poll(ctx, at(6, 6)); len(trs) != 0 {
		t.Fatalf("disabling emitted %+v", trs)
	}
}

func TestListErrorKeepsState(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	src.set(pump())
	m := newMonitor(t, src, nil, nil)
	ctx := context.Background()
	_, _ = m.Poll(ctx, at(6, 5))

	src.mu.Lock()
	src.err = errors.New("db locked")
	src.mu.Unlock()
	if _, err := m.Poll(ctx, at(6, 40)); err == nil {
		t.Fatal("expected list error")
	}
	if st := m.Status(); st.Tracked != 1 {
		t.Fatalf("tracked = %d, want remembered state kept", st.Tracked)
	}

	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	trs, err := m.Poll(ctx, at(6, 41))
	if err != nil || len(trs) != 1 || trs[0].Activated() {
		t.Fatalf("recovery poll = %+v, err %v", trs, err)
	}
}

func TestRecurringActivatesWhenDue(t *testing.T) {
	t.Parallel()
	s := schedule.NewRecurring("Filter", schedule.Period{Kind: schedule.PeriodWeeks, Value: 1})
	s.ID = 3
	if err := s.StartOccurrences(schedule.NewDate(2026, time.March, 3), at(0, 0)); err != nil {
		t.Fatalf("StartOccurrences: %v", err)
	}
	src := &fakeSource{}
	src.set(s)
	m := newMonitor(t, src, nil, nil)
	ctx := context.Background()

	if trs, _ := m.Poll(ctx, at(12, 0)); len(trs) != 0 {
		t.Fatalf("not yet due but got %+v", trs)
	}
	trs, _ := m.Poll(ctx, at(12, 0).AddDate(0, 0, 1))
	if len(trs) != 1 || !trs[0].Activated() {
		t.Fatalf("due poll = %+v", trs)
	}
	if trs[0].NextDeactivation != nil {
		t.Fatal("recurring schedules have no deactivation time")
	}
}

func TestRunPollsUntilCanceled(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	src.set(pump())
	m, err := New(src, nil, nil, Config{Cadence: "1s"}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for m.Status().Cycles < 2 {
		select {
		case <-deadline:
			t.Fatalf("cycles = %d after 5s", m.Status().Cycles)
		case <-time.After(20 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if m.Status().Running {
		t.Fatal("status still running")
	}
}

func TestCycleRecordsFailure(t *testing.T) {
	t.Parallel()
	src := &fakeSource{err: errors.New("boom")}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	m := newMonitor(t, src, nil, bus)
	m.cycle(context.Background())

	st := m.Status()
	if st.Failures != 1 || st.LastError == "" || st.Cycles != 1 {
		t.Fatalf("status = %+v", st)
	}
	if e := <-events; e.Type != eventbus.CycleFailed {
		t.Fatalf("event = %+v", e)
	}
}

func TestCycleRecoversHandlerPanic(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	src.set(pump())
	m := newMonitor(t, src, HandlerFunc(func(context.Context, Transition) { panic("bad handler") }), nil)
	m.now = func() time.Time { return at(6, 1) }
	m.cycle(context.Background())
	if st := m.Status(); st.Failures != 1 {
		t.Fatalf("status = %+v", st)
	}
}

func TestParseCadence(t *testing.T) {
	t.Parallel()
	from := at(6, 0)
	cases := []struct {
		in   string
		want time.Time
		bad  bool
	}{
		{in: "", want: from.Add(30 * time.Second)},
		{in: "45s", want: from.Add(45 * time.Second)},
		{in: "@every 2m", want: from.Add(2 * time.Minute)},
		{in: "*/15 * * * *", want: at(6, 15)},
		{in: "0 */5 * * * *", want: at(6, 5)},
		{in: "100ms", bad: true},
		{in: "every so often", bad: true},
		{in: "0 0 0 30 2 *", bad: true},
	}
	for _, tc := range cases {
		sched, err := ParseCadence(tc.in)
		if tc.bad {
			if err == nil {
				t.Fatalf("ParseCadence(%q) accepted", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseCadence(%q): %v", tc.in, err)
		}
		if got := sched.Next(from); !got.Equal(tc.want) {
			t.Fatalf("ParseCadence(%q).Next = %s, want %s", tc.in, got, tc.want)
		}
	}
}

type neverSchedule struct{}

func (neverSchedule) Next(time.Time) time.Time { return time.Time{} }

func TestUntilNextFallsBackWithoutUpcomingTick(t *testing.T) {
	t.Parallel()
	now := at(6, 0)
	if got := untilNext(neverSchedule{}, now); got != DefaultCadence {
		t.Fatalf("untilNext(never) = %s, want %s", got, DefaultCadence)
	}
	sched, err := ParseCadence("45s")
	if err != nil {
		t.Fatalf("ParseCadence: %v", err)
	}
	if got := untilNext(sched, now); got != 45*time.Second {
		t.Fatalf("untilNext(45s) = %s", got)
	}
}

func TestApplyRejectsBadCadence(t *testing.T) {
	t.Parallel()
	m := newMonitor(t, &fakeSource{}, nil, nil)
	if err := m.Apply(Config{Cadence: "nope"}); err == nil {
		t.Fatal("Apply accepted a bad cadence")
	}
	if err := m.Apply(Config{Cadence: "0 0 0 30 2 *"}); err == nil {
		t.Fatal("Apply accepted a cadence that never fires")
	}
	if err := m.Apply(Config{Cadence: "2m"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if m.Status().Cadence != "2m" {
		t.Fatalf("cadence = %q", m.Status().Cadence)
	}
}
