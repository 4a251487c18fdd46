// Package supervisor runs the service's long-lived goroutines (monitor
// loop, HTTP API, notifier, watchdog) under one cancelable context.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	logx "swamptimers/pkg/logx"
)

// Supervisor tracks named goroutines, recovers their panics and remembers
// the first error any of them returned.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	cancelOnErr bool

	wg       sync.WaitGroup
	waitOnce sync.Once
	done     chan struct{}

	mu       sync.Mutex
	firstErr error
	tasks    map[string]*TaskStats
}

// TaskStats is a best-effort view of one named goroutine.
type TaskStats struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Starts    int       `json:"starts"`
	Panics    int       `json:"panics"`
	LastStart time.Time `json:"last_start"`
	LastErr   string    `json:"last_err,omitempty"`
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the shared context when any goroutine started
// with Go fails, or when GoRestart gives up.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		log:    logx.Nop(),
		done:   make(chan struct{}),
		tasks:  map[string]*TaskStats{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Err returns the first recorded failure, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// Snapshot returns task stats sorted by name.
func (s *Supervisor) Snapshot() []TaskStats {
	s.mu.Lock()
	out := make([]TaskStats, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Go runs fn once. A returned error (other than cancellation) or a panic is
// recorded as the supervisor error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.run(name, fn)
		if err == nil {
			return
		}
		s.fail(fmt.Errorf("%s: %w", name, err))
	}()
}

func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// run executes one attempt of fn and converts a panic into an error.
// Cancellation after shutdown is reported as a clean stop.
func (s *Supervisor) run(name string, fn func(ctx context.Context) error) (err error) {
	s.note(name, func(t *TaskStats) {
		t.Running = true
		t.Starts++
		t.LastStart = time.Now()
	})
	s.log.Debug("task started", logx.String("task", name))
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task panicked", logx.String("task", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			s.note(name, func(t *TaskStats) { t.Panics++ })
			err = fmt.Errorf("panic: %v", r)
		}
		if s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
			err = nil
		}
		s.note(name, func(t *TaskStats) {
			t.Running = false
			if err != nil {
				t.LastErr = err.Error()
			}
		})
		s.log.Debug("task stopped", logx.String("task", name), logx.Err(err))
	}()
	return fn(s.ctx)
}

type restartCfg struct {
	minBackoff      time.Duration
	maxBackoff      time.Duration
	maxRestarts     int
	publishFirstErr bool
}

type RestartOption func(*restartCfg)

// WithRestartBackoff sets the exponential backoff window between restarts.
func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(c *restartCfg) {
		if min > 0 {
			c.minBackoff = min
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithMaxRestarts bounds restarts; n <= 0 means unlimited. The first run is
// not a restart.
func WithMaxRestarts(n int) RestartOption { return func(c *restartCfg) { c.maxRestarts = n } }

// WithPublishFirstError records the first failure as the supervisor error
// even though the task keeps restarting.
func WithPublishFirstError(enabled bool) RestartOption {
	return func(c *restartCfg) { c.publishFirstErr = enabled }
}

// GoRestart runs fn and restarts it after an error or panic until the
// context is canceled. A nil return stops the task.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	cfg := restartCfg{minBackoff: 250 * time.Millisecond, maxBackoff: 30 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.maxBackoff < cfg.minBackoff {
		cfg.maxBackoff = cfg.minBackoff
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := cfg.minBackoff
		for restarts := 0; ; restarts++ {
			began := time.Now()
			err := s.run(name, fn)
			if err == nil {
				return
			}
			wrapped := fmt.Errorf("%s: %w", name, err)
			if cfg.publishFirstErr {
				s.setErr(wrapped)
			}
			if cfg.maxRestarts > 0 && restarts >= cfg.maxRestarts {
				s.log.Error("task gave up", logx.String("task", name), logx.Int("restarts", restarts), logx.Err(err))
				s.fail(wrapped)
				return
			}
			if time.Since(began) >= 30*time.Second {
				backoff = cfg.minBackoff
			}
			wait := jitter(backoff)
			s.log.Warn("task restarting", logx.String("task", name), logx.Duration("backoff", wait), logx.Err(err))
			t := time.NewTimer(wait)
			select {
			case <-s.ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			backoff = min(backoff*2, cfg.maxBackoff)
		}
	}()
}

// Stop cancels the shared context and waits for every task.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every task has returned or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.waitOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.done)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return s.Err()
	}
}

func (s *Supervisor) fail(err error) {
	s.setErr(err)
	if s.cancelOnErr {
		s.cancel()
	}
}

func (s *Supervisor) setErr(err error) {
	s.mu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.mu.Unlock()
}

func (s *Supervisor) note(name string, f func(*TaskStats)) {
	s.mu.Lock()
	t := s.tasks[name]
	if t == nil {
		t = &TaskStats{Name: name}
		s.tasks[name] = t
	}
	f(t)
	s.mu.Unlock()
}

// jitter adds up to 20% to d.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d)/5+1))
}
