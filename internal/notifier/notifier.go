// Package notifier turns failure events from the event bus into chat
// messages.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"swamptimers/internal/eventbus"
	"swamptimers/internal/monitor"
	"swamptimers/internal/storage"
	logx "swamptimers/pkg/logx"
)

// Sender delivers one text message.
type Sender interface {
	SendText(ctx context.Context, text string) error
}

// Options selects which events are forwarded.
//
// Identical messages within DedupWindow are sent once. A failed send is
// retried up to Retries times.
type Options struct {
	Failures    bool
	Cycles      bool
	Transitions bool
	RatePerSec  int
	DedupWindow time.Duration
	Retries     int
	RetryBase   time.Duration
}

const (
	defaultDedupWindow = 10 * time.Minute
	sendTimeout        = 10 * time.Second
	maxDedupEntries    = 512
)

// Notifier forwards selected bus events to a Sender. Messages over the rate
// limit are dropped and counted.
type Notifier struct {
	sender Sender
	bus    eventbus.Bus
	log    logx.Logger

	mu      sync.Mutex
	opts    Options
	limiter *rate.Limiter
	seen    map[string]time.Time
	now     func() time.Time

	sent    atomic.Int64
	dropped atomic.Int64
}

func New(sender Sender, bus eventbus.Bus, opts Options, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	n := &Notifier{sender: sender, bus: bus, log: log, seen: map[string]time.Time{}, now: time.Now}
	n.Apply(opts)
	return n
}

// Apply swaps the event selection and rate.
func (n *Notifier) Apply(opts Options) {
	rps := opts.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	if opts.DedupWindow == 0 {
		opts.DedupWindow = defaultDedupWindow
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	n.mu.Lock()
	n.opts = opts
	n.limiter = rate.NewLimiter(rate.Limit(rps), rps*3)
	n.mu.Unlock()
}

// Run consumes bus events until ctx ends.
func (n *Notifier) Run(ctx context.Context) {
	events, unsub := n.bus.Subscribe(64)
	defer unsub()
	n.log.Info("notifier started")
	for {
		select {
		case <-ctx.Done():
			n.log.Info("notifier stopped", logx.Int64("sent", n.sent.Load()), logx.Int64("dropped", n.dropped.Load()))
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			n.handle(ctx, e)
		}
	}
}

func (n *Notifier) handle(ctx context.Context, e eventbus.Event) {
	text := n.render(e)
	if text == "" {
		return
	}
	n.mu.Lock()
	opts := n.opts
	if !n.firstSeenLocked(text, opts.DedupWindow) {
		n.mu.Unlock()
		n.log.Debug("notification deduped", logx.String("type", string(e.Type)))
		return
	}
	allowed := n.limiter.Allow()
	n.mu.Unlock()
	if !allowed {
		n.dropped.Add(1)
		n.log.Debug("notification dropped (rate)", logx.String("type", string(e.Type)))
		return
	}

	delay := opts.RetryBase
	for attempt := 0; ; attempt++ {
		sctx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := n.sender.SendText(sctx, text)
		cancel()
		if err == nil {
			n.sent.Add(1)
			return
		}
		if attempt >= opts.Retries || ctx.Err() != nil {
			n.log.Warn("notification send failed", logx.String("type", string(e.Type)), logx.Int("attempts", attempt+1), logx.Err(err))
			return
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		delay = min(delay*2, 10*time.Second)
	}
}

// firstSeenLocked records text and reports whether it was not sent within
// the window. A negative window disables dedup.
func (n *Notifier) firstSeenLocked(text string, window time.Duration) bool {
	if window < 0 {
		return true
	}
	now := n.now()
	if until, ok := n.seen[text]; ok && now.Before(until) {
		return false
	}
	n.seen[text] = now.Add(window)
	if len(n.seen) > maxDedupEntries {
		for k, until := range n.seen {
			if !now.Before(until) {
				delete(n.seen, k)
			}
		}
	}
	return true
}

func (n *Notifier) render(e eventbus.Event) string {
	n.mu.Lock()
	opts := n.opts
	n.mu.Unlock()

	switch e.Type {
	case eventbus.ActionFailed:
		if !opts.Failures {
			return ""
		}
		entry, ok := e.Data.(storage.Entry)
		if !ok {
			return ""
		}
		target := entry.EntityID
		if target == "" {
			target = "-"
		}
		return fmt.Sprintf("⚠️ %s (%s): %s %s failed\n%s",
			entry.ScheduleName, entry.Event, entry.Action, target, strings.TrimSpace(entry.Error))
	case eventbus.CycleFailed:
		if !opts.Cycles {
			return ""
		}
		return fmt.Sprintf("🚨 monitor cycle failed: %v", e.Data)
	case eventbus.ScheduleActivated, eventbus.ScheduleDeactivated:
		if !opts.Transitions {
			return ""
		}
		sum, ok := e.Data.(monitor.Summary)
		if !ok {
			return ""
		}
		msg := fmt.Sprintf("ℹ️ %s %s at %s", sum.ScheduleName, sum.Kind, sum.At.Format("Mon 15:04"))
		if sum.Next != nil {
			msg += ", next change " + sum.Next.Format("Mon 02 Jan 15:04")
		}
		return msg
	}
	return ""
}

// Counts returns the number of messages sent and dropped by the rate limit.
func (n *Notifier) Counts() (sent, dropped int64) {
	return n.sent.Load(), n.dropped.Load()
}
