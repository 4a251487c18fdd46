// Package dispatch executes the actions bound to a schedule when it
// transitions, and records one audit entry per action.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"swamptimers/internal/automation"
	"swamptimers/internal/eventbus"
	"swamptimers/internal/monitor"
	"swamptimers/internal/schedule"
	"swamptimers/internal/storage"
	logx "swamptimers/pkg/logx"
)

// Dispatcher runs bindings against an automation client. Each action is
// isolated: an error or panic in one is recorded and the next one still runs.
type Dispatcher struct {
	client automation.Client
	audit  storage.AuditLog
	bus    eventbus.Bus
	log    logx.Logger
	now    func() time.Time
}

// New returns a dispatcher. audit and bus may be nil.
func New(client automation.Client, audit storage.AuditLog, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{client: client, audit: audit, bus: bus, log: log, now: time.Now}
}

func (d *Dispatcher) HandleTransition(ctx context.Context, t monitor.Transition) {
	d.Dispatch(ctx, t)
}

// Dispatch runs the actions for the transition direction in order and
// returns the audit entries it produced.
func (d *Dispatcher) Dispatch(ctx context.Context, t monitor.Transition) []storage.Entry {
	s := t.Schedule
	if s == nil {
		return nil
	}
	activate := t.Activated()
	actions := s.Binding.Actions(activate)
	if len(actions) == 0 {
		return nil
	}

	log := d.log.With(logx.Int64("schedule_id", s.ID), logx.String("schedule", s.Name), logx.String("event", string(t.Kind)))
	out := make([]storage.Entry, 0, len(actions))
	failed := 0
	for i, a := range actions {
		err := d.run(ctx, a, activate)
		e := storage.Entry{
			At:           d.now(),
			ScheduleID:   s.ID,
			ScheduleName: s.Name,
			Event:        string(t.Kind),
			EntityID:     strings.TrimSpace(a.EntityID),
			Action:       a.Describe(activate),
			Success:      err == nil,
		}
		if err != nil {
			failed++
			e.Error = err.Error()
			log.Warn("action failed", logx.Int("index", i), logx.String("entity", e.EntityID), logx.String("action", e.Action), logx.Err(err))
		} else {
			log.Debug("action done", logx.Int("index", i), logx.String("entity", e.EntityID), logx.String("action", e.Action))
		}
		d.record(ctx, log, e)
		out = append(out, e)
	}
	log.Info("actions dispatched", logx.Int("total", len(actions)), logx.Int("failed", failed))
	return out
}

// run executes one action and converts a panic into an error.
func (d *Dispatcher) run(ctx context.Context, a schedule.EntityAction, activate bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("action panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if d.client == nil {
		return errors.New("no automation client configured")
	}
	entity := strings.TrimSpace(a.EntityID)
	switch a.Kind.Normalize() {
	case schedule.ActionToggle:
		if entity == "" {
			return errors.New("toggle action has no entity_id")
		}
		if activate {
			return d.client.TurnOn(ctx, entity, nil)
		}
		return d.client.TurnOff(ctx, entity, nil)
	case schedule.ActionServiceCall:
		domain, service := strings.TrimSpace(a.Domain), strings.TrimSpace(a.Service)
		if domain == "" || service == "" {
			return errors.New("service call requires domain and service")
		}
		payload, err := a.Payload()
		if err != nil {
			return err
		}
		return d.client.CallService(ctx, domain, service, payload)
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

// record appends the audit entry and publishes it. An audit write failure,
// panics included, is logged and otherwise ignored.
func (d *Dispatcher) record(ctx context.Context, log logx.Logger, e storage.Entry) {
	if err := d.appendAudit(ctx, e); err != nil {
		log.Warn("audit append failed", logx.String("entity", e.EntityID), logx.Err(err))
	}
	if d.bus != nil {
		typ := eventbus.ActionSucceeded
		if !e.Success {
			typ = eventbus.ActionFailed
		}
		d.bus.Publish(eventbus.Event{Type: typ, Time: e.At, Data: e})
	}
}

func (d *Dispatcher) appendAudit(ctx context.Context, e storage.Entry) (err error) {
	if d.audit == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("audit append panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.audit.Append(ctx, e)
}
