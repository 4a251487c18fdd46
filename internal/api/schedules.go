package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"swamptimers/internal/schedule"
	logx "swamptimers/pkg/logx"
)

// scheduleRequest is the create/update body. The variant payload must
// match Type; the store re-checks this with Schedule.Validate.
type scheduleRequest struct {
	Type        schedule.Kind            `json:"type" validate:"required"`
	Name        string                   `json:"name" validate:"required,max=100"`
	Description string                   `json:"description" validate:"max=500"`
	Enabled     *bool                    `json:"enabled"`
	Duration    *schedule.DurationWindow `json:"duration" validate:"required_if=Type Duration"`
	Range       *schedule.RangeWindow    `json:"time_range" validate:"required_if=Type TimeRange"`
	Recurring   *recurringRequest        `json:"recurring" validate:"required_if=Type Recurring"`
	Binding     *schedule.ActionBinding  `json:"binding"`
}

type recurringRequest struct {
	Period    schedule.Period `json:"period"`
	StartDate *schedule.Date  `json:"start_date"`
}

// scheduleView adds the evaluated state to a stored schedule.
type scheduleView struct {
	*schedule.Schedule
	ActiveNow        bool       `json:"active_now"`
	NextActivation   *time.Time `json:"next_activation,omitempty"`
	NextDeactivation *time.Time `json:"next_deactivation,omitempty"`
}

func (s *Server) view(sc *schedule.Schedule, now time.Time) scheduleView {
	v := scheduleView{Schedule: sc, ActiveNow: sc.IsActiveAt(now)}
	if t, ok := sc.NextActivation(now); ok {
		v.NextActivation = &t
	}
	if t, ok := sc.NextDeactivation(now); ok {
		v.NextDeactivation = &t
	}
	return v
}

func (s *Server) listSchedules(c *fiber.Ctx) error {
	ctx := c.UserContext()
	var (
		items []*schedule.Schedule
		err   error
	)
	if raw := c.Query("type"); raw != "" {
		kind, perr := schedule.ParseKind(raw)
		if perr != nil {
			return fail(c, fiber.StatusBadRequest, perr.Error())
		}
		items, err = s.d.Store.ListByKind(ctx, kind)
	} else {
		items, err = s.d.Store.List(ctx)
	}
	if err != nil {
		return failFor(c, err)
	}
	now := s.d.Now()
	out := make([]scheduleView, 0, len(items))
	for _, sc := range items {
		out = append(out, s.view(sc, now))
	}
	return ok(c, fiber.StatusOK, out)
}

func (s *Server) getSchedule(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	sc, err := s.d.Store.Get(c.UserContext(), id)
	if err != nil {
		return failFor(c, err)
	}
	return ok(c, fiber.StatusOK, s.view(sc, s.d.Now()))
}

func (s *Server) decodeSchedule(c *fiber.Ctx) (*scheduleRequest, error) {
	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, fail(c, fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if err := s.validate.Struct(&req); err != nil {
		return nil, invalid(c, err)
	}
	return &req, nil
}

// build turns a request into a schedule. A Recurring request with a start
// date gets its first occurrence straight away.
func (req *scheduleRequest) build(now time.Time) (*schedule.Schedule, error) {
	sc := &schedule.Schedule{
		Kind:        req.Type,
		Name:        req.Name,
		Description: req.Description,
		Enabled:     true,
		Binding:     req.Binding,
	}
	if req.Enabled != nil {
		sc.Enabled = *req.Enabled
	}
	switch req.Type {
	case schedule.KindDuration:
		sc.Duration = req.Duration
	case schedule.KindTimeRange:
		sc.Range = req.Range
	case schedule.KindRecurring:
		sc.Recurring = &schedule.Recurrence{Period: req.Recurring.Period}
		if req.Recurring.StartDate != nil {
			if err := sc.StartOccurrences(*req.Recurring.StartDate, now); err != nil {
				return nil, err
			}
		}
	}
	return sc, nil
}

func (s *Server) createSchedule(c *fiber.Ctx) error {
	req, err := s.decodeSchedule(c)
	if req == nil {
		return err
	}
	sc, err := req.build(s.d.Now())
	if err != nil {
		return failFor(c, err)
	}
	created, err := s.d.Store.Create(c.UserContext(), sc)
	if err != nil {
		return failFor(c, err)
	}
	s.log.Info("schedule created", logx.Int64("id", created.ID), logx.String("name", created.Name), logx.String("type", string(created.Kind)))
	return ok(c, fiber.StatusCreated, s.view(created, s.d.Now()))
}

func (s *Server) updateSchedule(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	req, err := s.decodeSchedule(c)
	if req == nil {
		return err
	}
	ctx := c.UserContext()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	existing, err := s.d.Store.Get(ctx, id)
	if err != nil {
		return failFor(c, err)
	}
	now := s.d.Now()
	sc, err := req.build(now)
	if err != nil {
		return failFor(c, err)
	}
	sc.ID = id
	// Editing a recurring schedule keeps its occurrence history unless a new
	// start date was given.
	if sc.Kind == schedule.KindRecurring && existing.Recurring != nil && req.Recurring.StartDate == nil {
		sc.Recurring.Current = existing.Recurring.Current
		sc.Recurring.LastCompleted = existing.Recurring.LastCompleted
	}
	updated, err := s.d.Store.Update(ctx, sc)
	if err != nil {
		return failFor(c, err)
	}
	s.log.Info("schedule updated", logx.Int64("id", id), logx.String("name", updated.Name))
	return ok(c, fiber.StatusOK, s.view(updated, now))
}

func (s *Server) deleteSchedule(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := s.d.Store.Delete(c.UserContext(), id); err != nil {
		return failFor(c, err)
	}
	s.log.Info("schedule deleted", logx.Int64("id", id))
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) toggleSchedule(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	enabled, err := s.d.Store.ToggleEnabled(c.UserContext(), id)
	if err != nil {
		return failFor(c, err)
	}
	s.log.Info("schedule toggled", logx.Int64("id", id), logx.Bool("enabled", enabled))
	return ok(c, fiber.StatusOK, fiber.Map{"id": id, "enabled": enabled})
}

type window struct {
	On  time.Time  `json:"on"`
	Off *time.Time `json:"off,omitempty"`
}

const maxPreview = 14

// previewSchedule lists the next activation windows from now. Recurring
// schedules only have one known next date.
func (s *Server) previewSchedule(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	sc, err := s.d.Store.Get(c.UserContext(), id)
	if err != nil {
		return failFor(c, err)
	}
	count := intQuery(c, "count", 5, maxPreview)
	from := s.d.Now()
	out := make([]window, 0, count)
	for len(out) < count {
		on, found := sc.NextActivation(from)
		if !found {
			break
		}
		w := window{On: on}
		if off, ok := sc.NextDeactivation(on.Add(-time.Nanosecond)); ok {
			w.Off = &off
		}
		out = append(out, w)
		if sc.Kind == schedule.KindRecurring {
			break
		}
		from = on
	}
	return ok(c, fiber.StatusOK, out)
}
