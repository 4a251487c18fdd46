package api

import (
	"github.com/gofiber/fiber/v2"

	"swamptimers/internal/schedule"
	logx "swamptimers/pkg/logx"
)

type startRequest struct {
	StartDate schedule.Date `json:"start_date"`
}

type completeRequest struct {
	Notes string `json:"notes" validate:"max=1000"`

	// CompletedDate backdates the completion; the time of day is taken from
	// the current clock.
	CompletedDate *schedule.Date `json:"completed_date"`
}

type skipRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// mutateOccurrence loads a schedule, applies fn and saves the result under
// writeMu.
func (s *Server) mutateOccurrence(c *fiber.Ctx, body any, fn func(sc *schedule.Schedule) (*schedule.Occurrence, error)) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(body); err != nil {
			return fail(c, fiber.StatusBadRequest, "invalid request body: "+err.Error())
		}
	}
	if err := s.validate.Struct(body); err != nil {
		return invalid(c, err)
	}
	ctx := c.UserContext()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	sc, err := s.d.Store.Get(ctx, id)
	if err != nil {
		return failFor(c, err)
	}
	occ, err := fn(sc)
	if err != nil {
		return failFor(c, err)
	}
	saved, err := s.d.Store.Update(ctx, sc)
	if err != nil {
		return failFor(c, err)
	}
	return ok(c, fiber.StatusOK, fiber.Map{
		"occurrence": occ,
		"schedule":   s.view(saved, s.d.Now()),
	})
}

func (s *Server) startOccurrences(c *fiber.Ctx) error {
	var req startRequest
	return s.mutateOccurrence(c, &req, func(sc *schedule.Schedule) (*schedule.Occurrence, error) {
		now := s.d.Now()
		start := req.StartDate
		if start.IsZero() {
			start = schedule.DateOf(now)
		}
		if err := sc.StartOccurrences(start, now); err != nil {
			return nil, err
		}
		s.log.Info("occurrences started", logx.Int64("id", sc.ID), logx.String("start", start.String()))
		return sc.Recurring.Current, nil
	})
}

func (s *Server) completeOccurrence(c *fiber.Ctx) error {
	var req completeRequest
	return s.mutateOccurrence(c, &req, func(sc *schedule.Schedule) (*schedule.Occurrence, error) {
		at := s.d.Now()
		if req.CompletedDate != nil {
			at = schedule.ClockOf(at).On(*req.CompletedDate, at.Location())
		}
		done, err := sc.CompleteOccurrence(at, req.Notes)
		if err != nil {
			return nil, err
		}
		s.log.Info("occurrence completed", logx.Int64("id", sc.ID), logx.String("scheduled", done.ScheduledDate.String()))
		return done, nil
	})
}

func (s *Server) skipOccurrence(c *fiber.Ctx) error {
	var req skipRequest
	return s.mutateOccurrence(c, &req, func(sc *schedule.Schedule) (*schedule.Occurrence, error) {
		skipped, err := sc.SkipOccurrence(req.Reason, s.d.Now())
		if err != nil {
			return nil, err
		}
		s.log.Info("occurrence skipped", logx.Int64("id", sc.ID), logx.String("scheduled", skipped.ScheduledDate.String()))
		return skipped, nil
	})
}
