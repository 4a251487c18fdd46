package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"swamptimers/internal/monitor"
	"swamptimers/internal/runtime/supervisor"
)

type healthReport struct {
	Status     string                 `json:"status"`
	Time       time.Time              `json:"time"`
	Automation automationHealth       `json:"automation"`
	Monitor    *monitor.Status        `json:"monitor,omitempty"`
	Tasks      []supervisor.TaskStats `json:"tasks,omitempty"`
}

type automationHealth struct {
	Mode      string `json:"mode"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// health is unauthenticated. It answers 503 when the automation backend
// cannot be reached.
func (s *Server) health(c *fiber.Ctx) error {
	rep := healthReport{
		Status:     "ok",
		Time:       s.d.Now(),
		Automation: automationHealth{Mode: s.d.Client.Mode(), Reachable: true},
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()
	if err := s.d.Client.Ping(ctx); err != nil {
		rep.Status = "degraded"
		rep.Automation.Reachable = false
		rep.Automation.Error = err.Error()
	}
	if s.d.Monitor != nil {
		st := s.d.Monitor.Status()
		rep.Monitor = &st
	}
	if s.d.Tasks != nil {
		rep.Tasks = s.d.Tasks()
	}
	code := fiber.StatusOK
	if rep.Status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{"status": rep.Status, "data": rep})
}
