package api

import (
	"github.com/gofiber/fiber/v2"

	"swamptimers/internal/storage"
)

const maxLogEntries = 1000

func (s *Server) listLog(c *fiber.Ctx) error {
	n := intQuery(c, "limit", 50, maxLogEntries)
	entries, err := s.d.Audit.Recent(c.UserContext(), n)
	if err != nil {
		return failFor(c, err)
	}
	if entries == nil {
		entries = []storage.Entry{}
	}
	return ok(c, fiber.StatusOK, entries)
}

func (s *Server) clearLog(c *fiber.Ctx) error {
	if err := s.d.Audit.Clear(c.UserContext()); err != nil {
		return failFor(c, err)
	}
	s.log.Info("audit log cleared")
	return c.SendStatus(fiber.StatusNoContent)
}
