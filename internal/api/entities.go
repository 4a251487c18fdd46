package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"swamptimers/internal/automation"
)

// entityView is the shape shown in pickers: id, display name and state.
type entityView struct {
	EntityID     string `json:"entity_id"`
	FriendlyName string `json:"friendly_name"`
	Domain       string `json:"domain"`
	State        string `json:"state"`
	Available    bool   `json:"available"`
}

func toView(e automation.Entity) entityView {
	return entityView{
		EntityID:     e.EntityID,
		FriendlyName: e.FriendlyName(),
		Domain:       e.Domain(),
		State:        e.State,
		Available:    e.IsAvailable(),
	}
}

// listEntities returns all entities, or only those in ?domain=a,b.
func (s *Server) listEntities(c *fiber.Ctx) error {
	ctx := c.UserContext()
	var domains []string
	for _, d := range strings.Split(c.Query("domain"), ",") {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}
	var (
		items []automation.Entity
		err   error
	)
	if len(domains) > 0 {
		items, err = s.d.Client.EntitiesByDomain(ctx, domains...)
	} else {
		items, err = s.d.Client.Entities(ctx)
	}
	if err != nil {
		return fail(c, fiber.StatusBadGateway, err.Error())
	}
	out := make([]entityView, 0, len(items))
	for _, e := range items {
		out = append(out, toView(e))
	}
	return ok(c, fiber.StatusOK, out)
}

func (s *Server) getEntity(c *fiber.Ctx) error {
	e, err := s.d.Client.State(c.UserContext(), c.Params("entity"))
	if err != nil {
		if errors.Is(err, automation.ErrUnknownEntity) {
			return fail(c, fiber.StatusNotFound, err.Error())
		}
		return fail(c, fiber.StatusBadGateway, err.Error())
	}
	return ok(c, fiber.StatusOK, toView(e))
}
