package automation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	logx "swamptimers/pkg/logx"
)

// Mock is an in-process stand-in for Home Assistant, used when no API token
// is configured. It tracks on/off state per entity and accepts every call.
type Mock struct {
	log logx.Logger

	mu       sync.Mutex
	entities []Entity
	on       map[string]bool
}

func NewMock(log logx.Logger) *Mock {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Mock{log: log, entities: sampleEntities(), on: map[string]bool{}}
	for _, e := range m.entities {
		m.on[e.EntityID] = e.IsOn()
	}
	log.Info("mock automation client ready", logx.Int("entities", len(m.entities)))
	return m
}

func sampleEntities() []Entity {
	mk := func(id, state, name string, extra map[string]any) Entity {
		attrs := map[string]any{"friendly_name": name}
		for k, v := range extra {
			attrs[k] = v
		}
		return Entity{EntityID: id, State: state, Attributes: attrs}
	}
	return []Entity{
		mk("switch.living_room", "off", "Living Room Switch", nil),
		mk("switch.bedroom", "off", "Bedroom Switch", nil),
		mk("switch.garage", "off", "Garage Switch", nil),
		mk("switch.outdoor_lights", "off", "Outdoor Lights", nil),
		mk("light.kitchen", "off", "Kitchen Light", map[string]any{"brightness": 0}),
		mk("light.living_room", "off", "Living Room Light", map[string]any{"brightness": 0}),
		mk("light.bedroom", "off", "Bedroom Light", map[string]any{"brightness": 0}),
		mk("fan.ceiling", "off", "Ceiling Fan", map[string]any{"speed": "off"}),
		mk("cover.garage_door", "closed", "Garage Door", nil),
		mk("climate.thermostat", "heat", "Thermostat", map[string]any{"temperature": 72}),
		mk("script.morning_routine", "off", "Morning Routine", nil),
		mk("automation.motion_lights", "on", "Motion Lights", nil),
		mk("scene.movie_mode", "scening", "Movie Mode", nil),
	}
}

func (m *Mock) Mode() string { return "mock" }

func (m *Mock) Ping(context.Context) error { return nil }

func (m *Mock) Entities(context.Context) ([]Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, m.withStateLocked(e))
	}
	return out, nil
}

func (m *Mock) EntitiesByDomain(ctx context.Context, domains ...string) ([]Entity, error) {
	all, _ := m.Entities(ctx)
	return filterDomains(all, domains), nil
}

func (m *Mock) State(_ context.Context, entityID string) (Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entities {
		if strings.EqualFold(e.EntityID, entityID) {
			return m.withStateLocked(e), nil
		}
	}
	return Entity{}, fmt.Errorf("%w: %s", ErrUnknownEntity, entityID)
}

func (m *Mock) TurnOn(_ context.Context, entityID string, _ map[string]any) error {
	m.set(entityID, true)
	m.log.Info("mock turn on", logx.String("entity", entityID))
	return nil
}

func (m *Mock) TurnOff(_ context.Context, entityID string, _ map[string]any) error {
	m.set(entityID, false)
	m.log.Info("mock turn off", logx.String("entity", entityID))
	return nil
}

// CallService records on/off for services whose name says so
// ("turn_on", "turn_off") when the payload names an entity.
func (m *Mock) CallService(_ context.Context, domain, service string, data map[string]any) error {
	m.log.Info("mock service call", logx.String("domain", domain), logx.String("service", service), logx.Any("data", data))
	id, _ := data["entity_id"].(string)
	if id == "" {
		return nil
	}
	svc := strings.ToLower(service)
	switch {
	case strings.Contains(svc, "on"):
		m.set(id, true)
	case strings.Contains(svc, "off"):
		m.set(id, false)
	}
	return nil
}

// IsOn reports the tracked state of an entity.
func (m *Mock) IsOn(entityID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on[entityID]
}

func (m *Mock) set(entityID string, on bool) {
	m.mu.Lock()
	m.on[entityID] = on
	m.mu.Unlock()
}

func (m *Mock) withStateLocked(e Entity) Entity {
	if on, ok := m.on[e.EntityID]; ok {
		if on {
			e.State = "on"
		} else {
			e.State = "off"
		}
	}
	return e
}

var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*Mock)(nil)
)
