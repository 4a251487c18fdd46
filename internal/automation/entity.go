package automation

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Entity is a Home Assistant entity state as returned by the REST API.
type Entity struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged *time.Time     `json:"last_changed,omitempty"`
	LastUpdated *time.Time     `json:"last_updated,omitempty"`
}

// FriendlyName falls back to the entity id when the attribute is missing.
func (e Entity) FriendlyName() string {
	if v, ok := e.Attributes["friendly_name"]; ok && v != nil {
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return e.EntityID
}

func (e Entity) Domain() string { return DomainOf(e.EntityID) }

// ObjectID is the part after the domain ("living_room" in "switch.living_room").
func (e Entity) ObjectID() string {
	if _, obj, ok := strings.Cut(e.EntityID, "."); ok {
		return obj
	}
	return e.EntityID
}

func (e Entity) IsOn() bool { return strings.EqualFold(e.State, "on") }

func (e Entity) IsAvailable() bool {
	return !strings.EqualFold(e.State, "unavailable") && !strings.EqualFold(e.State, "unknown")
}

// DomainOf returns the domain prefix of an entity id, or "" if it has none.
func DomainOf(entityID string) string {
	if i := strings.IndexByte(entityID, '.'); i > 0 {
		return entityID[:i]
	}
	return ""
}

// switchDomain picks the service domain used for turn_on/turn_off.
// Domains without their own services go through "homeassistant".
func switchDomain(entityID string) string {
	switch d := DomainOf(entityID); d {
	case "switch", "light", "fan", "cover", "climate":
		return d
	default:
		return "homeassistant"
	}
}

func sortByName(es []Entity) {
	sort.SliceStable(es, func(i, j int) bool { return es[i].FriendlyName() < es[j].FriendlyName() })
}
