package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ActionKind selects how an EntityAction is executed.
type ActionKind string

const (
	ActionToggle      ActionKind = "Toggle"
	ActionServiceCall ActionKind = "ServiceCall"
)

// Normalize maps the empty kind to Toggle.
func (k ActionKind) Normalize() ActionKind {
	switch strings.ToLower(strings.TrimSpace(string(k))) {
	case "", "toggle":
		return ActionToggle
	case "servicecall", "service_call", "service":
		return ActionServiceCall
	default:
		return k
	}
}

// EntityAction is one side effect against a remote entity.
//
// ServiceData is the raw JSON object text passed as the service payload.
type EntityAction struct {
	EntityID    string     `json:"entity_id,omitempty" yaml:"entity_id,omitempty"`
	Kind        ActionKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Domain      string     `json:"domain,omitempty" yaml:"domain,omitempty"`
	Service     string     `json:"service,omitempty" yaml:"service,omitempty"`
	ServiceData string     `json:"service_data,omitempty" yaml:"service_data,omitempty"`
}

// Describe renders the action for audit records.
func (a EntityAction) Describe(activate bool) string {
	if a.Kind.Normalize() == ActionServiceCall {
		return fmt.Sprintf("Call %s.%s", a.Domain, a.Service)
	}
	if activate {
		return "Turn On"
	}
	return "Turn Off"
}

// Payload decodes ServiceData and merges the entity id into it.
// A blank ServiceData yields an empty payload.
func (a EntityAction) Payload() (map[string]any, error) {
	out := map[string]any{}
	if raw := strings.TrimSpace(a.ServiceData); raw != "" {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("service_data: %w", err)
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, errors.New("service_data: must be a JSON object")
		}
		out = m
	}
	if id := strings.TrimSpace(a.EntityID); id != "" {
		out["entity_id"] = id
	}
	return out, nil
}

func (a EntityAction) validate() error {
	switch a.Kind.Normalize() {
	case ActionToggle:
		if strings.TrimSpace(a.EntityID) == "" {
			return errors.New("toggle action requires entity_id")
		}
	case ActionServiceCall:
		if strings.TrimSpace(a.Domain) == "" || strings.TrimSpace(a.Service) == "" {
			return errors.New("service call requires domain and service")
		}
		if _, err := a.Payload(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

// ActionBinding holds the actions a schedule runs on each transition.
type ActionBinding struct {
	OnActivate   []EntityAction `json:"on_activate,omitempty" yaml:"on_activate,omitempty"`
	OnDeactivate []EntityAction `json:"on_deactivate,omitempty" yaml:"on_deactivate,omitempty"`
	Enabled      bool           `json:"enabled" yaml:"enabled"`
}

// Actions returns the list for the given direction, or nil when the binding
// is absent or disabled.
func (b *ActionBinding) Actions(activate bool) []EntityAction {
	if b == nil || !b.Enabled {
		return nil
	}
	if activate {
		return b.OnActivate
	}
	return b.OnDeactivate
}

// Validate checks each action definition.
func (b *ActionBinding) Validate() error {
	if b == nil {
		return nil
	}
	for i, a := range b.OnActivate {
		if err := a.validate(); err != nil {
			return fmt.Errorf("on_activate[%d]: %w", i, err)
		}
	}
	for i, a := range b.OnDeactivate {
		if err := a.validate(); err != nil {
			return fmt.Errorf("on_deactivate[%d]: %w", i, err)
		}
	}
	return nil
}

func (b *ActionBinding) clone() *ActionBinding {
	cp := *b
	cp.OnActivate = append([]EntityAction(nil), b.OnActivate...)
	cp.OnDeactivate = append([]EntityAction(nil), b.OnDeactivate...)
	return &cp
}
