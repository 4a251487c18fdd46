// Package automation talks to the home automation API that executes
// schedule actions.
package automation

import (
	"context"
	"errors"
	"fmt"
)

var ErrUnknownEntity = errors.New("unknown entity")

// StatusError is a non-2xx API response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client is the capability the dispatcher and API need. Expected failures
// (unreachable service, unknown entity, rejected call) are returned as
// errors.
type Client interface {
	Ping(ctx context.Context) error
	Entities(ctx context.Context) ([]Entity, error)
	EntitiesByDomain(ctx context.Context, domains ...string) ([]Entity, error)
	State(ctx context.Context, entityID string) (Entity, error)
	TurnOn(ctx context.Context, entityID string, data map[string]any) error
	TurnOff(ctx context.Context, entityID string, data map[string]any) error
	CallService(ctx context.Context, domain, service string, data map[string]any) error
	// Mode is "home-assistant" for the real API and "mock" otherwise.
	Mode() string
}

func turnData(entityID string, data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["entity_id"] = entityID
	return out
}
