package automation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "swamptimers/pkg/logx"
)

type fakeHA struct {
	mu       sync.Mutex
	calls    []string
	bodies   []map[string]any
	states   atomic.Int32
	failNext atomic.Int32
	down     atomic.Bool
}

func (f *fakeHA) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer secret" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("/core/api/", auth(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/core/api/" {
			http.Error(w, "entity not found", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"message":"API running."}`))
	}))
	mux.HandleFunc("/core/api/states", auth(func(w http.ResponseWriter, r *http.Request) {
		f.states.Add(1)
		if f.down.Load() {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		if f.failNext.Load() > 0 {
			f.failNext.Add(-1)
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[
			{"entity_id":"switch.pump","state":"on","attributes":{"friendly_name":"Pump"}},
			{"entity_id":"light.porch","state":"unavailable","attributes":{}},
			{"entity_id":"light.attic","state":"off","attributes":{"friendly_name":"Attic"}}
		]`))
	}))
	mux.HandleFunc("/core/api/states/switch.pump", auth(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"entity_id":"switch.pump","state":"on"}`))
	}))
	mux.HandleFunc("/core/api/services/", auth(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("service call method = %s", r.Method)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.calls = append(f.calls, strings.TrimPrefix(r.URL.Path, "/core/api/services/"))
		f.bodies = append(f.bodies, body)
		f.mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/explode") {
			http.Error(w, "service not found", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	return mux
}

func newTestClient(t *testing.T, f *fakeHA) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(HTTPConfig{
		BaseURL:    srv.URL + "/core",
		Token:      "secret",
		RatePerSec: 1000,
		Retries:    2,
		RetryBase:  time.Millisecond,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return c
}

func TestTurnOnUsesEntityDomain(t *testing.T) {
	t.Parallel()
	f := &fakeHA{}
	c := newTestClient(t, f)
	ctx := context.Background()

	if err := c.TurnOn(ctx, "light.kitchen", map[string]any{"brightness": 10}); err != nil {
		t.Fatalf("TurnOn: %v", err)
	}
	if err := c.TurnOff(ctx, "script.morning", nil); err != nil {
		t.Fatalf("TurnOff: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) != 2 || f.calls[0] != "light/turn_on" || f.calls[1] != "homeassistant/turn_off" {
		t.Fatalf("calls = %v", f.calls)
	}
	if f.bodies[0]["entity_id"] != "light.kitchen" || f.bodies[0]["brightness"] != float64(10) {
		t.Fatalf("body = %v", f.bodies[0])
	}
}

func TestCallServiceFailureIsAnError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, &fakeHA{})
	err := c.CallService(context.Background(), "notify", "explode", map[string]any{"message": "x"})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want StatusError 400", err)
	}
	if err := c.CallService(context.Background(), "", "turn_on", nil); err == nil {
		t.Fatal("expected error for empty domain")
	}
}

func TestEntitiesCacheAndStaleFallback(t *testing.T) {
	t.Parallel()
	f := &fakeHA{}
	c := newTestClient(t, f)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	f.failNext.Store(1)
	first, err := c.Entities(ctx)
	if err != nil || len(first) != 3 {
		t.Fatalf("Entities = %d, err %v", len(first), err)
	}
	if got := f.states.Load(); got != 2 {
		t.Fatalf("states hits = %d, want 2 (one retry)", got)
	}

	if _, err := c.Entities(ctx); err != nil {
		t.Fatalf("cached Entities: %v", err)
	}
	if got := f.states.Load(); got != 2 {
		t.Fatalf("cache miss within TTL: hits = %d", got)
	}

	now = now.Add(6 * time.Minute)
	f.down.Store(true)
	stale, err := c.Entities(ctx)
	if err != nil || len(stale) != 3 {
		t.Fatalf("stale Entities = %d, err %v", len(stale), err)
	}

	lights, err := c.EntitiesByDomain(ctx, "LIGHT")
	if err != nil || len(lights) != 2 || lights[0].EntityID != "light.attic" {
		t.Fatalf("EntitiesByDomain = %+v, err %v", lights, err)
	}
}

func TestEntitiesWithoutCacheFails(t *testing.T) {
	t.Parallel()
	f := &fakeHA{}
	f.down.Store(true)
	c := newTestClient(t, f)
	if _, err := c.Entities(context.Background()); err == nil {
		t.Fatal("expected error when the API is down and nothing is cached")
	}
}

func TestStateAndPing(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, &fakeHA{})
	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	e, err := c.State(ctx, "switch.pump")
	if err != nil || !e.IsOn() {
		t.Fatalf("State = %+v, err %v", e, err)
	}
	if _, err := c.State(ctx, "switch.missing"); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("State(missing) err = %v, want ErrUnknownEntity", err)
	}
}

func TestEntityHelpers(t *testing.T) {
	t.Parallel()
	e := Entity{EntityID: "switch.living_room", State: "Unavailable"}
	if e.Domain() != "switch" || e.ObjectID() != "living_room" || e.FriendlyName() != "switch.living_room" {
		t.Fatalf("helpers = %q %q %q", e.Domain(), e.ObjectID(), e.FriendlyName())
	}
	if e.IsAvailable() || e.IsOn() {
		t.Fatal("unavailable entity reported available or on")
	}
	if DomainOf("nodot") != "" || (Entity{EntityID: "nodot"}).ObjectID() != "nodot" {
		t.Fatal("entity id without a domain")
	}
}

func TestMockTracksState(t *testing.T) {
	t.Parallel()
	m := NewMock(logx.Nop())
	ctx := context.Background()
	if err := m.TurnOn(ctx, "switch.garage", nil); err != nil {
		t.Fatalf("TurnOn: %v", err)
	}
	e, err := m.State(ctx, "switch.garage")
	if err != nil || !e.IsOn() {
		t.Fatalf("State = %+v, err %v", e, err)
	}
	_ = m.CallService(ctx, "light", "turn_on", map[string]any{"entity_id": "light.kitchen"})
	_ = m.CallService(ctx, "light", "turn_off", map[string]any{"entity_id": "light.kitchen"})
	if m.IsOn("light.kitchen") {
		t.Fatal("light.kitchen should be off")
	}
	if _, err := m.State(ctx, "switch.nope"); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("State(unknown) err = %v", err)
	}
	all, _ := m.Entities(ctx)
	if len(all) != 13 {
		t.Fatalf("mock entities = %d, want 13", len(all))
	}
}
