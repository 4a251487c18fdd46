package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"swamptimers/internal/config"
	"swamptimers/internal/monitor"
	"swamptimers/internal/schedule"
	logx "swamptimers/pkg/logx"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swamptimers.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAppStartsAndStopsWithMemoryStores(t *testing.T) {
	t.Setenv(config.SupervisorTokenEnv, "")
	path := writeConfig(t, `
storage:
  driver: memory
automation:
  mock: true
monitor:
  interval: "1s"
  startup_delay: "10ms"
api:
  disabled: true
`)
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.client.Mode() != "mock" {
		t.Fatalf("client mode = %q", a.client.Mode())
	}
	if a.api != nil || a.notifier != nil {
		t.Fatalf("api/notifier should be off: api=%v notifier=%v", a.api != nil, a.notifier != nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := a.store.Create(ctx, schedule.NewTimeRange("always", schedule.At(0, 0), schedule.At(23, 59))); err != nil {
		t.Fatalf("create: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for a.monitor.Status().Cycles == 0 {
		if time.Now().After(deadline) {
			t.Fatal("monitor never ran a cycle")
		}
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "storage:\n  driver: postgres\n")
	if _, err := New(path); err == nil {
		t.Fatal("expected an error for an unknown storage driver")
	}
}

func TestMappingDefaults(t *testing.T) {
	t.Setenv(config.SupervisorTokenEnv, "")
	cfg := &config.Config{
		Storage: config.StorageConfig{Driver: "memory"},
		Logging: config.LoggingConfig{Telegram: config.LoggingTelegram{Enabled: true}},
	}
	cfg.ApplyDefaults()
	if _, err := cfg.Validate(); err == nil {
		t.Fatal("telegram logging without a chat should not validate")
	}

	cfg.Logging.Telegram.Enabled = false
	r, err := cfg.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if lc := mapLogging(cfg); lc.Telegram.Enabled || lc.Level != "info" {
		t.Fatalf("logging = %+v", lc)
	}
	mc := mapMonitor(cfg, r)
	if mc.StartupDelay <= 0 || mc.CycleTimeout <= 0 {
		t.Fatalf("monitor defaults not applied: %+v", mc)
	}
	if ac := mapAudit(cfg, r); ac.Driver != "memory" {
		t.Fatalf("audit driver = %q, want memory", ac.Driver)
	}
	client, err := openAutomation(cfg, r, logx.Nop())
	if err != nil || client.Mode() != "mock" {
		t.Fatalf("automation = %v, %v", client, err)
	}
	if cfg.API.Listen != config.DefaultAPIListen {
		t.Fatalf("api listen = %q", cfg.API.Listen)
	}
}

func TestMapMonitorKeepsExplicitZeroDelay(t *testing.T) {
	t.Parallel()
	cases := map[string]struct {
		raw  string
		want time.Duration
	}{
		"blank":    {raw: "", want: monitor.DefaultStartupDelay},
		"zero":     {raw: "0s", want: 0},
		"explicit": {raw: "2s", want: 2 * time.Second},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{Storage: config.StorageConfig{Driver: "memory"}}
			cfg.Monitor.StartupDelay = tc.raw
			cfg.ApplyDefaults()
			r, err := cfg.Validate()
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if got := mapMonitor(cfg, r).StartupDelay; got != tc.want {
				t.Fatalf("startup delay = %s, want %s", got, tc.want)
			}
		})
	}
}
