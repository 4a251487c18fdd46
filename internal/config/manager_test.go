package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "swamptimers/pkg/logx"
)

const sampleYAML = `
logging:
  level: debug
  console: true
storage:
  driver: yaml
  path: /data/timers.yaml
automation:
  base_url: http://supervisor/core
  retries: 2
monitor:
  startup_delay: 5s
  interval: 30s
  cycle_timeout: 1m
api:
  listen: 127.0.0.1:8099
telegram:
  token: abc
  chat_id: 42
  notify_failures: true
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, t.TempDir(), "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Audit.Driver != "yaml" || cfg.Audit.Path != "/data/transition_log.yaml" {
		t.Fatalf("audit defaults = %+v", cfg.Audit)
	}
	if !cfg.Telegram.Enabled() || cfg.Monitor.Interval != "30s" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit")
	}
	r, err := cfg.Validate()
	if err != nil || r.StartupDelay != 5*time.Second || r.CycleTimeout != time.Minute {
		t.Fatalf("Resolved = %+v, err %v", r, err)
	}
}

func TestDecodeJSONAndSQLiteAuditFollowsStore(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("config.json", []byte(`{"storage":{"driver":"sqlite","path":"/data/st.db","busy_timeout":"3s"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Audit.Driver != "sqlite" || cfg.Audit.Path != "/data/st.db" || cfg.Audit.BusyTimeout != "3s" {
		t.Fatalf("audit = %+v", cfg.Audit)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("level default = %q", cfg.Logging.Level)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	cases := map[string]struct {
		path string
		body string
		want string
	}{
		"unknown field":    {"c.json", `{"storage":{"driver":"memory"},"bogus":1}`, "unknown field"},
		"trailing data":    {"c.json", `{"storage":{"driver":"memory"}} {}`, "trailing"},
		"missing path":     {"c.yaml", "storage:\n  driver: sqlite\n", "storage.path"},
		"bad driver":       {"c.yaml", "storage:\n  driver: mongo\n  path: x\n", "Driver"},
		"bad duration":     {"c.yaml", "storage:\n  driver: memory\nmonitor:\n  startup_delay: soon\n", "monitor.startup_delay"},
		"negative":         {"c.yaml", "storage:\n  driver: memory\nmonitor:\n  cycle_timeout: -1s\n", ">= 0"},
		"redis no url":     {"c.yaml", "storage:\n  driver: memory\naudit:\n  driver: redis\n", "redis_url"},
		"telegram logging": {"c.yaml", "storage:\n  driver: memory\nlogging:\n  telegram:\n    enabled: true\n", "telegram.token"},
		"bad base url":     {"c.yaml", "storage:\n  driver: memory\nautomation:\n  base_url: not a url\n", "BaseURL"},
	}
	for name, tc := range cases {
		_, err := Decode(tc.path, []byte(tc.body))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err = %v, want it to mention %q", name, err, tc.want)
		}
	}
}

func TestResolvedToken(t *testing.T) {
	t.Setenv(SupervisorTokenEnv, "from-env")
	if got := (AutomationConfig{}).ResolvedToken(); got != "from-env" {
		t.Fatalf("ResolvedToken = %q", got)
	}
	if got := (AutomationConfig{Token: " own "}).ResolvedToken(); got != "own" {
		t.Fatalf("ResolvedToken = %q", got)
	}
	if (AutomationConfig{}).UseMock() {
		t.Fatal("env token should select the real client")
	}
	if !(AutomationConfig{Token: "x", Mock: true}).UseMock() {
		t.Fatal("mock flag ignored")
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "storage:\n  driver: memory\nmonitor:\n  interval: 30s\n")
	m := NewManager(path)
	m.SetLogger(logx.Nop())
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	rejectBusy := func(_ context.Context, cfg *Config) error {
		if cfg.Monitor.Interval == "busy" {
			return context.DeadlineExceeded
		}
		return nil
	}
	m.SetValidator(rejectBusy)
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	writeFile(t, dir, "config.yaml", "storage:\n  driver: memory\nmonitor:\n  interval: busy\n")
	writeFile(t, dir, "config.yaml", "storage:\n  driver: memory\nmonitor:\n  interval: 1m\n")

	select {
	case cfg := <-sub:
		if cfg.Monitor.Interval != "1m" {
			t.Fatalf("published interval = %q", cfg.Monitor.Interval)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload published")
	}
	if m.Get().Monitor.Interval != "1m" {
		t.Fatal("reload not committed")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a := &Config{Monitor: MonitorConfig{Interval: "30s"}, API: APIConfig{Token: "one"}}
	b := &Config{Monitor: MonitorConfig{Interval: "1m"}, API: APIConfig{Token: "two"}}
	changed, attrs := SummarizeChange(a, b)
	if strings.Join(changed, ",") != "monitor,api" || len(attrs) == 0 {
		t.Fatalf("changed = %v", changed)
	}
	if !RestartRequired(a, b) {
		t.Fatal("api token change needs a restart")
	}
	c := *a
	c.Monitor.Interval = "5m"
	if RestartRequired(a, &c) {
		t.Fatal("interval change is hot")
	}
}
