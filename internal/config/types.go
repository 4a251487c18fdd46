package config

import (
	"os"
	"strings"
)

// Config is the service configuration file (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Audit      AuditConfig      `json:"audit"`
	Automation AutomationConfig `json:"automation"`
	Monitor    MonitorConfig    `json:"monitor"`
	API        APIConfig        `json:"api"`
	Telegram   TelegramConfig   `json:"telegram"`
}

type LoggingConfig struct {
	Level    string          `json:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards log lines at or above MinLevel to the
// notification chat. It needs telegram.token and telegram.chat_id.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level" validate:"omitempty,oneof=debug info warn warning error"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
}

// StorageConfig selects the schedule store.
//
//	"storage": { "driver": "yaml", "path": "/data/timers.yaml" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=yaml file sqlite memory"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// AuditConfig selects where transition action results are kept.
// MaxEntries bounds the log; the oldest entries are dropped first.
type AuditConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=yaml file sqlite redis memory"`
	Path        string `json:"path,omitempty"`
	RedisURL    string `json:"redis_url,omitempty"`
	RedisKey    string `json:"redis_key,omitempty"`
	MaxEntries  int    `json:"max_entries" validate:"gte=0"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// AutomationConfig points at the Home Assistant REST API. Without a token
// (and without SUPERVISOR_TOKEN in the environment) the mock client is used.
type AutomationConfig struct {
	BaseURL    string `json:"base_url,omitempty" validate:"omitempty,url"`
	Token      string `json:"token,omitempty"`
	Mock       bool   `json:"mock"`
	Timeout    string `json:"timeout,omitempty"`
	CacheTTL   string `json:"cache_ttl,omitempty"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
	Retries    int    `json:"retries" validate:"gte=0,lte=10"`
}

// SupervisorTokenEnv is set by the Home Assistant supervisor for add-ons.
const SupervisorTokenEnv = "SUPERVISOR_TOKEN"

// ResolvedToken returns the configured token, falling back to the
// supervisor token from the environment.
func (a AutomationConfig) ResolvedToken() string {
	if t := strings.TrimSpace(a.Token); t != "" {
		return t
	}
	return strings.TrimSpace(os.Getenv(SupervisorTokenEnv))
}

// UseMock reports whether the in-process mock client should be used.
func (a AutomationConfig) UseMock() bool {
	return a.Mock || a.ResolvedToken() == ""
}

// MonitorConfig controls the transition poll loop.
//
// Interval is a duration ("30s"), a descriptor ("@every 1m") or a cron
// expression with optional seconds ("*/15 * * * * *").
type MonitorConfig struct {
	StartupDelay string `json:"startup_delay,omitempty"`
	Interval     string `json:"interval,omitempty"`
	CycleTimeout string `json:"cycle_timeout,omitempty"`
}

// APIConfig controls the HTTP management API. Listen defaults to
// DefaultAPIListen unless Disabled is set.
type APIConfig struct {
	Disabled     bool   `json:"disabled"`
	Listen       string `json:"listen,omitempty"`
	Pprof        bool   `json:"pprof"` // serves /api/debug/pprof behind the token
	Token        string `json:"token,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// TelegramConfig is the optional notification chat.
type TelegramConfig struct {
	Token             string `json:"token,omitempty"`
	ChatID            int64  `json:"chat_id,omitempty"`
	NotifyFailures    bool   `json:"notify_failures"`
	NotifyCycles      bool   `json:"notify_cycles"`
	NotifyTransitions bool   `json:"notify_transitions"`
	RatePerSec        int    `json:"rate_per_sec" validate:"gte=0"`
}

// Enabled reports whether a chat is configured at all.
func (t TelegramConfig) Enabled() bool {
	return strings.TrimSpace(t.Token) != "" && t.ChatID != 0
}
