package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Resolved holds the parsed durations of a Config. Zero values mean "use
// the component default".
type Resolved struct {
	StorageBusy       time.Duration
	AuditBusy         time.Duration
	AutomationTimeout time.Duration
	CacheTTL          time.Duration
	StartupDelay      time.Duration
	CycleTimeout      time.Duration
	APIRead           time.Duration
	APIWrite          time.Duration
}

// Validate checks field constraints and cross-field rules, and returns the
// parsed durations.
func (c *Config) Validate() (Resolved, error) {
	var r Resolved
	if c == nil {
		return r, errors.New("config is nil")
	}
	if err := validate.Struct(c); err != nil {
		return r, fmt.Errorf("invalid config: %w", err)
	}

	fields := []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"storage.busy_timeout", c.Storage.BusyTimeout, &r.StorageBusy},
		{"audit.busy_timeout", c.Audit.BusyTimeout, &r.AuditBusy},
		{"automation.timeout", c.Automation.Timeout, &r.AutomationTimeout},
		{"automation.cache_ttl", c.Automation.CacheTTL, &r.CacheTTL},
		{"monitor.startup_delay", c.Monitor.StartupDelay, &r.StartupDelay},
		{"monitor.cycle_timeout", c.Monitor.CycleTimeout, &r.CycleTimeout},
		{"api.read_timeout", c.API.ReadTimeout, &r.APIRead},
		{"api.write_timeout", c.API.WriteTimeout, &r.APIWrite},
	}
	for _, f := range fields {
		d, err := ParseDurationField(f.path, f.raw)
		if err != nil {
			return r, err
		}
		*f.dst = d
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "yaml", "file", "sqlite":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return r, errors.New("storage.path is required")
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Audit.Driver)) {
	case "redis":
		if strings.TrimSpace(c.Audit.RedisURL) == "" {
			return r, errors.New("audit.redis_url is required for the redis driver")
		}
	case "yaml", "file", "sqlite":
		if strings.TrimSpace(c.Audit.Path) == "" {
			return r, errors.New("audit.path is required")
		}
	}
	if c.Logging.Telegram.Enabled && !c.Telegram.Enabled() {
		return r, errors.New("logging.telegram needs telegram.token and telegram.chat_id")
	}
	return r, nil
}
