package config

import (
	"path/filepath"
	"strings"
)

const (
	DefaultStorageDriver = "yaml"
	DefaultAuditFile     = "transition_log.yaml"
	DefaultAPIListen     = "127.0.0.1:8099"
)

// ApplyDefaults fills in derived values. The audit log follows the
// schedule store when it is not configured: a YAML store gets a sibling
// transition_log.yaml, a SQLite store shares its database file.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if strings.TrimSpace(c.Audit.Driver) == "" {
		switch strings.ToLower(c.Storage.Driver) {
		case "sqlite":
			c.Audit.Driver = "sqlite"
			if c.Audit.Path == "" {
				c.Audit.Path = c.Storage.Path
			}
			if c.Audit.BusyTimeout == "" {
				c.Audit.BusyTimeout = c.Storage.BusyTimeout
			}
		case "memory":
			c.Audit.Driver = "memory"
		default:
			c.Audit.Driver = "yaml"
			if c.Audit.Path == "" && strings.TrimSpace(c.Storage.Path) != "" {
				c.Audit.Path = filepath.Join(filepath.Dir(c.Storage.Path), DefaultAuditFile)
			}
		}
	}
	if !c.API.Disabled && strings.TrimSpace(c.API.Listen) == "" {
		c.API.Listen = DefaultAPIListen
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
