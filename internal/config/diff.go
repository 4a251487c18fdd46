package config

import (
	"reflect"
	"strings"

	logx "swamptimers/pkg/logx"
)

// SummarizeChange lists the top-level sections that differ and returns log
// fields describing the new values. Tokens and URLs with credentials are
// reported only as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)
	set := func(s string) bool { return strings.TrimSpace(s) != "" }

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Audit != newCfg.Audit {
		changed = append(changed, "audit")
		attrs = append(attrs,
			logx.String("audit.driver", newCfg.Audit.Driver),
			logx.Int("audit.max_entries", newCfg.Audit.MaxEntries),
		)
	}
	if oldCfg.Automation != newCfg.Automation {
		changed = append(changed, "automation")
		attrs = append(attrs,
			logx.Bool("automation.mock", newCfg.Automation.Mock),
			logx.Bool("automation.token_set", set(newCfg.Automation.Token)),
		)
	}
	if oldCfg.Monitor != newCfg.Monitor {
		changed = append(changed, "monitor")
		attrs = append(attrs,
			logx.String("monitor.interval", newCfg.Monitor.Interval),
			logx.String("monitor.cycle_timeout", newCfg.Monitor.CycleTimeout),
		)
	}
	if oldCfg.API != newCfg.API {
		changed = append(changed, "api")
		attrs = append(attrs,
			logx.String("api.listen", newCfg.API.Listen),
			logx.Bool("api.token_set", set(newCfg.API.Token)),
		)
	}
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", newCfg.Telegram.Enabled()),
			logx.Bool("telegram.notify_failures", newCfg.Telegram.NotifyFailures),
		)
	}
	return changed, attrs
}

// RestartRequired reports changes that only take effect after a restart:
// everything except logging, monitor cadence and telegram notification
// switches.
func RestartRequired(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return false
	}
	return oldCfg.Storage != newCfg.Storage ||
		oldCfg.Audit != newCfg.Audit ||
		oldCfg.Automation != newCfg.Automation ||
		oldCfg.API != newCfg.API ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID
}
