package app

import (
	"swamptimers/internal/api"
	"swamptimers/internal/automation"
	"swamptimers/internal/config"
	"swamptimers/internal/monitor"
	"swamptimers/internal/notifier"
	"swamptimers/internal/storage"
	logx "swamptimers/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled && cfg.Telegram.Enabled(),
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorage(cfg *config.Config, r config.Resolved) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: r.StorageBusy,
	}
}

func mapAudit(cfg *config.Config, r config.Resolved) storage.AuditConfig {
	return storage.AuditConfig{
		Driver:      cfg.Audit.Driver,
		Path:        cfg.Audit.Path,
		RedisURL:    cfg.Audit.RedisURL,
		RedisKey:    cfg.Audit.RedisKey,
		MaxEntries:  cfg.Audit.MaxEntries,
		BusyTimeout: r.AuditBusy,
	}
}

// openAutomation returns the mock client when no token is available.
func openAutomation(cfg *config.Config, r config.Resolved, log logx.Logger) (automation.Client, error) {
	ac := cfg.Automation
	if ac.UseMock() {
		return automation.NewMock(log), nil
	}
	return automation.NewHTTPClient(automation.HTTPConfig{
		BaseURL:    ac.BaseURL,
		Token:      ac.ResolvedToken(),
		Timeout:    r.AutomationTimeout,
		CacheTTL:   r.CacheTTL,
		RatePerSec: ac.RatePerSec,
		Retries:    ac.Retries,
	}, log)
}

func mapMonitor(cfg *config.Config, r config.Resolved) monitor.Config {
	return monitor.Config{
		StartupDelay: config.DefaultIfBlank(cfg.Monitor.StartupDelay, r.StartupDelay, monitor.DefaultStartupDelay),
		Cadence:      cfg.Monitor.Interval,
		CycleTimeout: config.OrDefault(r.CycleTimeout, monitor.DefaultCycleTimeout),
	}
}

func mapNotifier(cfg *config.Config) notifier.Options {
	return notifier.Options{
		Failures:    cfg.Telegram.NotifyFailures,
		Cycles:      cfg.Telegram.NotifyCycles,
		Transitions: cfg.Telegram.NotifyTransitions,
		RatePerSec:  cfg.Telegram.RatePerSec,
		Retries:     2,
	}
}

func mapAPI(cfg *config.Config, r config.Resolved) api.Config {
	return api.Config{
		Token:        cfg.API.Token,
		Pprof:        cfg.API.Pprof,
		ReadTimeout:  r.APIRead,
		WriteTimeout: r.APIWrite,
	}
}
