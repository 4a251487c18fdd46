// Package app wires configuration, storage, the automation client, the
// transition monitor and the outer surfaces into one supervised process.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"swamptimers/internal/api"
	"swamptimers/internal/automation"
	"swamptimers/internal/config"
	"swamptimers/internal/dispatch"
	"swamptimers/internal/eventbus"
	"swamptimers/internal/monitor"
	"swamptimers/internal/notifier"
	"swamptimers/internal/runtime/supervisor"
	"swamptimers/internal/storage"
	logx "swamptimers/pkg/logx"
	"swamptimers/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store  storage.ScheduleStore
	audit  storage.AuditLog
	client automation.Client

	monitor  *monitor.Monitor
	notifier *notifier.Notifier
	api      *api.Server
	listen   string
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	resolved, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	// The chat sink is attached before the final Apply so enabling Telegram
	// logging does not warn about a missing sender.
	bootCfg := mapLogging(cfg)
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg)

	var sender *notifier.TelegramSender
	if cfg.Telegram.Enabled() {
		sender, err = notifier.NewTelegramSender(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		logSvc.SetSender(sender)
	}
	logSvc.Apply(mapLogging(cfg))
	log = log.With(logx.String("comp", "app"))

	a := &App{cfgm: cfgm, log: log, logs: logSvc, bus: eventbus.New()}
	if err := a.build(cfg, resolved, sender); err != nil {
		a.closeStores()
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, r config.Resolved, sender *notifier.TelegramSender) error {
	comp := func(name string) logx.Logger { return a.log.With(logx.String("comp", name)) }

	store, err := storage.Open(mapStorage(cfg, r), comp("storage"))
	if err != nil {
		return fmt.Errorf("open schedule store: %w", err)
	}
	a.store = store
	a.log.Info("schedule store ready", logx.String("driver", cfg.Storage.Driver))

	audit, err := storage.OpenAudit(mapAudit(cfg, r), comp("audit"))
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	a.audit = audit

	client, err := openAutomation(cfg, r, comp("automation"))
	if err != nil {
		return err
	}
	a.client = client
	a.log.Info("automation client ready", logx.String("mode", client.Mode()))

	disp := dispatch.New(client, audit, a.bus, comp("dispatch"))
	mon, err := monitor.New(store, disp, a.bus, mapMonitor(cfg, r), comp("monitor"))
	if err != nil {
		return err
	}
	a.monitor = mon

	if sender != nil {
		a.notifier = notifier.New(sender, a.bus, mapNotifier(cfg), comp("notifier"))
	}

	if !cfg.API.Disabled {
		a.listen = cfg.API.Listen
		a.api = api.New(api.Deps{
			Store:   store,
			Audit:   audit,
			Client:  client,
			Monitor: mon,
			Tasks:   a.tasks,
			Log:     comp("api"),
		}, mapAPI(cfg, r))
	}
	return nil
}

func (a *App) tasks() []supervisor.TaskStats {
	if a.sup == nil {
		return nil
	}
	return a.sup.Snapshot()
}

// Done is closed when the app supervisor context is canceled (fatal error
// or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal task error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches every background task and reports readiness to systemd.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := monitor.ParseCadence(cfg.Monitor.Interval); err != nil {
			return fmt.Errorf("monitor.interval: %w", err)
		}
		return nil
	})

	a.sup.GoRestart("monitor", a.monitor.Run,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second),
		supervisor.WithPublishFirstError(true))

	if a.notifier != nil {
		a.sup.Go0("notifier", a.notifier.Run)
	}
	if a.api != nil {
		listen := a.listen
		a.sup.Go("api", func(c context.Context) error {
			if err := a.api.Run(c, listen); err != nil {
				return fmt.Errorf("api listen %s: %w", listen, err)
			}
			return nil
		})
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", string(e.Type)), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	if wd := systemd.WatchdogInterval(); wd > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			systemd.Watchdog(c, wd, func() bool { return c.Err() == nil })
		})
	}
	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started", logx.Bool("api", a.api != nil), logx.Bool("notifier", a.notifier != nil))
	return nil
}

// applyConfig hot-applies the sections that support it. Everything else is
// logged as needing a restart.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if config.RestartRequired(prev, next) {
		a.log.Warn("config change needs a restart to take effect", logx.String("changed", strings.Join(sections, ",")))
	}

	a.logs.Apply(mapLogging(next))

	r, err := next.Validate()
	if err != nil {
		a.log.Warn("invalid config; keeping previous monitor settings", logx.Err(err))
	} else if err := a.monitor.Apply(mapMonitor(next, r)); err != nil {
		a.log.Warn("invalid monitor config; keeping previous", logx.Err(err))
	}
	if a.notifier != nil {
		a.notifier.Apply(mapNotifier(next))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop cancels every task, waits for them within ctx, then closes storage.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeStores()
		return a.logs.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	start := time.Now()
	if err := a.sup.Stop(ctx); err != nil && ctx.Err() != nil {
		a.log.Warn("tasks did not stop in time", logx.Err(err), logx.Duration("elapsed", time.Since(start)))
	}
	a.closeStores()
	a.log.Info("stopped", logx.Duration("took", time.Since(start)))
	return a.logs.Close()
}

func (a *App) closeStores() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("close schedule store", logx.Err(err))
		}
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.log.Warn("close audit log", logx.Err(err))
		}
	}
}
