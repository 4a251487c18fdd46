// Package systemd reports service state to the systemd manager over the
// notify socket. Every call is a no-op when the process is not run by a
// Type=notify unit.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready tells systemd that startup finished.
func Ready() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReady) }

// Stopping tells systemd that shutdown began.
func Stopping() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func Status(msg string) (bool, error) { return daemon.SdNotify(false, "STATUS="+msg) }

// WatchdogInterval returns how often the watchdog must be pinged, or zero
// when WatchdogSec is not configured for this unit.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// Watchdog pings the watchdog at half the configured interval while healthy
// returns true, until ctx ends. A missed ping makes systemd restart the unit.
func Watchdog(ctx context.Context, interval time.Duration, healthy func() bool) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if healthy == nil || healthy() {
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}
}
