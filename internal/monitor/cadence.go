package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultCadence = 30 * time.Second

var cadenceParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCadence accepts a Go duration ("30s", "1m"), a descriptor
// ("@every 45s", "@hourly") or a cron expression with optional seconds.
// Blank means DefaultCadence.
func ParseCadence(raw string) (cron.Schedule, error) {
	spec := strings.TrimSpace(raw)
	if spec == "" {
		return cron.Every(DefaultCadence), nil
	}
	if d, err := time.ParseDuration(spec); err == nil {
		if d < time.Second {
			return nil, fmt.Errorf("cadence %q: must be at least 1s", raw)
		}
		return cron.Every(d), nil
	}
	sched, err := cadenceParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("cadence %q: %w", raw, err)
	}
	if sched.Next(time.Now()).IsZero() {
		return nil, fmt.Errorf("cadence %q: never fires", raw)
	}
	return sched, nil
}

// untilNext is the wait before the next tick after now. A schedule with no
// upcoming tick falls back to DefaultCadence.
func untilNext(sched cron.Schedule, now time.Time) time.Duration {
	next := sched.Next(now)
	if next.IsZero() || !next.After(now) {
		return DefaultCadence
	}
	return next.Sub(now)
}
