package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a non-negative Go duration. Blank means zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// OrDefault returns d, or def when d is zero.
func OrDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// DefaultIfBlank returns def when raw was left blank and d otherwise, so an
// explicit "0s" stays zero.
func DefaultIfBlank(raw string, d, def time.Duration) time.Duration {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	return d
}
