package config

import (
	"fmt"
	"strings"
	"time"
)

// Fallbacks for duration keys left empty (or "0") in the config.
const (
	DefaultFeedTimeout       = 15 * time.Second
	DefaultSQLiteBusyTimeout = time.Second
)

// durationFields lists every duration-typed key by its config path.
func (c *Config) durationFields() map[string]string {
	return map[string]string{
		"feed.timeout":                 c.Feed.Timeout,
		"notifier.timeout":             c.Notifier.Timeout,
		"notifier.pace":                c.Notifier.Pace,
		"notifier.retry_fallback":      c.Notifier.RetryFallback,
		"notifier.max_rate_limit_wait": c.Notifier.MaxRateLimitWait,
		"storage.busy_timeout":         c.Storage.BusyTimeout,
		"http.read_timeout":            c.HTTP.ReadTimeout,
		"http.write_timeout":           c.HTTP.WriteTimeout,
		"http.idle_timeout":            c.HTTP.IdleTimeout,
	}
}

// ParseDurationField parses the Go duration stored under key.
// An empty value is zero; negative values are rejected.
func ParseDurationField(key, raw string) (time.Duration, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration (try \"10s\" or \"1m30s\")", key, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: %q is negative", key, raw)
	}
	return d, nil
}

// DurationOr is ParseDurationField with def standing in for zero.
func DurationOr(key, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(key, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
