package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks values that would otherwise fail later at startup.
// Schedules are checked where they are parsed (the poller).
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if u, err := url.Parse(cfg.Feed.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("feed.url: invalid url %q", cfg.Feed.URL))
	}
	if cfg.Feed.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("feed.max_body_bytes: must be >= 0"))
	}
	if _, err := time.Parse(time.DateOnly, strings.TrimSpace(cfg.Poll.CutoffDate)); err != nil {
		errs = append(errs, fmt.Errorf("poll.cutoff_date: want YYYY-MM-DD, got %q", cfg.Poll.CutoffDate))
	}
	if cfg.Notifier.MaxAttempts < 0 {
		errs = append(errs, errors.New("notifier.max_attempts: must be >= 0"))
	}

	for path, raw := range cfg.durationFields() {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "file", "json", "sqlite", "sqlite3", "memory", "none":
	case "redis":
		if strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
			errs = append(errs, errors.New("storage.redis.addr: required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}

	return errors.Join(errs...)
}
