package config

import (
	"strings"
)

const (
	DefaultFeedURL    = "https://molerapi.moler.cloud/mods/"
	DefaultInterval   = "5s"
	DefaultCutoffDate = "2025-06-07"
	DefaultDriver     = "file"
	DefaultCachePath  = "mod_cache.json"
	DefaultSQLitePath = "mod_cache.db"
	DefaultHTTPAddr   = "0.0.0.0:8080"
	DefaultLogLevel   = "info"
)

// Environment variables that override file values.
const (
	EnvWebhookURL    = "WEBHOOK_URL"
	EnvFeedURL       = "MODWATCH_FEED_URL"
	EnvAccessField   = "MODWATCH_ACCESS_FIELD"
	EnvPollInterval  = "MODWATCH_POLL_INTERVAL"
	EnvCutoffDate    = "MODWATCH_CUTOFF_DATE"
	EnvStorageDriver = "MODWATCH_STORAGE_DRIVER"
	EnvStoragePath   = "MODWATCH_STORAGE_PATH"
	EnvPort          = "PORT"
	EnvLogLevel      = "MODWATCH_LOG_LEVEL"
)

// ApplyEnv overlays non-empty environment values onto cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil || lookup == nil {
		return
	}
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvWebhookURL, &cfg.Notifier.WebhookURL)
	set(EnvFeedURL, &cfg.Feed.URL)
	set(EnvAccessField, &cfg.Feed.Fields.Access)
	set(EnvPollInterval, &cfg.Poll.Interval)
	set(EnvCutoffDate, &cfg.Poll.CutoffDate)
	set(EnvStorageDriver, &cfg.Storage.Driver)
	set(EnvStoragePath, &cfg.Storage.Path)
	set(EnvLogLevel, &cfg.Logging.Level)

	var port string
	set(EnvPort, &port)
	if port != "" {
		cfg.HTTP.Addr = "0.0.0.0:" + port
	}
}

// ApplyDefaults fills values a deployment rarely sets. Per-service
// timeouts are left to the services' own defaults.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	def := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = v
		}
	}
	def(&cfg.Feed.URL, DefaultFeedURL)
	def(&cfg.Poll.Interval, DefaultInterval)
	def(&cfg.Poll.CutoffDate, DefaultCutoffDate)
	def(&cfg.Storage.Driver, DefaultDriver)
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "file", "json":
		def(&cfg.Storage.Path, DefaultCachePath)
	case "sqlite", "sqlite3":
		def(&cfg.Storage.Path, DefaultSQLitePath)
	}
	def(&cfg.HTTP.Addr, DefaultHTTPAddr)
	def(&cfg.Logging.Level, DefaultLogLevel)

	if cfg.Logging.Console == nil {
		on := true
		cfg.Logging.Console = &on
	}
	if cfg.Notifier.StrictImageURL == nil {
		on := true
		cfg.Notifier.StrictImageURL = &on
	}
}
