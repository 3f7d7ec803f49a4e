package config

import (
	"net/url"
	"strings"

	logx "modwatch/pkg/logx"
)

// Summary renders the effective config as log fields. Secrets are reduced to
// "set"/"unset"; the webhook keeps only its host.
func Summary(cfg *Config, path string) []logx.Field {
	if cfg == nil {
		return nil
	}
	source := path
	if source == "" {
		source = "env"
	}
	console := cfg.Logging.Console == nil || *cfg.Logging.Console
	return []logx.Field{
		logx.String("source", source),
		logx.String("feed_url", cfg.Feed.URL),
		logx.String("access_field", orDash(cfg.Feed.Fields.Access)),
		logx.String("interval", cfg.Poll.Interval),
		logx.String("cutoff_date", cfg.Poll.CutoffDate),
		logx.String("webhook", redactURL(cfg.Notifier.WebhookURL)),
		logx.String("storage", storageSummary(cfg.Storage)),
		logx.String("http_addr", cfg.HTTP.Addr),
		logx.Bool("pprof", cfg.HTTP.Pprof.Enabled),
		logx.String("pprof_token", secret(cfg.HTTP.Pprof.Token)),
		logx.String("log_level", cfg.Logging.Level),
		logx.Bool("log_console", console),
		logx.Bool("log_file", cfg.Logging.File.Enabled),
	}
}

func storageSummary(s StorageConfig) string {
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	switch driver {
	case "redis":
		return driver + "://" + s.Redis.Addr + " password=" + secret(s.Redis.Password)
	case "", "memory", "none":
		return "memory"
	default:
		return driver + ":" + s.Path
	}
}

func redactURL(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "unset"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "set"
	}
	return u.Scheme + "://" + u.Host + "/…"
}

func secret(v string) string {
	if v == "" {
		return "unset"
	}
	return "set"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
