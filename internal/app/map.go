package app

import (
	"strings"

	"modwatch/internal/config"
	"modwatch/internal/feed"
	"modwatch/internal/httpserver"
	"modwatch/internal/notifier"
	"modwatch/internal/poller"
	"modwatch/internal/storage"
	logx "modwatch/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	console := cfg.Logging.Console == nil || *cfg.Logging.Console
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapFields(cfg *config.Config) feed.Fields {
	f := cfg.Feed.Fields
	return feed.Fields{
		ID:        f.ID,
		Name:      f.Name,
		Category:  f.Category,
		Version:   f.Version,
		Access:    f.Access,
		CreatedAt: f.CreatedAt,
		Image:     f.Image,
	}.WithDefaults()
}

func mapFeed(cfg *config.Config) (feed.Config, error) {
	timeout, err := config.DurationOr("feed.timeout", cfg.Feed.Timeout, config.DefaultFeedTimeout)
	if err != nil {
		return feed.Config{}, err
	}
	return feed.Config{
		URL:          strings.TrimSpace(cfg.Feed.URL),
		Timeout:      timeout,
		MaxBodyBytes: cfg.Feed.MaxBodyBytes,
		UserAgent:    cfg.Feed.UserAgent,
		Fields:       mapFields(cfg),
	}, nil
}

func mapPoll(cfg *config.Config) (poller.Config, poller.ParsedSchedule, error) {
	sched, err := poller.ParseSchedule(cfg.Poll.Interval)
	if err != nil {
		return poller.Config{}, poller.ParsedSchedule{}, err
	}
	cutoff, err := feed.ParseDate(cfg.Poll.CutoffDate)
	if err != nil {
		return poller.Config{}, poller.ParsedSchedule{}, err
	}
	return poller.Config{Cutoff: cutoff, Schedule: sched.Schedule}, sched, nil
}

func mapNotifier(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	out := notifier.Config{
		WebhookURL:     strings.TrimSpace(nc.WebhookURL),
		Username:       nc.Username,
		Color:          nc.Color,
		MaxAttempts:    nc.MaxAttempts,
		StrictImageURL: nc.StrictImageURL == nil || *nc.StrictImageURL,
	}
	var err error
	if out.Timeout, err = config.ParseDurationField("notifier.timeout", nc.Timeout); err != nil {
		return notifier.Config{}, err
	}
	if out.Pace, err = config.ParseDurationField("notifier.pace", nc.Pace); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryFallback, err = config.ParseDurationField("notifier.retry_fallback", nc.RetryFallback); err != nil {
		return notifier.Config{}, err
	}
	if out.MaxRateLimitWait, err = config.ParseDurationField("notifier.max_rate_limit_wait", nc.MaxRateLimitWait); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.DurationOr("storage.busy_timeout", sc.BusyTimeout, config.DefaultSQLiteBusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:       strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:         strings.TrimSpace(sc.Path),
		ResetOnStart: sc.ResetOnStart,
		BusyTimeout:  busy,
		Redis: storage.RedisConfig{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Prefix:   sc.Redis.Prefix,
		},
	}, nil
}

func mapHTTP(cfg *config.Config) (httpserver.Config, error) {
	hc := cfg.HTTP
	out := httpserver.Config{
		Addr: strings.TrimSpace(hc.Addr),
		Pprof: httpserver.PprofConfig{
			Enabled:       hc.Pprof.Enabled,
			Prefix:        hc.Pprof.Prefix,
			Token:         hc.Pprof.Token,
			AllowInsecure: hc.Pprof.AllowInsecure,
		},
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationField("http.read_timeout", hc.ReadTimeout); err != nil {
		return httpserver.Config{}, err
	}
	if out.WriteTimeout, err = config.ParseDurationField("http.write_timeout", hc.WriteTimeout); err != nil {
		return httpserver.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationField("http.idle_timeout", hc.IdleTimeout); err != nil {
		return httpserver.Config{}, err
	}
	return out, nil
}
