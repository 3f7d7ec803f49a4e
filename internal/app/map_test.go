package app

import (
	"testing"
	"time"

	"modwatch/internal/config"
	"modwatch/internal/poller"
)

func defaults() *config.Config {
	c := &config.Config{}
	config.ApplyDefaults(c)
	return c
}

func TestMapFeedFields(t *testing.T) {
	t.Parallel()
	c := defaults()
	c.Feed.Fields.Access = "access"
	fc, err := mapFeed(c)
	if err != nil {
		t.Fatal(err)
	}
	if fc.Fields.Access != "access" || fc.Fields.ID != "id" || fc.Fields.CreatedAt != "created_at" {
		t.Fatalf("fields = %+v", fc.Fields)
	}
	if fc.Timeout != 15*time.Second || fc.URL != config.DefaultFeedURL {
		t.Fatalf("feed = %+v", fc)
	}
}

func TestMapPoll(t *testing.T) {
	t.Parallel()
	c := defaults()
	pc, sched, err := mapPoll(c)
	if err != nil {
		t.Fatal(err)
	}
	if sched.Kind != poller.ScheduleInterval || sched.Every != 5*time.Second {
		t.Fatalf("schedule = %+v", sched)
	}
	if pc.Cutoff.String() != "2025-06-07" {
		t.Fatalf("cutoff = %s", pc.Cutoff)
	}

	c.Poll.Interval = "*/2 * * * *"
	if _, sched, err = mapPoll(c); err != nil || sched.Kind != poller.ScheduleCron {
		t.Fatalf("cron: %+v %v", sched, err)
	}

	c.Poll.Interval = "every tuesday"
	if _, _, err := mapPoll(c); err == nil {
		t.Fatal("expected invalid schedule error")
	}
}

func TestMapNotifier(t *testing.T) {
	t.Parallel()
	c := defaults()
	c.Notifier.WebhookURL = " https://discord.invalid/api/webhooks/1/x "
	c.Notifier.Pace = "250ms"
	c.Notifier.MaxRateLimitWait = "2m"
	off := false
	c.Notifier.StrictImageURL = &off

	nc, err := mapNotifier(c)
	if err != nil {
		t.Fatal(err)
	}
	if nc.WebhookURL != "https://discord.invalid/api/webhooks/1/x" || nc.Pace != 250*time.Millisecond ||
		nc.MaxRateLimitWait != 2*time.Minute || nc.StrictImageURL {
		t.Fatalf("notifier = %+v", nc)
	}

	c.Notifier.RetryFallback = "later"
	if _, err := mapNotifier(c); err == nil {
		t.Fatal("expected duration error")
	}
}

func TestMapStorageAndHTTP(t *testing.T) {
	t.Parallel()
	c := defaults()
	c.Storage.Driver = "SQLite"
	c.Storage.Path = " ./seen.db "
	c.Storage.BusyTimeout = "3s"
	sc, err := mapStorage(c)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Driver != "sqlite" || sc.Path != "./seen.db" || sc.BusyTimeout != 3*time.Second {
		t.Fatalf("storage = %+v", sc)
	}

	c.HTTP.ReadTimeout = "5s"
	c.HTTP.Pprof.Enabled = true
	hc, err := mapHTTP(c)
	if err != nil {
		t.Fatal(err)
	}
	if hc.Addr != config.DefaultHTTPAddr || hc.ReadTimeout != 5*time.Second || !hc.Pprof.Enabled {
		t.Fatalf("http = %+v", hc)
	}
}

func TestMapLoggingConsoleDefault(t *testing.T) {
	t.Parallel()
	if lc := mapLogging(&config.Config{}); !lc.Console {
		t.Fatal("console should default on")
	}
	off := false
	if lc := mapLogging(&config.Config{Logging: config.LoggingConfig{Console: &off}}); lc.Console {
		t.Fatal("console override ignored")
	}
}
