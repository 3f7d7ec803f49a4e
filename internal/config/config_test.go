package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func env(kv map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDecodeFormats(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		file string
		body string
	}{
		{"json", "c.json", `{"poll": {"interval": "30s"}, "feed": {"fields": {"access": "access"}}}`},
		{"jsonc", "c.jsonc", `{
			// poll every half minute
			"poll": {"interval": "30s"},
			"feed": {"fields": {"access": "access"}}, /* trailing comma below */
		}`},
		{"yaml", "c.yaml", "poll:\n  interval: 30s\nfeed:\n  fields:\n    access: access\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Decode(tc.file, []byte(tc.body))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if cfg.Poll.Interval != "30s" || cfg.Feed.Fields.Access != "access" {
				t.Fatalf("cfg = %+v", cfg)
			}
		})
	}
}

func TestDecodeJSONCTrailingCommas(t *testing.T) {
	t.Parallel()
	body := `{
		"poll": {"interval": "30s",},
		"notifier": {"username": "a,}b", /* kept inside the string */},
		"http": {"pprof": {"prefix": "/dbg/",},}, // nested
	}`
	cfg, err := Decode("c.jsonc", []byte(body))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Poll.Interval != "30s" || cfg.Notifier.Username != "a,}b" || cfg.HTTP.Pprof.Prefix != "/dbg/" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestStripTrailingCommas(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		`{"a":1,}`:               `{"a":1}`,
		`[1,2, ]`:                `[1,2 ]`,
		`{"s":"x,}","t":"\",]"}`: `{"s":"x,}","t":"\",]"}`,
		`{"a":[1,],}`:            `{"a":[1]}`,
	}
	for in, want := range cases {
		if got := string(stripTrailingCommas([]byte(in))); got != want {
			t.Errorf("stripTrailingCommas(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()
	if _, err := Decode("c.json", []byte(`{"poll": {"intervall": "5s"}}`)); err == nil {
		t.Fatal("expected unknown field error")
	}
	if _, err := Decode("c.yaml", []byte("storage:\n  drivr: file\n")); err == nil {
		t.Fatal("expected unknown field error for yaml")
	}
	if _, err := Decode("c.json", []byte(`{} {}`)); err == nil || !strings.Contains(err.Error(), "trailing") {
		t.Fatalf("err = %v, want trailing data", err)
	}
	if cfg, err := Decode("c.yaml", nil); err != nil || cfg == nil {
		t.Fatalf("empty yaml: %v", err)
	}
}

func TestLoadEnvOnlyDefaults(t *testing.T) {
	t.Parallel()
	m := NewManager("")
	m.SetLookup(env(map[string]string{"ENV_FILE": filepath.Join(t.TempDir(), "missing.env")}))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feed.URL != DefaultFeedURL || cfg.Poll.Interval != "5s" || cfg.Poll.CutoffDate != "2025-06-07" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.Path != "mod_cache.json" || cfg.HTTP.Addr != "0.0.0.0:8080" {
		t.Fatalf("storage/http defaults: %+v %+v", cfg.Storage, cfg.HTTP)
	}
	if cfg.Notifier.WebhookURL != "" || !*cfg.Notifier.StrictImageURL || !*cfg.Logging.Console {
		t.Fatalf("notifier/logging defaults: %+v %+v", cfg.Notifier, cfg.Logging)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the loaded config")
	}
}

func TestApplyDefaultsStoragePath(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"":        DefaultCachePath,
		"json":    DefaultCachePath,
		"sqlite":  DefaultSQLitePath,
		"SQLite3": DefaultSQLitePath,
		"memory":  "",
		"redis":   "",
	}
	for driver, want := range cases {
		c := &Config{Storage: StorageConfig{Driver: driver}}
		ApplyDefaults(c)
		if c.Storage.Path != want {
			t.Errorf("driver %q: path = %q, want %q", driver, c.Storage.Path, want)
		}
	}

	c := &Config{Storage: StorageConfig{Driver: "sqlite", Path: "/var/lib/modwatch/seen.db"}}
	ApplyDefaults(c)
	if c.Storage.Path != "/var/lib/modwatch/seen.db" {
		t.Fatalf("explicit path overwritten: %q", c.Storage.Path)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "modwatch.yaml", `
feed:
  url: https://example.invalid/mods/
poll:
  interval: 1m
notifier:
  webhook_url: https://discord.invalid/api/webhooks/file
storage:
  driver: sqlite
  path: ./seen.db
`)
	m := NewManager(path)
	m.SetLookup(env(map[string]string{
		"ENV_FILE":      filepath.Join(t.TempDir(), "missing.env"),
		EnvWebhookURL:   "https://discord.invalid/api/webhooks/env",
		EnvAccessField:  "access",
		EnvPollInterval: "10s",
		EnvPort:         "9090",
		EnvCutoffDate:   "  ",
	}))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notifier.WebhookURL != "https://discord.invalid/api/webhooks/env" {
		t.Fatalf("webhook = %q", cfg.Notifier.WebhookURL)
	}
	if cfg.Poll.Interval != "10s" || cfg.Feed.Fields.Access != "access" || cfg.HTTP.Addr != "0.0.0.0:9090" {
		t.Fatalf("env overrides: %+v", cfg)
	}
	if cfg.Feed.URL != "https://example.invalid/mods/" || cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "./seen.db" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.Poll.CutoffDate != DefaultCutoffDate {
		t.Fatalf("blank env should not override: %q", cfg.Poll.CutoffDate)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join(t.TempDir(), "nope.json"))
	m.SetLookup(env(map[string]string{"ENV_FILE": filepath.Join(t.TempDir(), "missing.env")}))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		c := &Config{}
		ApplyDefaults(c)
		return c
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"bad date", func(c *Config) { c.Poll.CutoffDate = "07/06/2025" }, "poll.cutoff_date"},
		{"bad duration", func(c *Config) { c.Notifier.Timeout = "soon" }, "notifier.timeout"},
		{"negative duration", func(c *Config) { c.HTTP.ReadTimeout = "-1s" }, "http.read_timeout"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"redis needs addr", func(c *Config) { c.Storage.Driver = "redis" }, "storage.redis.addr"},
		{"bad feed url", func(c *Config) { c.Feed.URL = "ftp://x" }, "feed.url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := base()
			tc.mutate(c)
			err := Validate(c)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("Validate = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestSummaryRedactsSecrets(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	cfg.Notifier.WebhookURL = "https://discord.com/api/webhooks/123/secret-token"
	cfg.Storage.Driver = "redis"
	cfg.Storage.Redis.Addr = "localhost:6379"
	cfg.Storage.Redis.Password = "hunter2"
	ApplyDefaults(cfg)

	if got := redactURL(cfg.Notifier.WebhookURL); got != "https://discord.com/…" {
		t.Fatalf("redactURL = %q", got)
	}
	if got := storageSummary(cfg.Storage); strings.Contains(got, "hunter2") {
		t.Fatalf("storage summary leaks password: %q", got)
	}
	if got := redactURL(""); got != "unset" {
		t.Fatalf("redactURL(\"\") = %q", got)
	}
	if len(Summary(cfg, "")) == 0 {
		t.Fatal("empty summary")
	}
}

func TestDurationOr(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr string
	}{
		{"", DefaultFeedTimeout, ""},
		{"0s", DefaultFeedTimeout, ""},
		{" 250ms ", 250 * time.Millisecond, ""},
		{"abc", 0, "feed.timeout: \"abc\" is not a duration"},
		{"-1s", 0, "is negative"},
	}
	for _, tc := range cases {
		got, err := DurationOr("feed.timeout", tc.raw, DefaultFeedTimeout)
		if tc.wantErr != "" {
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("DurationOr(%q) err = %v, want %q", tc.raw, err, tc.wantErr)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("DurationOr(%q) = %v, %v; want %v", tc.raw, got, err, tc.want)
		}
	}
}

func TestDurationFieldsCoverSchema(t *testing.T) {
	t.Parallel()
	c := &Config{}
	c.Storage.BusyTimeout = "2s"
	if got := c.durationFields()["storage.busy_timeout"]; got != "2s" {
		t.Fatalf("busy_timeout = %q", got)
	}
	if n := len(c.durationFields()); n != 9 {
		t.Fatalf("duration keys = %d, want 9", n)
	}
}
