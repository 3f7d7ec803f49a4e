package config

// Config is the on-disk schema (JSON, JSONC or YAML). Durations are Go
// duration strings ("5s", "10m"). Every field is optional; ApplyDefaults fills
// the rest after ApplyEnv has run.
type Config struct {
	Feed     FeedConfig     `json:"feed"`
	Poll     PollConfig     `json:"poll"`
	Notifier NotifierConfig `json:"notifier"`
	Storage  StorageConfig  `json:"storage"`
	HTTP     HTTPConfig     `json:"http"`
	Logging  LoggingConfig  `json:"logging"`
}

type FeedConfig struct {
	URL          string       `json:"url,omitempty"`
	Timeout      string       `json:"timeout,omitempty"`
	MaxBodyBytes int64        `json:"max_body_bytes,omitempty"`
	UserAgent    string       `json:"user_agent,omitempty"`
	Fields       FieldsConfig `json:"fields"`
}

// FieldsConfig renames item fields. Deployments disagree on the access
// field name (access_type vs access).
type FieldsConfig struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Category  string `json:"category,omitempty"`
	Version   string `json:"version,omitempty"`
	Access    string `json:"access,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	Image     string `json:"image,omitempty"`
}

type PollConfig struct {
	// Interval is a duration ("5s"), HH:MM ("00:05"), "@every 5s" or a cron expression.
	Interval   string `json:"interval,omitempty"`
	CutoffDate string `json:"cutoff_date,omitempty"` // YYYY-MM-DD
}

type NotifierConfig struct {
	WebhookURL       string `json:"webhook_url,omitempty"` // secret; never logged
	Username         string `json:"username,omitempty"`
	Color            int    `json:"color,omitempty"`
	Timeout          string `json:"timeout,omitempty"`
	Pace             string `json:"pace,omitempty"`
	RetryFallback    string `json:"retry_fallback,omitempty"`
	MaxAttempts      int    `json:"max_attempts,omitempty"`
	MaxRateLimitWait string `json:"max_rate_limit_wait,omitempty"`
	// StrictImageURL is a pointer so an omitted key keeps the default (true).
	StrictImageURL *bool `json:"strict_image_url,omitempty"`
}

// StorageConfig selects the seen-cache backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./modwatch.db" }
type StorageConfig struct {
	Driver       string      `json:"driver,omitempty"` // file | sqlite | redis | memory
	Path         string      `json:"path,omitempty"`
	ResetOnStart bool        `json:"reset_on_start,omitempty"`
	BusyTimeout  string      `json:"busy_timeout,omitempty"` // sqlite
	Redis        RedisConfig `json:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"` // secret; never logged
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

type HTTPConfig struct {
	Addr         string      `json:"addr,omitempty"`
	ReadTimeout  string      `json:"read_timeout,omitempty"`
	WriteTimeout string      `json:"write_timeout,omitempty"`
	IdleTimeout  string      `json:"idle_timeout,omitempty"`
	Pprof        PprofConfig `json:"pprof"`
}

// PprofConfig mounts pprof on the liveness server.
//
// On a non-loopback address set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled,omitempty"`
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}
