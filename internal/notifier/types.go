package notifier

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoWebhook       = errors.New("webhook url not configured")
	ErrRateLimitBudget = errors.New("rate limit retry budget exhausted")
)

const (
	DefaultUsername         = "API Bot"
	DefaultColor            = 3066993
	DefaultTimeout          = 10 * time.Second
	DefaultRetryFallback    = time.Second
	DefaultMaxAttempts      = 50
	DefaultMaxRateLimitWait = 10 * time.Minute
)

// Config controls payload shape and delivery policy.
type Config struct {
	WebhookURL string
	Username   string
	Color      int

	// Timeout bounds each POST attempt.
	Timeout time.Duration
	// Pace is the minimum spacing between deliveries (0 = off).
	Pace time.Duration

	// RetryFallback is used when a 429 carries no usable delay.
	RetryFallback    time.Duration
	MaxAttempts      int
	MaxRateLimitWait time.Duration

	// StrictImageURL drops image urls that are not absolute http(s).
	StrictImageURL bool
}

func (c Config) withDefaults() Config {
	if c.Username == "" {
		c.Username = DefaultUsername
	}
	if c.Color == 0 {
		c.Color = DefaultColor
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Pace < 0 {
		c.Pace = 0
	}
	if c.RetryFallback <= 0 {
		c.RetryFallback = DefaultRetryFallback
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MaxRateLimitWait <= 0 {
		c.MaxRateLimitWait = DefaultMaxRateLimitWait
	}
	return c
}

// StatusError is a non-2xx, non-429 webhook response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
}

// DeliveryEvent is published on the event bus after each Notify.
type DeliveryEvent struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Attempts int       `json:"attempts"`
	Waited   string    `json:"waited,omitempty"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
