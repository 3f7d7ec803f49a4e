package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"modwatch/internal/eventbus"
	"modwatch/internal/feed"
	"modwatch/internal/metrics"
	logx "modwatch/pkg/logx"
)

const maxResponseBody = 64 << 10

// SleepFunc waits d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Option func(*Service)

func WithBus(b eventbus.Bus) Option { return func(s *Service) { s.bus = b } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithSleep replaces the wait used between rate-limited attempts.
func WithSleep(fn SleepFunc) Option {
	return func(s *Service) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// Service posts notifications to one webhook.
//
// It is meant to be driven by a single goroutine (the poll loop).
type Service struct {
	cfg     Config
	client  *http.Client
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics
	limiter *rate.Limiter
	sleep   SleepFunc
}

func New(cfg Config, client *http.Client, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if client == nil {
		client = http.DefaultClient
	}
	cfg = cfg.withDefaults()
	cfg.WebhookURL = strings.TrimSpace(cfg.WebhookURL)

	s := &Service{
		cfg:    cfg,
		client: client,
		log:    log,
		sleep:  sleepCtx,
	}
	if cfg.Pace > 0 {
		s.limiter = rate.NewLimiter(rate.Every(cfg.Pace), 1)
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s
}

// Configured reports whether a webhook url is set.
func (s *Service) Configured() bool { return s.cfg.WebhookURL != "" }

// Notify delivers one message for item.
//
// Returned errors: ErrNoWebhook, ErrRateLimitBudget (wrapped), *StatusError,
// a wrapped transport error, or the context error.
func (s *Service) Notify(ctx context.Context, item feed.Item) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := s.log.With(logx.String("id", item.ID), logx.String("name", item.Name))

	if s.cfg.WebhookURL == "" {
		log.Error("notification dropped", logx.Err(ErrNoWebhook))
		s.finish(item, 0, 0, ErrNoWebhook)
		return ErrNoWebhook
	}

	body, err := json.Marshal(Payload(item, s.cfg))
	if err != nil {
		err = fmt.Errorf("encode payload: %w", err)
		log.Error("notification dropped", logx.Err(err))
		s.finish(item, 0, 0, err)
		return err
	}

	attempts, waited, err := s.deliver(ctx, log, body)
	if err != nil {
		log.Error("notification failed",
			logx.Err(err),
			logx.Int("attempts", attempts),
			logx.Duration("waited", waited),
		)
	} else {
		log.Info("notification sent", logx.Int("attempts", attempts))
	}
	s.finish(item, attempts, waited, err)
	return err
}

func (s *Service) deliver(ctx context.Context, log logx.Logger, body []byte) (int, time.Duration, error) {
	var waited time.Duration
	for attempt := 1; ; attempt++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return attempt - 1, waited, err
			}
		}

		res, err := s.post(ctx, log, body)
		if err != nil {
			log.Debug("webhook post failed", logx.Err(err), logx.String("payload", string(body)))
			return attempt, waited, fmt.Errorf("post webhook: %w", err)
		}

		switch {
		case res.status >= 200 && res.status < 300:
			return attempt, waited, nil

		case res.status == http.StatusTooManyRequests:
			s.metrics.RateLimited()
			wait := retryAfter(res, s.cfg.RetryFallback)
			if attempt >= s.cfg.MaxAttempts || wait > s.cfg.MaxRateLimitWait-waited {
				return attempt, waited, fmt.Errorf("%w after %d attempts", ErrRateLimitBudget, attempt)
			}
			log.Warn("rate limited by webhook",
				logx.Duration("retry_after", wait),
				logx.Int("attempt", attempt),
			)
			if err := s.sleep(ctx, wait); err != nil {
				return attempt, waited, err
			}
			waited += wait

		default:
			log.Debug("webhook rejected payload",
				logx.Int("status", res.status),
				logx.String("payload", string(body)),
			)
			return attempt, waited, &StatusError{StatusCode: res.status, Body: snippet(res.body)}
		}
	}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (s *Service) post(ctx context.Context, log logx.Logger, body []byte) (response, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		log.Debug("webhook response body truncated", logx.Int("status", resp.StatusCode), logx.Err(err))
	}
	return response{status: resp.StatusCode, header: resp.Header, body: b}, nil
}

// retryAfter reads the delay of a 429: JSON retry_after in milliseconds,
// then the Retry-After header in seconds, then fallback. Delays too large
// for a time.Duration saturate at the maximum, which no wait budget admits.
func retryAfter(res response, fallback time.Duration) time.Duration {
	var payload struct {
		RetryAfter *float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(res.body, &payload); err == nil && payload.RetryAfter != nil && *payload.RetryAfter >= 0 {
		return scaled(*payload.RetryAfter, time.Millisecond)
	}
	if h := strings.TrimSpace(res.header.Get("Retry-After")); h != "" {
		if secs, err := strconv.ParseFloat(h, 64); err == nil && secs >= 0 {
			return scaled(secs, time.Second)
		}
	}
	return fallback
}

func scaled(v float64, unit time.Duration) time.Duration {
	ns := v * float64(unit)
	if math.IsInf(ns, 0) || math.IsNaN(ns) || ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}

func (s *Service) finish(item feed.Item, attempts int, waited time.Duration, err error) {
	result := "sent"
	ev := DeliveryEvent{ID: item.ID, Name: item.Name, Attempts: attempts, At: time.Now()}
	if waited > 0 {
		ev.Waited = waited.String()
	}
	if err != nil {
		result = "failed"
		ev.Error = err.Error()
	}
	s.metrics.Notified(result)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "notifier." + result, Time: ev.At, Data: ev})
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

