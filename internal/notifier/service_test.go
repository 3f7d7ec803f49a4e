package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"modwatch/internal/eventbus"
	"modwatch/internal/feed"
	"modwatch/internal/metrics"
	logx "modwatch/pkg/logx"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

// scripted answers requests with the given statuses/bodies in order, then 200.
func scripted(t *testing.T, steps ...func(w http.ResponseWriter)) (*httptest.Server, *atomic.Int32, *[][]byte) {
	t.Helper()
	var calls atomic.Int32
	var mu sync.Mutex
	var bodies [][]byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, b)
		mu.Unlock()
		n := int(calls.Add(1))
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if n <= len(steps) {
			steps[n-1](w)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &bodies
}

func tooMany(body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, body)
	}
}

func errorLines(buf *bytes.Buffer) int {
	n := 0
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, `"level":"error"`) {
			n++
		}
	}
	return n
}

var sample = feed.Item{
	ID:        "a",
	Name:      "Cool Car",
	Category:  "Vehicles",
	Version:   "1.2",
	Access:    "free",
	CreatedAt: "2025-06-10T12:00:00Z",
	ImageURL:  "https://cdn.example.com/a.png",
}

func TestNotifyRetriesRateLimit(t *testing.T) {
	t.Parallel()
	srv, calls, _ := scripted(t,
		tooMany(`{"retry_after": 2000}`),
		tooMany(`{"retry_after": 2000}`),
	)
	rec := &sleepRecorder{}
	m := metrics.New()
	s := New(Config{WebhookURL: srv.URL}, srv.Client(), logx.Nop(), WithSleep(rec.sleep), WithMetrics(m))

	if err := s.Notify(context.Background(), sample); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
	if len(rec.waits) != 2 || rec.waits[0] != 2*time.Second || rec.waits[1] != 2*time.Second {
		t.Fatalf("sleeps = %v, want [2s 2s]", rec.waits)
	}
	if got := testutil.ToFloat64(m.RateLimitedTotal); got != 2 {
		t.Fatalf("rate limited metric = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("sent")); got != 1 {
		t.Fatalf("sent metric = %v, want 1", got)
	}
}

func TestRetryAfterSources(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		body   string
		header string
		want   time.Duration
	}{
		{"body millis", `{"retry_after": 1500}`, "", 1500 * time.Millisecond},
		{"body fractional", `{"retry_after": 12.5}`, "", 12500 * time.Microsecond},
		{"body zero", `{"retry_after": 0}`, "7", 0},
		{"header seconds", `{}`, "3", 3 * time.Second},
		{"not json", `slow down`, "", time.Second},
		{"negative", `{"retry_after": -5}`, "", time.Second},
		{"body overflow", `{"retry_after": 1e13}`, "", time.Duration(math.MaxInt64)},
		{"header overflow", `{}`, "1e300", time.Duration(math.MaxInt64)},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := http.Header{}
			if tc.header != "" {
				h.Set("Retry-After", tc.header)
			}
			got := retryAfter(response{status: 429, header: h, body: []byte(tc.body)}, time.Second)
			if got != tc.want {
				t.Fatalf("retryAfter = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNotifyRateLimitBudget(t *testing.T) {
	t.Parallel()
	always := func(w http.ResponseWriter) { tooMany(`{"retry_after": 1000}`)(w) }

	t.Run("attempt cap", func(t *testing.T) {
		t.Parallel()
		srv, calls, _ := scripted(t, always, always, always, always)
		rec := &sleepRecorder{}
		s := New(Config{WebhookURL: srv.URL, MaxAttempts: 3}, srv.Client(), logx.Nop(), WithSleep(rec.sleep))
		err := s.Notify(context.Background(), sample)
		if !errors.Is(err, ErrRateLimitBudget) {
			t.Fatalf("err = %v, want ErrRateLimitBudget", err)
		}
		if calls.Load() != 3 || len(rec.waits) != 2 {
			t.Fatalf("calls=%d sleeps=%d, want 3 and 2", calls.Load(), len(rec.waits))
		}
	})

	t.Run("wait budget", func(t *testing.T) {
		t.Parallel()
		srv, calls, _ := scripted(t, always, always, always, always)
		rec := &sleepRecorder{}
		s := New(Config{WebhookURL: srv.URL, MaxRateLimitWait: 2500 * time.Millisecond}, srv.Client(), logx.Nop(), WithSleep(rec.sleep))
		err := s.Notify(context.Background(), sample)
		if !errors.Is(err, ErrRateLimitBudget) {
			t.Fatalf("err = %v, want ErrRateLimitBudget", err)
		}
		if calls.Load() != 3 || len(rec.waits) != 2 {
			t.Fatalf("calls=%d sleeps=%d, want 3 and 2", calls.Load(), len(rec.waits))
		}
	})
}

func TestNotifyHugeRetryAfterExhaustsBudget(t *testing.T) {
	t.Parallel()
	huge := tooMany(`{"retry_after": 1e13}`)
	srv, calls, _ := scripted(t, huge, huge, huge)
	rec := &sleepRecorder{}
	s := New(Config{WebhookURL: srv.URL}, srv.Client(), logx.Nop(), WithSleep(rec.sleep))

	err := s.Notify(context.Background(), sample)
	if !errors.Is(err, ErrRateLimitBudget) {
		t.Fatalf("err = %v, want ErrRateLimitBudget", err)
	}
	if calls.Load() != 1 || len(rec.waits) != 0 {
		t.Fatalf("calls=%d sleeps=%v, want one call and no sleep", calls.Load(), rec.waits)
	}
}

func TestNotifyTruncatedRateLimitBody(t *testing.T) {
	t.Parallel()
	srv, calls, _ := scripted(t, func(w http.ResponseWriter) {
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"retry_after": 50`)
	})
	var buf bytes.Buffer
	rec := &sleepRecorder{}
	s := New(Config{WebhookURL: srv.URL}, srv.Client(), logx.NewWriter(&buf, "debug"), WithSleep(rec.sleep))

	if err := s.Notify(context.Background(), sample); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if calls.Load() != 2 || len(rec.waits) != 1 || rec.waits[0] != DefaultRetryFallback {
		t.Fatalf("calls=%d sleeps=%v, want 2 calls and one fallback sleep", calls.Load(), rec.waits)
	}
	if !strings.Contains(buf.String(), "webhook response body truncated") {
		t.Fatalf("missing truncation log:\n%s", buf.String())
	}
}

func TestNotifyWithoutWebhook(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{}, nil, logx.NewWriter(&buf, "debug"), WithBus(bus))
	if s.Configured() {
		t.Fatal("expected unconfigured service")
	}
	if err := s.Notify(context.Background(), sample); !errors.Is(err, ErrNoWebhook) {
		t.Fatalf("err = %v, want ErrNoWebhook", err)
	}
	if n := errorLines(&buf); n != 1 {
		t.Fatalf("error log lines = %d, want 1\n%s", n, buf.String())
	}
	select {
	case ev := <-events:
		if ev.Type != "notifier.failed" {
			t.Fatalf("event type = %q", ev.Type)
		}
	default:
		t.Fatal("expected a notifier.failed event")
	}
}

func TestNotifyPermanentFailure(t *testing.T) {
	t.Parallel()
	srv, calls, _ := scripted(t, func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message": "Invalid Form Body"}`)
	})
	var buf bytes.Buffer
	rec := &sleepRecorder{}
	s := New(Config{WebhookURL: srv.URL}, srv.Client(), logx.NewWriter(&buf, "debug"), WithSleep(rec.sleep))

	err := s.Notify(context.Background(), sample)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v, want *StatusError 400", err)
	}
	if !strings.Contains(se.Body, "Invalid Form Body") {
		t.Fatalf("status body = %q", se.Body)
	}
	if calls.Load() != 1 || len(rec.waits) != 0 {
		t.Fatalf("calls=%d sleeps=%d, want 1 and 0", calls.Load(), len(rec.waits))
	}
	if n := errorLines(&buf); n != 1 {
		t.Fatalf("error log lines = %d, want 1", n)
	}
	if !strings.Contains(buf.String(), "New Mod: Cool Car") {
		t.Fatal("expected payload in debug log")
	}
}

func TestNotifyTransportError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := New(Config{WebhookURL: url, Timeout: time.Second}, nil, logx.Nop())
	err := s.Notify(context.Background(), sample)
	if err == nil || errors.Is(err, ErrRateLimitBudget) {
		t.Fatalf("err = %v, want transport error", err)
	}
}

func TestNotifyStopsOnCancel(t *testing.T) {
	t.Parallel()
	srv, calls, _ := scripted(t, tooMany(`{"retry_after": 60000}`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(Config{WebhookURL: srv.URL}, srv.Client(), logx.Nop())
	err := s.Notify(ctx, sample)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls.Load() > 1 {
		t.Fatalf("calls = %d after cancel", calls.Load())
	}
}

func TestNotifyPayloadOnWire(t *testing.T) {
	t.Parallel()
	srv, _, bodies := scripted(t)
	s := New(Config{WebhookURL: srv.URL, StrictImageURL: true}, srv.Client(), logx.Nop())
	if err := s.Notify(context.Background(), sample); err != nil {
		t.Fatal(err)
	}
	if len(*bodies) != 1 {
		t.Fatalf("bodies = %d", len(*bodies))
	}
	var got struct {
		Username string `json:"username"`
		Embeds   []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Color       int    `json:"color"`
			Image       *struct {
				URL string `json:"url"`
			} `json:"image"`
		} `json:"embeds"`
	}
	if err := json.Unmarshal((*bodies)[0], &got); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if got.Username != "API Bot" || len(got.Embeds) != 1 {
		t.Fatalf("unexpected payload: %s", (*bodies)[0])
	}
	e := got.Embeds[0]
	if e.Title != "🆕 New Mod: Cool Car" || e.Color != 3066993 {
		t.Fatalf("embed = %+v", e)
	}
	want := "**Category:** Vehicles\n**Version:** 1.2\n**Access:** free\n**Uploaded:** 2025-06-10"
	if e.Description != want {
		t.Fatalf("description = %q, want %q", e.Description, want)
	}
	if e.Image == nil || e.Image.URL != sample.ImageURL {
		t.Fatalf("image = %+v", e.Image)
	}
}
