// Package metrics holds the Prometheus instruments for the poll loop and the
// notifier. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "modwatch"

type Metrics struct {
	gatherer prometheus.Gatherer

	CyclesTotal          prometheus.Counter
	CycleDurationSeconds prometheus.Histogram
	LastCycleTimestamp   prometheus.Gauge
	FetchErrorsTotal     prometheus.Counter
	ItemsFetchedTotal    prometheus.Counter
	ItemsSkippedTotal    *prometheus.CounterVec
	NotificationsTotal   *prometheus.CounterVec
	RateLimitedTotal     prometheus.Counter
	SeenItems            prometheus.Gauge
	PersistErrorsTotal   prometheus.Counter
}

// New registers all instruments on a fresh registry (plus the Go and process
// collectors), so several instances can coexist in one test binary.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWith(reg, reg)
}

// NewWith registers instruments on reg and serves them from g.
func NewWith(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	f := promauto.With(reg)
	return &Metrics{
		gatherer: g,
		CyclesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "poll",
			Name: "cycles_total",
			Help: "Total number of poll cycles run",
		}),
		CycleDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace, Subsystem: "poll",
			Name:    "cycle_duration_seconds",
			Help:    "Duration of poll cycles in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		LastCycleTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "poll",
			Name: "last_cycle_timestamp_seconds",
			Help: "Unix time the last poll cycle finished",
		}),
		FetchErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "feed",
			Name: "fetch_errors_total",
			Help: "Cycles whose fetch returned nothing because of an error",
		}),
		ItemsFetchedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "feed",
			Name: "items_fetched_total",
			Help: "Items returned by the upstream feed",
		}),
		ItemsSkippedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "feed",
			Name: "items_skipped_total",
			Help: "Malformed items skipped by the filter",
		}, []string{"reason"}),
		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "notifier",
			Name: "notifications_total",
			Help: "Notification attempts by final result",
		}, []string{"result"}),
		RateLimitedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "notifier",
			Name: "rate_limited_total",
			Help: "429 responses received from the webhook",
		}),
		SeenItems: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "seen",
			Name: "items",
			Help: "Identifiers currently in the seen-set",
		}),
		PersistErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "seen",
			Name: "persist_errors_total",
			Help: "Failed writes of the seen cache",
		}),
	}
}

// Handler serves the exposition format for this instance.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCycle(d time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.CyclesTotal.Inc()
	m.CycleDurationSeconds.Observe(d.Seconds())
	m.LastCycleTimestamp.Set(float64(finished.Unix()))
}

func (m *Metrics) Fetched(n int, failed bool) {
	if m == nil {
		return
	}
	if failed {
		m.FetchErrorsTotal.Inc()
	}
	m.ItemsFetchedTotal.Add(float64(n))
}

func (m *Metrics) Skipped(reason string) {
	if m == nil {
		return
	}
	m.ItemsSkippedTotal.WithLabelValues(reason).Inc()
}

// Notified records the final result of one item: "sent" or "failed".
func (m *Metrics) Notified(result string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

func (m *Metrics) SetSeen(n int) {
	if m == nil {
		return
	}
	m.SeenItems.Set(float64(n))
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.PersistErrorsTotal.Inc()
}
