// Package poller runs the fetch, filter, notify and persist cycle on a schedule.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"modwatch/internal/eventbus"
	"modwatch/internal/feed"
	"modwatch/internal/metrics"
	"modwatch/internal/seen"
	logx "modwatch/pkg/logx"
)

const (
	EventCycle = "poller.cycle"

	defaultSaveTimeout = 10 * time.Second
)

type Fetcher interface {
	Fetch(ctx context.Context) ([]feed.Item, error)
}

type Notifier interface {
	Notify(ctx context.Context, item feed.Item) error
}

type Config struct {
	Cutoff   feed.Date
	Schedule Schedule
	// SaveTimeout bounds persisting the seen-set after a cycle. The save
	// runs even when the cycle was interrupted by shutdown.
	SaveTimeout time.Duration
}

// Report summarizes one cycle.
type Report struct {
	CycleID     string        `json:"cycle_id"`
	Started     time.Time     `json:"started"`
	Duration    time.Duration `json:"duration"`
	Fetched     int           `json:"fetched"`
	FetchFailed bool          `json:"fetch_failed,omitempty"`
	Skipped     int           `json:"skipped"`
	Fresh       int           `json:"fresh"`
	Notified    int           `json:"notified"`
	Failed      int           `json:"failed"`
	Seen        int           `json:"seen"`
	Interrupted bool          `json:"interrupted,omitempty"`
	PersistErr  string        `json:"persist_error,omitempty"`
}

type Option func(*Poller)

func WithBus(b eventbus.Bus) Option { return func(p *Poller) { p.bus = b } }

func WithMetrics(m *metrics.Metrics) Option { return func(p *Poller) { p.metrics = m } }

// withClock replaces time.Now for cycle timestamps and scheduling.
func withClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// Poller owns the seen-set. RunOnce and Run must not be called concurrently.
type Poller struct {
	cfg      Config
	fetcher  Fetcher
	notifier Notifier
	seen     *seen.Set
	log      logx.Logger
	bus      eventbus.Bus
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(cfg Config, f Fetcher, n Notifier, set *seen.Set, log logx.Logger, opts ...Option) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Schedule == nil {
		cfg.Schedule = Every(5 * time.Second)
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = defaultSaveTimeout
	}
	if set == nil {
		set = seen.New(nil, feed.Fields{}, log)
	}
	p := &Poller{
		cfg:      cfg,
		fetcher:  f,
		notifier: n,
		seen:     set,
		log:      log,
		now:      time.Now,
	}
	for _, o := range opts {
		if o != nil {
			o(p)
		}
	}
	p.metrics.SetSeen(set.Len())
	return p
}

// Seen exposes the seen-set for inspection. Callers must not mutate it
// while the poller runs.
func (p *Poller) Seen() *seen.Set { return p.seen }

// Run performs a cycle immediately and then one per schedule activation
// until ctx is cancelled. A failing cycle never ends the loop.
func (p *Poller) Run(ctx context.Context) error {
	for {
		p.RunOnce(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}

		now := p.now()
		next := p.cfg.Schedule.Next(now)
		wait := next.Sub(now)
		if wait < 0 {
			wait = 0
		}
		p.log.Trace("next poll scheduled", logx.Time("at", next))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// RunOnce performs one cycle: fetch, filter, notify each fresh item in order,
// mark it seen whatever the outcome, then persist.
func (p *Poller) RunOnce(ctx context.Context) Report {
	rep := Report{CycleID: uuid.NewString(), Started: p.now()}
	log := p.log.With(logx.String("cycle_id", rep.CycleID))

	items, err := p.fetcher.Fetch(ctx)
	rep.Fetched = len(items)
	rep.FetchFailed = err != nil
	p.metrics.Fetched(len(items), err != nil)

	for _, it := range items {
		log.Debug("mod",
			logx.String("name", it.Name),
			logx.String("created_at", it.CreatedAt),
			logx.String("id", it.ID),
		)
	}

	fresh, skipped := feed.Filter(items, p.seen, p.cfg.Cutoff)
	rep.Skipped = len(skipped)
	rep.Fresh = len(fresh)
	for _, sk := range skipped {
		reason := "bad_created_at"
		if errors.Is(sk.Reason, feed.ErrNoID) {
			reason = "no_id"
		}
		p.metrics.Skipped(reason)
		log.Warn("skipping malformed mod",
			logx.String("reason", reason),
			logx.String("id", sk.Item.ID),
			logx.String("name", sk.Item.Name),
			logx.Err(sk.Reason),
		)
	}

	if len(fresh) == 0 {
		log.Info("no new mods found")
	}

	for _, it := range fresh {
		if ctx.Err() != nil {
			rep.Interrupted = true
			break
		}
		// The notifier already logged any failure at error level.
		if err := p.notifier.Notify(ctx, it); err != nil {
			rep.Failed++
			log.Debug("mod abandoned", logx.String("id", it.ID), logx.Err(err))
		} else {
			rep.Notified++
		}
		p.seen.Add(it)
	}

	if p.seen.Pending() > 0 {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.SaveTimeout)
		if err := p.seen.Save(sctx); err != nil {
			rep.PersistErr = err.Error()
			p.metrics.PersistFailed()
			log.Error("failed to persist seen cache", logx.Err(err), logx.Int("pending", p.seen.Pending()))
		}
		cancel()
	}

	rep.Seen = p.seen.Len()
	finished := p.now()
	rep.Duration = finished.Sub(rep.Started)
	p.metrics.SetSeen(rep.Seen)
	p.metrics.ObserveCycle(rep.Duration, finished)
	if p.bus != nil {
		p.bus.Publish(eventbus.Event{Type: EventCycle, Time: finished, Data: rep})
	}
	if rep.Fresh > 0 {
		log.Info("poll cycle done",
			logx.Int("fresh", rep.Fresh),
			logx.Int("notified", rep.Notified),
			logx.Int("failed", rep.Failed),
			logx.Int("seen", rep.Seen),
			logx.Duration("took", rep.Duration),
		)
	}
	return rep
}
