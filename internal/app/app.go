package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"modwatch/internal/config"
	"modwatch/internal/eventbus"
	"modwatch/internal/feed"
	"modwatch/internal/httpserver"
	"modwatch/internal/metrics"
	"modwatch/internal/notifier"
	"modwatch/internal/poller"
	"modwatch/internal/runtime/supervisor"
	"modwatch/internal/seen"
	"modwatch/internal/storage"
	logx "modwatch/pkg/logx"
)

const seenLoadTimeout = 30 * time.Second

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     *eventbus.MemBus
	store   storage.Store
	metrics *metrics.Metrics

	schedule poller.ParsedSchedule
	loaded   int
	notif    *notifier.Service
	poll     *poller.Poller
	http     *httpserver.Service
}

// NewApp loads the config at cfgPath (empty means environment only) and
// wires every component. Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	return newApp(config.NewManager(cfgPath))
}

func newApp(cfgm *config.Manager) (*App, error) {
	bootLog := logx.NewConsole("info")
	cfgm.SetLogger(bootLog.With(logx.String("comp", "config")))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	// Map everything before touching storage so a bad value fails fast.
	fc, err := mapFeed(cfg)
	if err != nil {
		return nil, err
	}
	pc, sched, err := mapPoll(cfg)
	if err != nil {
		return nil, err
	}
	nc, err := mapNotifier(cfg)
	if err != nil {
		return nil, err
	}
	sc, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	hc, err := mapHTTP(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	log = log.With(logx.String("comp", "app"))
	log.Info("config loaded", config.Summary(cfg, cfgm.Path())...)

	bus := eventbus.New()
	m := metrics.New()

	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	} else {
		log.Warn("storage disabled; seen mods are forgotten on restart")
	}

	set := seen.New(store, fc.Fields, log.With(logx.String("comp", "seen")))
	lctx, cancel := context.WithTimeout(context.Background(), seenLoadTimeout)
	loaded := set.Load(lctx)
	cancel()

	// One client for both directions; each call bounds itself with its own timeout.
	client := &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}

	fetcher := feed.NewFetcher(fc, client, log.With(logx.String("comp", "feed")))
	notif := notifier.New(nc, client, log.With(logx.String("comp", "notifier")),
		notifier.WithBus(bus), notifier.WithMetrics(m))
	if !notif.Configured() {
		log.Warn("webhook url not set; new mods will be logged and dropped", logx.String("env", config.EnvWebhookURL))
	}

	poll := poller.New(pc, fetcher, notif, set, log.With(logx.String("comp", "poller")),
		poller.WithBus(bus), poller.WithMetrics(m))

	httpSvc := httpserver.New(hc, log.With(logx.String("comp", "http")), m.Handler())

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		metrics:  m,
		schedule: sched,
		loaded:   loaded,
		notif:    notif,
		poll:     poll,
		http:     httpSvc,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches the liveness server and the poll loop as independent tasks.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.http.Start(a.sup.Context())

	a.sup.GoRestart("poller", a.poll.Run,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second),
	)

	// Keep this debug-level; cycles are frequent.
	a.sup.Go("eventbus.log", func(c context.Context) error {
		return eventbus.Consume(c, a.bus, 128, func(e eventbus.Event) {
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		})
	})

	a.sup.Go("systemd.ready", func(c context.Context) error {
		select {
		case <-c.Done():
			return nil
		case <-a.http.Ready():
		}
		if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			a.log.Warn("systemd ready notify failed", logx.Err(err))
		} else if sent {
			a.log.Debug("systemd notified ready")
		}
		return nil
	})

	a.log.Info("app started",
		logx.String("schedule", a.schedule.String()),
		logx.Int("seen", a.loaded),
		logx.Bool("webhook", a.notif.Configured()),
	)
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Cancel first; an in-flight cycle finishes its current item and saves.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			elapsed := time.Since(start)
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", elapsed),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	step("http", 2*time.Second, a.http.Stop)
	// The poller persists the seen-set on its way out; wait before closing storage.
	step("supervisor", 5*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	for _, st := range a.sup.Snapshot() {
		a.log.Debug("task stats",
			logx.String("name", st.Name),
			logx.Int64("active", st.Active),
			logx.Int64("restarts", int64(st.Restarts)),
			logx.Int64("panics", int64(st.Panics)),
			logx.String("last_err", st.LastErr),
		)
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
