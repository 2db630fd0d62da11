package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"standupbot/internal/config"
	"standupbot/internal/eventbus"
	"standupbot/internal/health"
	"standupbot/internal/metrics"
	"standupbot/internal/runtime/supervisor"
	"standupbot/internal/schedule"
	"standupbot/internal/standup"
	"standupbot/internal/storage"
	"standupbot/internal/transport"
	telegram "standupbot/internal/transport/telegram/adapter"
	"standupbot/internal/transport/telegram/router"
	logx "standupbot/pkg/logx"
	"standupbot/pkg/systemd"
)

type Options struct {
	ConfigPath string
	// AllowMissing runs from the environment alone when the file is absent.
	AllowMissing bool
}

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	store   storage.Store
	metrics *metrics.Metrics

	adapter *telegram.Adapter
	state   *standup.State
	coord   *standup.Coordinator
	driver  *standup.Driver
	router  *router.Router
	http    *health.Server

	// notifications chat, swapped on reload
	target atomic.Pointer[transport.ChatTarget]

	updates    chan transport.Update
	stateStop  context.CancelFunc
	routerStop context.CancelFunc
}

// New loads and validates configuration and builds every component. A
// malformed schedule or roster is returned as *standup.ConfigurationError.
func New(opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	cfgm.AllowMissing(opts.AllowMissing)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	sc, _ := cfg.Standup.Resolve()
	tg, _ := cfg.Telegram.Resolve()
	hc, _ := cfg.HTTP.Resolve()
	stc, _ := cfg.Storage.Resolve()
	spec, _ := standup.ParseSchedule(sc.Schedule)

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:          tg.Token,
		PollTimeout:    tg.PollTimeout,
		RequestTimeout: max(sc.NotifyTimeout, sc.PostTimeout),
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(cfg.Logging.LogConfig(tg.AdminChat), ad)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(reloadValidator)

	store, err := storage.Open(storage.Config{
		Driver:      stc.Driver,
		Path:        stc.Path,
		BusyTimeout: stc.BusyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", stc.Driver), logx.String("path", stc.Path))
	}

	bus := eventbus.New()
	m := metrics.New()

	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logs,
		bus:     bus,
		store:   store,
		metrics: m,
		adapter: ad,
		updates: make(chan transport.Update, 256),
	}
	a.setTarget(sc.NotificationsChat)

	a.state = standup.NewState(log.With(logx.String("comp", "state")), newJournal(store))
	msg := router.NewMessenger(ad, a.notificationsChat)
	a.coord = standup.NewCoordinator(standup.CoordinatorConfig{
		DateLocation: sc.DateLocation,
		PostTimeout:  sc.PostTimeout,
	}, a.state, msg, log.With(logx.String("comp", "coordinator")), bus)
	a.driver = standup.NewDriver(spec, a.roster, msg, driverConfig(sc),
		log.With(logx.String("comp", "driver")), bus)
	a.router = router.New(router.Config{FormTTL: sc.FormTimeout}, ad, a.coord, a.driver,
		log.With(logx.String("comp", "router")))
	a.http = health.New(health.Config{
		Addr:         hc.Addr,
		ReadTimeout:  hc.ReadTimeout,
		WriteTimeout: hc.WriteTimeout,
	}, m.Registry, log)
	return a, nil
}

func driverConfig(sc config.Standup) standup.DriverConfig {
	return standup.DriverConfig{
		Workers:       sc.NotifyWorkers,
		RatePerSec:    sc.NotifyRatePerSec,
		NotifyTimeout: sc.NotifyTimeout,
	}
}

func (a *App) setTarget(t transport.ChatTarget) { a.target.Store(&t) }

func (a *App) notificationsChat() transport.ChatTarget {
	if t := a.target.Load(); t != nil {
		return *t
	}
	return transport.ChatTarget{}
}

// roster re-derives the roster from the live config and environment. It is
// called once per tick.
func (a *App) roster() ([]standup.UserConfig, error) {
	cfg := a.cfgm.Live()
	sc, _ := cfg.Standup.Resolve()
	return standup.ParseRoster(sc.TargetUsers, sc.DefaultTimezone)
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if n, t, err := replay(ctx, a.store, a.state, time.Now(), a.cfgLocation()); err != nil {
		a.log.Warn("journal replay failed; starting empty", logx.Err(err))
	} else if a.store != nil {
		a.log.Info("journal replayed", logx.Int("updates", n), logx.Int("threads", t))
	}

	// The state owner outlives the app context so in-flight submissions can
	// finish during Stop.
	stateCtx, stateStop := context.WithCancel(context.WithoutCancel(ctx))
	a.stateStop = stateStop
	stateDone := make(chan struct{})
	go func() {
		defer close(stateDone)
		_ = a.state.Run(stateCtx)
	}()
	a.sup.Go0("state.watch", func(c context.Context) {
		select {
		case <-c.Done():
		case <-stateDone:
			a.log.Error("state owner exited unexpectedly")
		}
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if err := a.adapter.UpdateMenuCommands(ctx, router.Commands()); err != nil {
		a.log.Warn("menu commands not updated", logx.Err(err))
	}

	routerCtx, routerStop := context.WithCancel(a.sup.Context())
	a.routerStop = routerStop
	a.sup.Go("router.dispatch", func(context.Context) error {
		return a.router.DispatchLoop(routerCtx, a.updates)
	})

	if err := a.driver.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.http.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("http: %w", err)
	}

	a.sup.Go("metrics.consume", func(c context.Context) error {
		return a.metrics.Consume(c, a.bus)
	})
	a.sup.Go0("eventbus.log", a.logEvents)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		systemd.Watchdog(c, a.log.With(logx.String("comp", "systemd")))
	})

	a.logStartup(time.Now())
	systemd.Ready(a.log)
	return nil
}

func (a *App) cfgLocation() *time.Location {
	sc, _ := a.cfgm.Get().Standup.Resolve()
	return sc.DateLocation
}

// logStartup lists the schedule and each roster entry with its next local
// trigger.
func (a *App) logStartup(now time.Time) {
	spec := a.driver.Spec()
	users, err := a.roster()
	if err != nil {
		a.log.Warn("roster has invalid entries", logx.Err(err))
	}
	a.log.Info("standup bot started",
		logx.String("schedule", spec.String()),
		logx.Int("roster", len(users)),
		logx.String("notifications_chat", a.notificationsChat().String()),
	)
	for _, u := range users {
		fields := []logx.Field{logx.String("user", u.UserID), logx.String("tz", u.Timezone)}
		if next, ok := schedule.Next(spec, u.Location, now); ok {
			fields = append(fields, logx.String("next", next.In(u.Location).Format("Mon 2006-01-02 15:04 MST")))
		}
		a.log.Info("roster entry", fields...)
	}
}

func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// keep only the newest queued config
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

// applyConfig fans a validated config out to the running components.
func (a *App) applyConfig(prev, next *config.Config) {
	changed, attrs := config.SummarizeChange(prev, next)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartOnly(changed); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	tg, _ := next.Telegram.Resolve()
	a.logs.Apply(next.Logging.LogConfig(tg.AdminChat))

	sc, err := next.Standup.Resolve()
	if err != nil {
		a.log.Warn("standup config invalid; keeping previous", logx.Err(err))
	} else {
		if spec, err := standup.ParseSchedule(sc.Schedule); err == nil {
			a.driver.SetSpec(spec)
		}
		a.driver.Apply(driverConfig(sc))
		a.coord.Apply(standup.CoordinatorConfig{DateLocation: sc.DateLocation, PostTimeout: sc.PostTimeout})
		a.router.SetFormTTL(sc.FormTimeout)
		a.setTarget(sc.NotificationsChat)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	systemd.Reloaded(a.log)
}

// Stop shuts components down in order, each step bounded.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	systemd.Stopping(a.log)

	a.step(ctx, "driver", 3*time.Second, func(c context.Context) error {
		a.driver.Stop(c)
		return nil
	})
	a.step(ctx, "router", 3*time.Second, func(c context.Context) error {
		if a.routerStop != nil {
			a.routerStop()
		}
		return nil
	})

	a.sup.Cancel()

	a.step(ctx, "coordinator", 2*time.Second, func(c context.Context) error {
		if a.stateStop == nil {
			return nil
		}
		a.stateStop()
		select {
		case <-a.state.Done():
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "health", 2*time.Second, a.http.Stop)
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs fn with an upper bound that never extends ctx's deadline. A
// step that misses its deadline is logged and left running.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped; deadline passed", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

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
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
