package standup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"standupbot/internal/eventbus"
	"standupbot/internal/schedule"
	logx "standupbot/pkg/logx"
)

// tickSpec fires at second 0 of every minute, so each wall-clock minute is
// evaluated exactly once.
const tickSpec = "* * * * *"

// DriverConfig tunes prompt delivery.
type DriverConfig struct {
	// Workers bounds concurrent notify calls within a tick. 1 is sequential.
	Workers int
	// RatePerSec caps notify calls across the process.
	RatePerSec int
	// NotifyTimeout bounds each notify call.
	NotifyTimeout time.Duration
}

func (c DriverConfig) withDefaults() DriverConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 15 * time.Second
	}
	return c
}

// TickReport summarizes one evaluation cycle.
type TickReport struct {
	At     time.Time
	Roster int
	Due    []string
	Sent   int
	Failed int
}

// Driver evaluates the roster once a minute and prompts users whose local
// time matches the schedule.
type Driver struct {
	log      logx.Logger
	bus      eventbus.Bus
	roster   RosterFunc
	notifier Notifier

	spec atomic.Pointer[schedule.Spec]

	mu      sync.Mutex
	cfg     DriverConfig
	limiter *rate.Limiter
	c       *cron.Cron

	now func() time.Time
}

func NewDriver(spec schedule.Spec, roster RosterFunc, n Notifier, cfg DriverConfig, log logx.Logger, bus eventbus.Bus) *Driver {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Driver{
		log:      log,
		bus:      bus,
		roster:   roster,
		notifier: n,
		now:      time.Now,
	}
	d.SetSpec(spec)
	d.Apply(cfg)
	return d
}

// SetSpec swaps the schedule used from the next tick on.
func (d *Driver) SetSpec(s schedule.Spec) {
	cp := s
	d.spec.Store(&cp)
}

// Spec returns the active schedule.
func (d *Driver) Spec() schedule.Spec { return *d.spec.Load() }

// Apply updates delivery settings. Safe during hot reload.
func (d *Driver) Apply(cfg DriverConfig) {
	cfg = cfg.withDefaults()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.limiter == nil || d.cfg.RatePerSec != cfg.RatePerSec {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	d.cfg = cfg
}

func (d *Driver) settings() (DriverConfig, *rate.Limiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg, d.limiter
}

// Start registers the minute tick. Ticks run in their own goroutines, so a
// slow tick never delays the next one.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.c != nil {
		return nil
	}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger{log: d.log})),
	)
	if _, err := c.AddFunc(tickSpec, func() { d.Tick(ctx, d.now()) }); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}
	c.Start()
	d.c = c
	d.log.Info("driver started", logx.String("schedule", d.Spec().String()))
	return nil
}

// Stop halts ticking and waits for running ticks until ctx expires.
func (d *Driver) Stop(ctx context.Context) {
	d.mu.Lock()
	c := d.c
	d.c = nil
	d.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		d.log.Warn("driver stop timed out; ticks still running")
	}
	d.log.Info("driver stopped")
}

// Due re-reads the roster and returns the users whose local time matches now.
// Roster errors are returned alongside whatever valid users were parsed.
func (d *Driver) Due(now time.Time) (roster []UserConfig, due []UserConfig, err error) {
	roster, err = d.roster()
	spec := d.Spec()
	for _, u := range roster {
		if schedule.Matches(spec, u.Location, now) {
			due = append(due, u)
		}
	}
	return roster, due, err
}

// Tick runs one evaluation cycle at now.
func (d *Driver) Tick(ctx context.Context, now time.Time) TickReport {
	rep := TickReport{At: now}
	roster, due, err := d.Due(now)
	rep.Roster = len(roster)
	if err != nil {
		d.log.Warn("roster has invalid entries; continuing with valid ones", logx.Err(err))
	}
	eventbus.Emit(d.bus, TopicTick, now)
	if len(roster) == 0 {
		d.log.Debug("tick: roster empty")
		return rep
	}
	if len(due) == 0 {
		return rep
	}
	for _, u := range due {
		rep.Due = append(rep.Due, u.UserID)
	}
	d.log.Info("running scheduled standup", logx.Int("users", len(due)), logx.Time("at", now))
	rep.Sent, rep.Failed = d.Prompt(ctx, due)
	return rep
}

// PromptAll prompts the whole roster now, ignoring the schedule.
func (d *Driver) PromptAll(ctx context.Context) TickReport {
	rep := TickReport{At: d.now()}
	roster, err := d.roster()
	if err != nil {
		d.log.Warn("roster has invalid entries; continuing with valid ones", logx.Err(err))
	}
	rep.Roster = len(roster)
	for _, u := range roster {
		rep.Due = append(rep.Due, u.UserID)
	}
	if len(roster) == 0 {
		return rep
	}
	d.log.Info("running manual standup", logx.Int("users", len(roster)))
	rep.Sent, rep.Failed = d.Prompt(ctx, roster)
	return rep
}

// Prompt notifies each user once. A failure is logged and does not stop the
// others; nothing is retried. All calls finish before Prompt returns.
func (d *Driver) Prompt(ctx context.Context, users []UserConfig) (sent, failed int) {
	cfg, lim := d.settings()

	var nSent, nFailed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(cfg.Workers)
	for _, u := range users {
		u := u
		g.Go(func() error {
			if err := d.notifyOne(ctx, u, lim, cfg.NotifyTimeout); err != nil {
				nFailed.Add(1)
				d.log.Warn("prompt failed", logx.String("user", u.UserID), logx.String("tz", u.Timezone), logx.Err(err))
				eventbus.Emit(d.bus, TopicPromptFailed, err)
				return nil
			}
			nSent.Add(1)
			d.log.Debug("prompt sent", logx.String("user", u.UserID), logx.String("tz", u.Timezone))
			eventbus.Emit(d.bus, TopicPrompted, u.UserID)
			return nil
		})
	}
	_ = g.Wait()
	return int(nSent.Load()), int(nFailed.Load())
}

func (d *Driver) notifyOne(ctx context.Context, u UserConfig, lim *rate.Limiter, timeout time.Duration) error {
	nctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if lim != nil {
		if err := lim.Wait(nctx); err != nil {
			return &NotifyError{UserID: u.UserID, Err: err}
		}
	}
	if err := d.notifier.Notify(nctx, u.UserID); err != nil {
		return &NotifyError{UserID: u.UserID, Err: err}
	}
	return nil
}

// cronLogger routes robfig/cron diagnostics (including recovered panics) into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("kv", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", keysAndValues))
}
